package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const defaultSecretTTL = 10 * time.Minute

type cachedSecret struct {
	value     string
	fetchedAt time.Time
}

// SecretsClient reads string secrets and caches them for a short TTL so key
// rotation is picked up without a restart.
type SecretsClient struct {
	client *secretsmanager.Client
	ttl    time.Duration
	cache  map[string]cachedSecret
	mu     sync.RWMutex
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return &SecretsClient{
		client: secretsmanager.NewFromConfig(cfg),
		ttl:    defaultSecretTTL,
		cache:  make(map[string]cachedSecret),
	}
}

func (s *SecretsClient) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	c, ok := s.cache[name]
	s.mu.RUnlock()
	if ok && time.Since(c.fetchedAt) < s.ttl {
		return c.value, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &name})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", name)
	}

	s.mu.Lock()
	s.cache[name] = cachedSecret{value: *out.SecretString, fetchedAt: time.Now()}
	s.mu.Unlock()

	return *out.SecretString, nil
}
