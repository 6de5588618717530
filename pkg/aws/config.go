package aws

import (
	"context"
	"fmt"
	"log"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig loads the default AWS config. When AWS_ENDPOINT (or the older
// AWS_SQS_ENDPOINT) is set, every client built from the returned config targets
// that endpoint, which is how LocalStack is used in development.
func LoadAWSConfig(ctx context.Context) (sdkaws.Config, error) {
	var opts []func(*config.LoadOptions) error

	endpoint := os.Getenv("AWS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("AWS_SQS_ENDPOINT")
	}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_REGION")
	}
	if endpoint != "" {
		log.Printf("[AWS] custom endpoint configured: %s region=%q", endpoint, cfg.Region)
	}
	return cfg, nil
}
