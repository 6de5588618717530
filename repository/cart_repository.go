package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/models"

	"github.com/redis/go-redis/v9"
)

// CartRepository reads and empties the per-user cart document.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type RedisCartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartRepository(client *redis.Client, ttl time.Duration) *RedisCartRepository {
	return &RedisCartRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisCartRepository) getKey(userID string) string {
	return fmt.Sprintf("cart:user:%s", userID)
}

// GetCart returns nil, nil when the user has no cart.
func (r *RedisCartRepository) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	data, err := r.client.Get(ctx, r.getKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := json.Unmarshal([]byte(data), &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if cart.UserID == "" {
		cart.UserID = userID
	}
	return &cart, nil
}

func (r *RedisCartRepository) SaveCart(ctx context.Context, cart *models.Cart) error {
	cart.UpdatedAt = time.Now()
	cart.Recalculate()

	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.getKey(cart.UserID), data, r.ttl).Err()
}

// ClearCart empties the items but keeps the document so the user's cart
// still exists with zero totals.
func (r *RedisCartRepository) ClearCart(ctx context.Context, userID string) error {
	cart, err := r.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	if cart == nil {
		return nil
	}
	cart.Items = []models.CartItem{}
	return r.SaveCart(ctx, cart)
}
