// Package publish fans the latest predictions out over Redis. Each prediction is
// stored under a per-bridge key with a TTL, so readers can fetch the current
// outlook without subscribing, and is also published on a channel for live
// consumers.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// commander is the subset of the Redis client the publisher needs
type commander interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Publisher writes predictions to Redis
type Publisher struct {
	rdb       commander
	channel   string
	keyPrefix string
	ttl       time.Duration
}

// New creates a Publisher on an existing client
func New(rdb commander, channel, keyPrefix string, ttl time.Duration) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, keyPrefix: keyPrefix, ttl: ttl}
}

// Dial connects to the Redis server at url and verifies the connection.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Key returns the Redis key holding a bridge's latest prediction
func (p *Publisher) Key(bridgeID int) string {
	return fmt.Sprintf("%s%d", p.keyPrefix, bridgeID)
}

// Publish stores and publishes every prediction. It keeps going after a failed
// prediction and returns how many succeeded along with the joined errors.
func (p *Publisher) Publish(ctx context.Context, predictions []models.Prediction) (int, error) {
	var errs []error
	published := 0

	for i := range predictions {
		pred := &predictions[i]
		data, err := json.Marshal(pred)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to marshal prediction for bridge %d: %w", pred.BridgeID, err))
			continue
		}
		if err := p.rdb.Set(ctx, p.Key(pred.BridgeID), data, p.ttl).Err(); err != nil {
			errs = append(errs, fmt.Errorf("failed to store prediction for bridge %d: %w", pred.BridgeID, err))
			continue
		}
		if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish prediction for bridge %d: %w", pred.BridgeID, err))
			continue
		}
		published++
	}

	return published, errors.Join(errs...)
}
