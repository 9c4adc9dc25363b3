package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

const (
	keyPattern     = models.SnapshotKeyPrefix + "*"
	channelPattern = models.PriceChannelPrefix + "*"
	scanBatch      = 200
)

// Compile-time check to ensure RedisStore implements QuoteSource
var _ QuoteSource = (*RedisStore)(nil)

// RedisStore reads what the processor writes: the latest quote per symbol
// under stock:<SYM> and live updates on prices.<SYM>.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

// LoadAll scans stock:* and fetches the values in MGET batches.
func (r *RedisStore) LoadAll(ctx context.Context) ([]models.Quote, error) {
	var quotes []models.Quote
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", keyPattern, err)
		}

		if len(keys) > 0 {
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("mget snapshots: %w", err)
			}
			for i, val := range values {
				payload, ok := val.(string)
				if !ok || payload == "" {
					continue
				}
				q, err := decodeQuote(payload)
				if err != nil {
					r.logger.Warn("Skipping undecodable snapshot", zap.String("key", keys[i]), zap.Error(err))
					continue
				}
				quotes = append(quotes, q)
			}
		}

		cursor = next
		if cursor == 0 {
			return quotes, nil
		}
	}
}

// Run pattern-subscribes to every price channel and forwards decoded quotes.
func (r *RedisStore) Run(ctx context.Context, onQuote func(models.Quote)) error {
	pubsub := r.client.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()

	// wait for the subscription confirmation so no update published after
	// Run returns from setup is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s: %w", channelPattern, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis pubsub channel closed")
			}
			q, err := decodeQuote(msg.Payload)
			if err != nil {
				r.logger.Warn("Skipping undecodable update", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			onQuote(q)
		}
	}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func decodeQuote(payload string) (models.Quote, error) {
	var q models.Quote
	if err := json.Unmarshal([]byte(payload), &q); err != nil {
		return models.Quote{}, err
	}
	if q.Symbol == "" {
		return models.Quote{}, errors.New("quote without symbol")
	}
	return q, nil
}
