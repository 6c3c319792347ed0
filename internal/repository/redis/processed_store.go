package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProcessedEventsStore хранит id обработанных событий провайдера как ключи с TTL
type ProcessedEventsStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewProcessedEventsStore создаёт store поверх готового клиента
func NewProcessedEventsStore(client *redis.Client, logger *zap.Logger) *ProcessedEventsStore {
	return &ProcessedEventsStore{
		client: client,
		logger: logger,
	}
}

func eventKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

// MarkProcessed SET key EX ttl; повторная отметка просто продлевает TTL
func (s *ProcessedEventsStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	processedAt := time.Now().UTC().Format(time.RFC3339)
	if err := s.client.Set(ctx, eventKey(eventID), processedAt, ttl).Err(); err != nil {
		s.logger.Error("failed to mark webhook event processed",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
		return fmt.Errorf("mark event %s processed: %w", eventID, err)
	}

	s.logger.Debug("webhook event marked processed",
		zap.String("event_id", eventID),
		zap.Duration("ttl", ttl),
	)
	return nil
}

// IsProcessed EXISTS key
func (s *ProcessedEventsStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("check event %s processed: %w", eventID, err)
	}
	return n > 0, nil
}
