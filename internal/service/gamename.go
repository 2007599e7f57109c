package service

import (
	"context"
	"errors"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/redis"
)

// GameNameService maps marketplace-provided free-text category names to the
// canonical game field on accounts. Unknown names pass through unchanged;
// operators register new mappings at runtime.
type GameNameService struct {
	client *redis.Client
}

func NewGameNameService(client *redis.Client) *GameNameService {
	return &GameNameService{client: client}
}

// Normalize resolves a raw marketplace name. Lookup failures degrade to the
// raw name so an allocation never blocks on Redis.
func (s *GameNameService) Normalize(ctx context.Context, raw string) string {
	key := normalizeKey(raw)
	if key == "" {
		return raw
	}

	canonical, err := s.client.HGet(ctx, redis.GameNameKey, key).Result()
	if errors.Is(err, goredis.Nil) {
		return strings.TrimSpace(raw)
	}
	if err != nil {
		log.Warn().Err(err).Str("raw", raw).Msg("game name lookup failed, passing through")
		return strings.TrimSpace(raw)
	}
	return canonical
}

// Register stores a raw -> canonical mapping.
func (s *GameNameService) Register(ctx context.Context, raw, canonical string) error {
	key := normalizeKey(raw)
	if key == "" || strings.TrimSpace(canonical) == "" {
		return nil
	}
	return s.client.HSet(ctx, redis.GameNameKey, key, strings.TrimSpace(canonical)).Err()
}

// Mappings returns all registered mappings for the operator inventory.
func (s *GameNameService) Mappings(ctx context.Context) (map[string]string, error) {
	return s.client.HGetAll(ctx, redis.GameNameKey).Result()
}

func normalizeKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
