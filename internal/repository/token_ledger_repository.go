package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const tokenLedgerPrefix = "casevault:upload-token:"

// TokenLedgerRepository remembers which upload tokens have already been spent.
// Tokens stay stateless; the ledger only guards against replaying one inside its
// lifetime. Without a Redis client every claim succeeds.
type TokenLedgerRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewTokenLedgerRepository constructs a ledger repository.
func NewTokenLedgerRepository(client *redis.Client, logger *zap.Logger) *TokenLedgerRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenLedgerRepository{client: client, logger: logger}
}

// Claim marks the token folder as spent until expiresAt. It reports false when the
// token was already claimed.
func (r *TokenLedgerRepository) Claim(ctx context.Context, folder string, expiresAt time.Time) (bool, error) {
	if r.client == nil {
		return true, nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := r.client.SetNX(ctx, tokenLedgerPrefix+folder, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim upload token %s: %w", folder, err)
	}
	return ok, nil
}

// Release forgets a claim so a failed upload may be retried with the same token.
func (r *TokenLedgerRepository) Release(ctx context.Context, folder string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, tokenLedgerPrefix+folder).Err(); err != nil {
		r.logger.Sugar().Warnw("failed to release upload token claim", "folder", folder, "error", err)
		return fmt.Errorf("redis release upload token %s: %w", folder, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *TokenLedgerRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
