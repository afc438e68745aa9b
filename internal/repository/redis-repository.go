package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"access_service/internal/database/redis"
	"access_service/internal/models"

	redis_v9 "github.com/redis/go-redis/v9"
)

// RedisRepo owns the two Redis surfaces of this service: the effective-
// permission decision cache (invalidated on every grant mutation) and the
// grant mirror keys consumed by the Mayan ACL sync job.
type RedisRepo struct {
	client *redis_v9.Client
}

func NewRedisRepo() *RedisRepo {
	return &RedisRepo{
		client: redis.Redis_Client,
	}
}

func decisionKey(userID string, documentID int) string {
	return fmt.Sprintf("decision:%s:%d", userID, documentID)
}

func grantMirrorKey(userID string, documentID int) string {
	return fmt.Sprintf("grant:%s:%d", userID, documentID)
}

func (r *RedisRepo) InvalidateDecision(ctx context.Context, userID string, documentID int) error {
	err := r.client.Del(ctx, decisionKey(userID, documentID)).Err()
	if err != nil {
		return fmt.Errorf("error invalidating decision cache: %s", err)
	}
	return nil
}

// grantMirror is the payload layout the ACL sync job expects under
// grant:{userId}:{documentId}.
type grantMirror struct {
	UserID      string   `json:"userId"`
	DocumentID  int      `json:"documentId"`
	Permissions []string `json:"permissions"`
	ExpiresAt   int64    `json:"expiresAt"`
}

func (r *RedisRepo) WriteGrantMirror(ctx context.Context, grant *models.Grant) error {
	payload, err := json.Marshal(grantMirror{
		UserID:      grant.UserID,
		DocumentID:  grant.DocumentID,
		Permissions: grant.Permissions,
		ExpiresAt:   grant.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("error encoding grant mirror: %s", err)
	}

	ttl := time.Until(time.Unix(grant.ExpiresAt, 0))
	if ttl <= 0 {
		return nil
	}
	err = r.client.Set(ctx, grantMirrorKey(grant.UserID, grant.DocumentID), payload, ttl).Err()
	if err != nil {
		return fmt.Errorf("error writing grant mirror: %s", err)
	}
	return nil
}

func (r *RedisRepo) DeleteGrantMirror(ctx context.Context, userID string, documentID int) error {
	err := r.client.Del(ctx, grantMirrorKey(userID, documentID)).Err()
	if err != nil {
		return fmt.Errorf("error deleting grant mirror: %s", err)
	}
	return nil
}

// MayanUserID resolves the backend-maintained Keycloak-to-Mayan user mapping.
func (r *RedisRepo) MayanUserID(ctx context.Context, userID string) (string, error) {
	value, err := r.client.Get(ctx, "mayan:user:"+userID).Result()
	if err != nil {
		if err == redis_v9.Nil {
			return "", models.ErrUserNotFound
		}
		return "", fmt.Errorf("error resolving mayan user mapping: %s", err)
	}
	return value, nil
}

func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
