package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// sessionTTL 是"当前会话"记忆的保留时长：一周内回来继续同一会话。
const sessionTTL = 7 * 24 * time.Hour

// SessionRepository 定义了会话令牌的管理接口。
// 会话令牌是不透明字符串，按 (用户, 章节) 记忆在 Redis 中。
type SessionRepository interface {
	GetOrCreateSessionID(ctx context.Context, userID, chapter string) (sessionID string, created bool, err error)
	TouchSession(ctx context.Context, userID, chapter, sessionID string) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

// GetOrCreateSessionID 获取或创建当前会话令牌。
// created 为 true 表示这是一个全新会话（调用方据此决定开场方式）。
func (r *redisSessionRepository) GetOrCreateSessionID(ctx context.Context, userID, chapter string) (string, bool, error) {
	key := sessionKey(userID, chapter)
	sessionID, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		sessionID = NewSessionID()
		if err := r.redisClient.Set(ctx, key, sessionID, sessionTTL).Err(); err != nil {
			return "", false, fmt.Errorf("failed to set session id: %w", err)
		}
		return sessionID, true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get session id: %w", err)
	}
	return sessionID, false, nil
}

// TouchSession 记录客户端显式携带的会话令牌并续期。
func (r *redisSessionRepository) TouchSession(ctx context.Context, userID, chapter, sessionID string) error {
	return r.redisClient.Set(ctx, sessionKey(userID, chapter), sessionID, sessionTTL).Err()
}

// NewSessionID 生成一个新的不透明会话令牌。
func NewSessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), suffix)
}

func sessionKey(userID, chapter string) string {
	return fmt.Sprintf("user:%s:chapter:%s:current_session", userID, chapter)
}
