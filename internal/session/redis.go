package session

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"

	"github.com/reliefline/reliefline/pkg/models"
)

const keyPrefix = "ussd:session:"

// RedisStore keeps sessions in Redis with a native TTL, so expiry needs no
// sweeper: Redis drops the key at expires_at on its own. The read-time
// expiry check still runs to honor the shared definition exactly.
type RedisStore struct {
	pool *redis.Pool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects a session store to the Redis instance at addr.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		pool: &redis.Pool{
			MaxIdle:     4,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", addr)
			},
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				if time.Since(t) < time.Minute {
					return nil
				}
				_, err := c.Do("PING")
				return err
			},
		},
	}
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping() error {
	conn := s.pool.Get()
	defer conn.Close()
	_, err := conn.Do("PING")
	return err
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.pool.Close()
}

// Get returns the live session or (nil, nil).
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", keyPrefix+sessionID))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Expired(time.Now()) {
		// Key outlived its logical expiry (clock skew); treat as absent.
		_, _ = conn.Do("DEL", keyPrefix+sessionID)
		return nil, nil
	}
	return &sess, nil
}

// Put upserts the session and aligns the Redis TTL with expires_at.
func (s *RedisStore) Put(ctx context.Context, sess *models.Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", sess.ID)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("SET", keyPrefix+sess.ID, data, "PX", ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the session key.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", keyPrefix+sessionID); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
