// AngelaMos | 2026
// store.go

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/imagegate/internal/core"
)

const (
	keyPrefix        = "session:"
	fieldAccountID   = "account_id"
	fieldCheckoutRef = "checkout_ref"
	fieldCreatedAt   = "created_at"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the server side state behind one login.
type Session struct {
	ID          string
	AccountID   string
	CheckoutRef string
	CreatedAt   time.Time
}

// setIfExists keeps HSET from recreating a session that was already
// deleted or expired.
var setIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return keyPrefix + id
}

func (s *Store) Create(ctx context.Context, accountID string) (*Session, error) {
	id, err := core.GenerateSecureToken(24)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	sess := &Session{
		ID:        id,
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}

	key := sessionKey(id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldAccountID, accountID,
			fieldCreatedAt, sess.CreatedAt.Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return sess, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	values, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	return decode(id, values)
}

func (s *Store) SetCheckoutRef(ctx context.Context, id, reference string) error {
	n, err := setIfExists.Run(ctx, s.client,
		[]string{sessionKey(id)},
		fieldCheckoutRef, reference,
	).Int()
	if err != nil {
		return fmt.Errorf("set checkout ref: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set checkout ref: %w", ErrSessionNotFound)
	}

	return nil
}

func (s *Store) ClearCheckoutRef(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, sessionKey(id), fieldCheckoutRef).Err(); err != nil {
		return fmt.Errorf("clear checkout ref: %w", err)
	}
	return nil
}

// Delete removes the session and returns what it held so the caller can
// release anything tied to it.
func (s *Store) Delete(ctx context.Context, id string) (*Session, error) {
	key := sessionKey(id)

	var values *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		values = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete session: %w", err)
	}

	return decode(id, values.Val())
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("count sessions: %w", err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func decode(id string, values map[string]string) (*Session, error) {
	accountID := values[fieldAccountID]
	if accountID == "" {
		return nil, ErrSessionNotFound
	}

	sess := &Session{
		ID:          id,
		AccountID:   accountID,
		CheckoutRef: values[fieldCheckoutRef],
	}
	if ts, err := time.Parse(time.RFC3339Nano, values[fieldCreatedAt]); err == nil {
		sess.CreatedAt = ts
	}

	return sess, nil
}
