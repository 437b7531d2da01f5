package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultTTL   = 2 * time.Minute
	defaultRetry = 100 * time.Millisecond
)

// releaseScript deletes the lock only when it still holds our token, so a
// holder whose TTL lapsed cannot release somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ credentials.Locker = (*Locker)(nil)

// Locker is a credentials.Locker shared by every process talking to the same Redis.
type Locker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

type Option func(*Locker)

// WithTTL bounds how long a crashed holder can block a key. It must exceed the provider timeout.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		l.ttl = ttl
	}
}

func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		l.retry = d
	}
}

func New(client redis.Cmdable, prefix string, options ...Option) (*Locker, error) {
	if client == nil {
		return nil, errors.New("[redislock New] client is required")
	}
	l := &Locker{
		client: client,
		prefix: prefix,
		ttl:    defaultTTL,
		retry:  defaultRetry,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Lock polls SET NX PX until it wins or ctx is done.
func (l *Locker) Lock(ctx context.Context, key credentials.Key) (func(), error) {
	name := l.prefix + key.String()
	token := uuid.New().String()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(name, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(name, token string) {
	// the caller's context may already be cancelled; release must still run
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{name}, token).Err(); err != nil {
		log.Warn().Err(err).Str("lock", name).Msg("failed to release refresh lock")
	}
}
