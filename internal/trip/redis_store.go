package trip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/geo"
)

// DefaultSessionTTL is how long a session lives without pushes.
const DefaultSessionTTL = 6 * time.Hour

const keyPrefix = "active_trips:"

// createScript writes a new session unless the key exists.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'lat', ARGV[1], 'lng', ARGV[2], 'lastUpdate', ARGV[3], 'startedAt', ARGV[3], 'status', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// pushScript updates an existing session and returns all its fields.
var pushScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HSET', KEYS[1], 'lat', ARGV[1], 'lng', ARGV[2], 'lastUpdate', ARGV[3], 'status', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return redis.call('HGETALL', KEYS[1])
`)

// endScript deletes a session and returns the fields it had.
var endScript = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
redis.call('DEL', KEYS[1])
return fields
`)

// RedisStore keeps sessions as Redis hashes and fans out updates with
// Redis pub/sub. Timestamps come from the Redis server clock.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	Client *redis.Client
	TTL    time.Duration
	Logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{client: cfg.Client, ttl: ttl, logger: cfg.Logger}
}

// SessionKey returns the hash key of a session.
func SessionKey(code string) string {
	return keyPrefix + code
}

// UpdatesChannel returns the pub/sub channel of a session.
func UpdatesChannel(code string) string {
	return keyPrefix + code + ":updates"
}

func (s *RedisStore) serverTime(ctx context.Context) (time.Time, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: server time: %v", ErrPersistence, err)
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

// Create stores a new session under code.
func (s *RedisStore) Create(ctx context.Context, code string, loc geo.Coordinate) (Session, error) {
	now, err := s.serverTime(ctx)
	if err != nil {
		return Session{}, err
	}

	created, err := createScript.Run(ctx, s.client, []string{SessionKey(code)},
		formatFloat(loc.Lat), formatFloat(loc.Lng), now.UnixMilli(), StatusActive, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return Session{}, fmt.Errorf("%w: create session: %v", ErrPersistence, err)
	}
	if created == 0 {
		return Session{}, ErrCodeTaken
	}

	return Session{
		ID:         code,
		Location:   loc,
		LastUpdate: now,
		StartedAt:  now,
		Status:     StatusActive,
	}, nil
}

// Push records the rider's position and publishes the updated session.
func (s *RedisStore) Push(ctx context.Context, code string, loc geo.Coordinate) (Session, error) {
	now, err := s.serverTime(ctx)
	if err != nil {
		return Session{}, err
	}

	res, err := pushScript.Run(ctx, s.client, []string{SessionKey(code)},
		formatFloat(loc.Lat), formatFloat(loc.Lng), now.UnixMilli(), StatusActive, s.ttl.Milliseconds(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: push location: %v", ErrPersistence, err)
	}

	sess, err := decodeHash(code, pairs(res))
	if err != nil {
		return Session{}, err
	}
	s.publish(ctx, sess)

	return sess, nil
}

// publish fans a session out to watchers. The hash is already written, so
// a lost message only delays watchers until their next read.
func (s *RedisStore) publish(ctx context.Context, sess Session) {
	payload, err := json.Marshal(toWire(sess))
	if err == nil {
		err = s.client.Publish(ctx, UpdatesChannel(sess.ID), payload).Err()
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("trip_code", sess.ID).Msg("failed to publish trip update")
	}
}

// Get reads a session.
func (s *RedisStore) Get(ctx context.Context, code string) (Session, error) {
	fields, err := s.client.HGetAll(ctx, SessionKey(code)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("%w: get session: %v", ErrPersistence, err)
	}
	if len(fields) == 0 {
		return Session{}, ErrSessionNotFound
	}
	return decodeHash(code, fields)
}

// Delete removes a session and publishes its last state marked ended.
func (s *RedisStore) Delete(ctx context.Context, code string) error {
	res, err := endScript.Run(ctx, s.client, []string{SessionKey(code)}).StringSlice()
	if err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrPersistence, err)
	}
	if len(res) == 0 {
		return nil
	}

	sess, err := decodeHash(code, pairs(res))
	if err != nil {
		s.logger.Warn().Err(err).Str("trip_code", code).Msg("ended trip had a malformed hash")
		sess = Session{ID: code}
	}
	sess.Status = StatusEnded
	s.publish(ctx, sess)
	return nil
}

// Subscribe delivers every published update of a session. It returns once
// the subscription is confirmed by the server.
func (s *RedisStore) Subscribe(ctx context.Context, code string, onChange func(Session)) (func(), error) {
	ps := s.client.Subscribe(ctx, UpdatesChannel(code))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe: %v", ErrPersistence, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var w wireSession
			if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
				s.logger.Warn().Err(err).Str("trip_code", code).Msg("dropping malformed trip update")
				continue
			}
			onChange(w.session(code))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = ps.Close()
			<-done
		})
	}, nil
}

// wireSession is the published form of a session; times are epoch millis.
type wireSession struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	LastUpdate int64   `json:"lastUpdate"`
	StartedAt  int64   `json:"startedAt"`
	Status     string  `json:"status"`
}

func toWire(s Session) wireSession {
	return wireSession{
		Lat:        s.Location.Lat,
		Lng:        s.Location.Lng,
		LastUpdate: s.LastUpdate.UnixMilli(),
		StartedAt:  s.StartedAt.UnixMilli(),
		Status:     s.Status,
	}
}

func (w wireSession) session(code string) Session {
	return Session{
		ID:         code,
		Location:   geo.Coordinate{Lat: w.Lat, Lng: w.Lng},
		LastUpdate: time.UnixMilli(w.LastUpdate).UTC(),
		StartedAt:  time.UnixMilli(w.StartedAt).UTC(),
		Status:     w.Status,
	}
}

func decodeHash(code string, fields map[string]string) (Session, error) {
	var (
		w   wireSession
		err error
	)
	if w.Lat, err = strconv.ParseFloat(fields["lat"], 64); err != nil {
		return Session{}, fmt.Errorf("%w: bad lat for %s: %v", ErrPersistence, code, err)
	}
	if w.Lng, err = strconv.ParseFloat(fields["lng"], 64); err != nil {
		return Session{}, fmt.Errorf("%w: bad lng for %s: %v", ErrPersistence, code, err)
	}
	if w.LastUpdate, err = strconv.ParseInt(fields["lastUpdate"], 10, 64); err != nil {
		return Session{}, fmt.Errorf("%w: bad lastUpdate for %s: %v", ErrPersistence, code, err)
	}
	if v := fields["startedAt"]; v != "" {
		if w.StartedAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Session{}, fmt.Errorf("%w: bad startedAt for %s: %v", ErrPersistence, code, err)
		}
	}
	w.Status = fields["status"]
	return w.session(code), nil
}

// pairs turns an HGETALL reply into a map.
func pairs(res []string) map[string]string {
	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}
	return fields
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ Store = (*RedisStore)(nil)
