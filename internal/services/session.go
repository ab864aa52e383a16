package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"userform_payments/internal/models"
)

// Session keys shared by the form renderer, the processor and the completion handler
const (
	SessionKeySecurityID       = "SecurityID"
	SessionKeyFormProcessed    = "FormProcessed"
	SessionKeyFormProcessedNum = "FormProcessedNum"
)

// FormDataKey holds the raw values of the last submission of a form
func FormDataKey(formName string) string {
	return "FormInfo." + formName + ".data"
}

// FormErrorsKey holds the field errors of the last submission of a form
func FormErrorsKey(formName string) string {
	return "FormInfo." + formName + ".errors"
}

// SubmissionKey holds the ID of the submission awaiting its finished page
func SubmissionKey(formID uint) string {
	return fmt.Sprintf("userformssubmission%d", formID)
}

// NotificationKey holds the hook-augmented notification data of that submission
func NotificationKey(formID uint) string {
	return fmt.Sprintf("userformsnotification%d", formID)
}

// PendingNotification is what the processor's email data hooks added,
// kept until the finished page sends the notifications. Extra goes
// through JSON, so numbers come back as float64.
type PendingNotification struct {
	AttachmentIDs []uint                 `json:"attachment_ids"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// SessionStore is the key/value session of a single visitor.
// Values are stored as JSON and decoded into dest on Get.
type SessionStore interface {
	ID() string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Clear(ctx context.Context, keys ...string) error
	Touch(ctx context.Context) error
}

// SessionProvider opens the session for a session id
type SessionProvider interface {
	Session(id string) SessionStore
}

// RequestContext carries the visitor identity through processing
type RequestContext struct {
	CurrentUser *models.Member
	Session     SessionStore
}

// CurrentUserID returns the member ID, or 0 for anonymous visitors
func (rc RequestContext) CurrentUserID() uint {
	if rc.CurrentUser == nil {
		return 0
	}
	return rc.CurrentUser.ID
}

// RedisSessionProvider stores each session as a Redis hash
type RedisSessionProvider struct {
	cache *RedisCache
	ttl   time.Duration
}

func NewRedisSessionProvider(cache *RedisCache, ttl time.Duration) *RedisSessionProvider {
	return &RedisSessionProvider{cache: cache, ttl: ttl}
}

func (p *RedisSessionProvider) Session(id string) SessionStore {
	return &redisSession{id: id, cache: p.cache, ttl: p.ttl}
}

type redisSession struct {
	id    string
	cache *RedisCache
	ttl   time.Duration
}

func (s *redisSession) key() string {
	return "session:" + s.id
}

func (s *redisSession) ID() string {
	return s.id
}

func (s *redisSession) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	err := s.cache.HGet(ctx, s.key(), key, dest)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session get %s: %w", key, err)
	}
	return true, nil
}

func (s *redisSession) Set(ctx context.Context, key string, value interface{}) error {
	if err := s.cache.HSet(ctx, s.key(), key, value, s.ttl); err != nil {
		return fmt.Errorf("session set %s: %w", key, err)
	}
	return nil
}

func (s *redisSession) Clear(ctx context.Context, keys ...string) error {
	return s.cache.HDel(ctx, s.key(), keys...)
}

func (s *redisSession) Touch(ctx context.Context) error {
	return s.cache.Expire(ctx, s.key(), s.ttl)
}

// MemorySessionProvider keeps sessions in process memory.
// Used when Redis is not configured and in tests. Sessions expire ttl
// after their last write or Touch, like the Redis hashes.
type MemorySessionProvider struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
	sessions  map[string]*memoryEntry
}

type memoryEntry struct {
	values  map[string][]byte
	expires time.Time
}

func NewMemorySessionProvider(ttl time.Duration) *MemorySessionProvider {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &MemorySessionProvider{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memoryEntry),
	}
}

func (p *MemorySessionProvider) Session(id string) SessionStore {
	return &memorySession{id: id, provider: p}
}

// entry returns the live entry for id. Callers hold p.mu.
func (p *MemorySessionProvider) entry(id string, create bool) *memoryEntry {
	now := p.now()
	if now.Sub(p.lastSweep) >= p.ttl {
		for sid, e := range p.sessions {
			if !now.Before(e.expires) {
				delete(p.sessions, sid)
			}
		}
		p.lastSweep = now
	}

	e, ok := p.sessions[id]
	if ok && !now.Before(e.expires) {
		delete(p.sessions, id)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		e = &memoryEntry{values: make(map[string][]byte)}
		p.sessions[id] = e
	}
	if create {
		e.expires = now.Add(p.ttl)
	}
	return e
}

type memorySession struct {
	id       string
	provider *MemorySessionProvider
}

func (s *memorySession) ID() string {
	return s.id
}

func (s *memorySession) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	s.provider.mu.Lock()
	var data []byte
	ok := false
	if e := s.provider.entry(s.id, false); e != nil {
		data, ok = e.values[key]
	}
	s.provider.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("session get %s: %w", key, err)
	}
	return true, nil
}

func (s *memorySession) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session set %s: %w", key, err)
	}
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	s.provider.entry(s.id, true).values[key] = data
	return nil
}

func (s *memorySession) Clear(ctx context.Context, keys ...string) error {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	if e := s.provider.entry(s.id, false); e != nil {
		for _, key := range keys {
			delete(e.values, key)
		}
	}
	return nil
}

func (s *memorySession) Touch(ctx context.Context) error {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	if e := s.provider.entry(s.id, false); e != nil {
		e.expires = s.provider.now().Add(s.provider.ttl)
	}
	return nil
}
