// Package session keeps form journey state in Redis between requests.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/digital-land/submit/internal/pkg/logger"
)

// Session is one visitor's journey state. Values are flat string pairs
// keyed by journey and field, e.g. "check.dataset".
type Session struct {
	ID     string
	Values map[string]string
	fresh  bool
}

// IsNew reports whether the session was created on this request.
func (s *Session) IsNew() bool { return s.fresh }

// Get returns a stored value, empty if unset.
func (s *Session) Get(key string) string { return s.Values[key] }

// Set stores a value. An empty value removes the key.
func (s *Session) Set(key, value string) {
	if value == "" {
		delete(s.Values, key)
		return
	}
	s.Values[key] = value
}

// Clear removes every key starting with prefix.
func (s *Session) Clear(prefix string) {
	for k := range s.Values {
		if strings.HasPrefix(k, prefix) {
			delete(s.Values, k)
		}
	}
}

// Keys returns the stored keys in sorted order.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Config holds cookie and lifetime settings.
type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Store loads and saves sessions in Redis under session:{id} with a
// sliding TTL.
type Store struct {
	client *redis.Client
	cfg    Config
}

// NewStore creates a Redis-backed session store.
func NewStore(client *redis.Client, cfg Config) *Store {
	if cfg.CookieName == "" {
		cfg.CookieName = "sid"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Store{client: client, cfg: cfg}
}

func redisKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Load returns the session named by the request cookie, refreshing its
// TTL. A missing, malformed or expired cookie yields a new empty session.
func (s *Store) Load(ctx context.Context, r *http.Request) (*Session, error) {
	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil {
		return s.fresh(), nil
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		logger.Debug("ignoring malformed session cookie")
		return s.fresh(), nil
	}

	raw, err := s.client.GetEx(ctx, redisKey(id.String()), s.cfg.TTL).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.fresh(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess := &Session{ID: id.String(), Values: map[string]string{}}
	if err := json.Unmarshal(raw, &sess.Values); err != nil {
		logger.Warn("discarding corrupt session", "session_id", sess.ID, "error", err)
		return s.fresh(), nil
	}
	if sess.Values == nil {
		sess.Values = map[string]string{}
	}
	return sess, nil
}

func (s *Store) fresh() *Session {
	return &Session{ID: uuid.NewString(), Values: map[string]string{}, fresh: true}
}

// Save writes the session and sets the cookie.
func (s *Store) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	data, err := json.Marshal(sess.Values)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(sess.ID), data, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(s.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	sess.fresh = false
	return nil
}

// Destroy deletes the session and expires the cookie.
func (s *Store) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if err := s.client.Del(ctx, redisKey(sess.ID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	sess.Values = map[string]string{}
	return nil
}

// Ping checks Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type contextKey struct{}

// Middleware loads the session into the request context. A Redis failure
// is answered with 503 since no journey page can work without state.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Load(r.Context(), r)
		if err != nil {
			logger.Error("session load failed", "path", r.URL.Path, "error", err)
			http.Error(w, "Sorry, there is a problem with the service", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, sess)))
	})
}

// FromContext returns the session loaded by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok
}
