package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	cookiePath string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session holds per-request session data.
type Session struct {
	ID        string
	values    map[string]string
	identity  *Identity
	flashes   []FlashMessage
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values   map[string]string `json:"values"`
	Identity *Identity         `json:"identity,omitempty"`
	Flashes  []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager. The cookie is scoped to
// cookiePath so that several deployments can share a host.
func NewSessionManager(client *redis.Client, cookieName, cookiePath, secret string, ttl time.Duration, secure bool) *SessionManager {
	if cookiePath == "" {
		cookiePath = "/"
	}
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		cookiePath: cookiePath,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load loads or creates a new session for request.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired or forged ids get a fresh id so a stale cookie never
			// resurrects a session.
			return sm.newSession(), nil
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	sess.values = stored.Values
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	sess.identity = stored.Identity
	sess.flashes = stored.Flashes
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("session: destroy: %w", err)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     sm.cookiePath,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteLaxMode,
		})
		return nil
	}

	// Anonymous sessions that never stored anything are not persisted.
	if sess.isNew && !sess.dirty {
		return nil
	}

	if sess.dirty {
		data, err := json.Marshal(sessionPayload{Values: sess.values, Identity: sess.identity, Flashes: sess.flashes})
		if err != nil {
			return fmt.Errorf("session: encode: %w", err)
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return fmt.Errorf("session: save: %w", err)
		}
		sess.dirty = false
	} else if err := sm.client.Expire(ctx, sm.redisKey(sess.ID), sm.ttl).Err(); err != nil {
		return fmt.Errorf("session: touch: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     sm.cookiePath,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
	sess.identity = nil
}

// Renew moves the session to a fresh id and drops the stored copy under the
// old one. The CSRF token is bound to the old id and is dropped as well.
// Called on login.
func (sm *SessionManager) Renew(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	if !sess.isNew {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("session: renew: %w", err)
		}
	}
	delete(sess.values, CSRFSessionKey)
	sess.ID = sm.generateSessionID()
	sess.isNew = true
	sess.dirty = true
	return nil
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Session helpers

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// SetIdentity associates the session with a logged-in user.
func (s *Session) SetIdentity(id *Identity) {
	s.identity = id
	s.dirty = true
}

// Identity returns the logged-in user or nil.
func (s *Session) Identity() *Identity {
	if s == nil {
		return nil
	}
	return s.identity
}

// User returns the current user uid, empty when nobody is logged in.
func (s *Session) User() string {
	if s == nil || s.identity == nil {
		return ""
	}
	return s.identity.UID
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// ClearFlashes drops every pending flash message.
func (s *Session) ClearFlashes() {
	if len(s.flashes) == 0 {
		return
	}
	s.flashes = nil
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:     sm.generateSessionID(),
		values: make(map[string]string),
		isNew:  true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "otp-manager:session:" + id
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(sm.secret) > 0 {
		for i := range b {
			b[i] ^= sm.secret[i%len(sm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
