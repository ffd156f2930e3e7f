package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

const tokenPrefix = "ast_"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidSession     = errors.New("invalid session token")
	ErrSessionExpired     = errors.New("session has expired")
	ErrSessionRevoked     = errors.New("session has been revoked")
)

// dummyHash is a well-formed bcrypt digest of a throwaway password. Login
// compares against it when the username does not exist, so both failure
// paths cost one full bcrypt comparison.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// SessionService issues and validates login sessions. Durable sessions
// ("remember me") are persisted through storage and survive restarts;
// volatile sessions live in process memory only and are gone after a
// restart — the server-side counterpart of tab-scoped client storage.
type SessionService struct {
	store       storage.Backend
	durableTTL  time.Duration
	volatileTTL time.Duration

	mu       sync.Mutex
	volatile map[string]*models.Session // token hash → session
}

// NewSessionService creates a SessionService backed by the given storage.
func NewSessionService(store storage.Backend, durableTTL, volatileTTL time.Duration) *SessionService {
	if durableTTL <= 0 {
		durableTTL = 30 * 24 * time.Hour
	}
	if volatileTTL <= 0 {
		volatileTTL = 12 * time.Hour
	}
	return &SessionService{
		store:       store,
		durableTTL:  durableTTL,
		volatileTTL: volatileTTL,
		volatile:    map[string]*models.Session{},
	}
}

// Login verifies the credentials and mints an opaque session token.
// Returns the session and the plaintext token (shown once to the caller).
func (s *SessionService) Login(ctx context.Context, username, password string, remember bool) (*models.Session, string, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn a comparison so missing users cost the same as bad passwords.
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password)) //nolint:errcheck
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generating session token: %w", err)
	}
	plaintext := tokenPrefix + base64.RawURLEncoding.EncodeToString(raw)
	tokenHash := hashToken(plaintext)

	now := time.Now().UTC()
	ttl := s.volatileTTL
	if remember {
		ttl = s.durableTTL
	}
	sess := &models.Session{
		ID:        uuid.NewString(),
		Username:  user.Username,
		Role:      user.Role,
		Durable:   remember,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if remember {
		if err := s.store.WriteSession(ctx, sess, tokenHash); err != nil {
			return nil, "", fmt.Errorf("persisting session: %w", err)
		}
	} else {
		s.mu.Lock()
		s.volatile[tokenHash] = sess
		s.mu.Unlock()
	}

	s.store.TouchUserLogin(ctx, user.Username, now) //nolint:errcheck
	return sess, plaintext, nil
}

// Validate looks up a session by its plaintext token.
// Returns an error if not found, expired, or revoked.
func (s *SessionService) Validate(ctx context.Context, plaintext string) (*models.Session, error) {
	hash := hashToken(plaintext)

	s.mu.Lock()
	sess, ok := s.volatile[hash]
	s.mu.Unlock()

	if !ok {
		var err error
		sess, err = s.store.GetSession(ctx, hash)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrInvalidSession
			}
			return nil, err
		}
	}
	if sess.IsRevoked() {
		return nil, ErrSessionRevoked
	}
	if sess.IsExpired() {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Logout revokes the session behind the plaintext token in both the
// volatile and durable locations. Unknown tokens are a no-op.
func (s *SessionService) Logout(ctx context.Context, plaintext string) error {
	hash := hashToken(plaintext)

	s.mu.Lock()
	delete(s.volatile, hash)
	s.mu.Unlock()

	sess, err := s.store.GetSession(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.store.RevokeSession(ctx, sess.ID)
}

// RevokeUser revokes every session belonging to username, durable and
// volatile. Used when a user is deleted or a role changes.
func (s *SessionService) RevokeUser(ctx context.Context, username string) error {
	s.mu.Lock()
	for hash, sess := range s.volatile {
		if sess.Username == username {
			delete(s.volatile, hash)
		}
	}
	s.mu.Unlock()
	return s.store.RevokeUserSessions(ctx, username)
}

// HashPassword returns the bcrypt hash of a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashToken returns the SHA-256 hex hash of a plaintext token.
func HashToken(plaintext string) string {
	return hashToken(plaintext)
}

func hashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
