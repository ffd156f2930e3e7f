package main

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

// bootstrapStore covers the two Backend methods bootstrapAdmin touches and
// rejects IDs that are not UUIDs, the same constraint the users table has.
type bootstrapStore struct {
	storage.Backend
	users []*models.User
}

func (s *bootstrapStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.users, nil
}

func (s *bootstrapStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := uuid.Validate(u.ID); err != nil {
		return err
	}
	s.users = append(s.users, u)
	return nil
}

func TestBootstrapAdminSeedsFirstUser(t *testing.T) {
	t.Setenv("ASSETWATCH_ADMIN_PASSWORD", "first-boot-pass")
	store := &bootstrapStore{}

	if err := bootstrapAdmin(context.Background(), store); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if len(store.users) != 1 {
		t.Fatalf("expected one seeded user, got %d", len(store.users))
	}
	u := store.users[0]
	if u.Username != "admin" || u.Role != "admin" {
		t.Errorf("unexpected seeded user: username=%s role=%s", u.Username, u.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("first-boot-pass")); err != nil {
		t.Errorf("seeded password hash does not verify: %v", err)
	}

	// Second boot: users exist, nothing to do.
	if err := bootstrapAdmin(context.Background(), store); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}
	if len(store.users) != 1 {
		t.Errorf("bootstrap must be a no-op once users exist, got %d", len(store.users))
	}
}

func TestBootstrapAdminWithoutPassword(t *testing.T) {
	t.Setenv("ASSETWATCH_ADMIN_PASSWORD", "")
	store := &bootstrapStore{}

	if err := bootstrapAdmin(context.Background(), store); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if len(store.users) != 0 {
		t.Errorf("no password set must seed nothing, got %d users", len(store.users))
	}
}
