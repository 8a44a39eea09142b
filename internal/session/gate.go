package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/config"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/models"
	"github.com/google/uuid"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileStore persists the companion profile that carries a user's role.
type ProfileStore interface {
	FindProfile(ctx context.Context, appID string, userID uuid.UUID) (*models.Profile, error)
	// CreateProfile inserts p unless a profile for the same user exists.
	CreateProfile(ctx context.Context, p *models.Profile) error
	UpdateRole(ctx context.Context, appID string, userID uuid.UUID, role string) error
}

// Gate resolves roles and enforces role requirements.
type Gate struct {
	profiles     ProfileStore
	adminEmails  []string
	adminUserIDs []string
}

func NewGate(profiles ProfileStore, cfg *config.Config) *Gate {
	return &Gate{
		profiles:     profiles,
		adminEmails:  parseCSV(cfg.AdminEmails),
		adminUserIDs: parseCSV(cfg.AdminUserIDs),
	}
}

// ResolveRole returns the caller's role, provisioning a user-role profile the
// first time an identity is seen. Operator-configured admin emails and ids
// always resolve to admin.
func (g *Gate) ResolveRole(ctx context.Context, appID string, userID uuid.UUID, email string) (string, error) {
	if contains(g.adminUserIDs, userID.String()) || (email != "" && contains(g.adminEmails, email)) {
		return models.RoleAdmin, nil
	}

	p, err := g.profiles.FindProfile(ctx, appID, userID)
	if err == nil {
		return p.Role, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return "", fmt.Errorf("find profile: %w", err)
	}

	if err := g.profiles.CreateProfile(ctx, &models.Profile{
		UserID: userID,
		AppID:  appID,
		Email:  email,
		Role:   models.RoleUser,
	}); err != nil {
		return "", fmt.Errorf("provision profile: %w", err)
	}

	// Re-read: a concurrent request may have provisioned first.
	p, err = g.profiles.FindProfile(ctx, appID, userID)
	if err != nil {
		return "", fmt.Errorf("find profile: %w", err)
	}
	return p.Role, nil
}

// Resolve builds the request-scoped identity.
func (g *Gate) Resolve(ctx context.Context, appID string, userID uuid.UUID, email string) (*Identity, error) {
	role, err := g.ResolveRole(ctx, appID, userID, email)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: userID, AppID: appID, Email: email, Role: role}, nil
}

// SetRole changes the stored role of a user, creating the profile if needed.
func (g *Gate) SetRole(ctx context.Context, appID string, userID uuid.UUID, role string) error {
	if !models.ValidRole(role) {
		return ErrInvalidRole
	}
	err := g.profiles.UpdateRole(ctx, appID, userID, role)
	if errors.Is(err, ErrProfileNotFound) {
		return g.profiles.CreateProfile(ctx, &models.Profile{UserID: userID, AppID: appID, Role: role})
	}
	return err
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if strings.EqualFold(item, val) {
			return true
		}
	}
	return false
}
