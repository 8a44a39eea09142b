package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/config"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/models"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/session"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidToken        = errors.New("invalid or expired refresh token")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRegistration = errors.New("a valid email and a password of at least 8 characters are required")
	ErrAdminSignupDisabled = errors.New("admin accounts cannot be self-registered")
	ErrPasswordRequired    = errors.New("password is required")
)

type AuthService struct {
	db   *gorm.DB
	cfg  *config.Config
	gate *session.Gate
}

func NewAuthService(db *gorm.DB, cfg *config.Config, gate *session.Gate) *AuthService {
	return &AuthService{
		db:   db,
		cfg:  cfg,
		gate: gate,
	}
}

func (s *AuthService) Register(ctx context.Context, appID string, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	email, err := validateRegistration(req)
	if err != nil {
		return nil, err
	}
	role, err := signupRole(req.Role, s.cfg.AllowAdminSignup)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var existing models.User
	if err := db.Scopes(tenant.ForTenant(appID)).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:       uuid.New(),
		AppID:    appID,
		Email:    email,
		Password: string(hash),
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		profile := models.Profile{UserID: user.ID, AppID: appID, Email: email, Role: role}
		if err := tx.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.generateTokenPair(ctx, appID, &user, role)
}

func (s *AuthService) Login(ctx context.Context, appID string, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	email := normalizeEmail(req.Email)

	var user models.User
	if err := s.db.WithContext(ctx).Scopes(tenant.ForTenant(appID)).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	role, err := s.gate.ResolveRole(ctx, appID, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return s.generateTokenPair(ctx, appID, &user, role)
}

// Refresh rotates a refresh token. The revoke is a conditional update so a
// token presented twice concurrently is honoured at most once.
func (s *AuthService) Refresh(ctx context.Context, appID string, req *dto.RefreshRequest) (*dto.AuthResponse, error) {
	db := s.db.WithContext(ctx)
	tokenHash := hashToken(req.RefreshToken)

	var stored models.RefreshToken
	if err := db.Scopes(tenant.ForTenant(appID)).Where("token_hash = ? AND revoked_at IS NULL", tokenHash).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}

	now := time.Now().UTC()
	result := db.Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", stored.ID).
		Update("revoked_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}
	if result.RowsAffected == 0 || now.After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := db.Scopes(tenant.ForTenant(appID)).First(&user, "id = ?", stored.UserID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	role, err := s.gate.ResolveRole(ctx, appID, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return s.generateTokenPair(ctx, appID, &user, role)
}

func (s *AuthService) Logout(ctx context.Context, appID string, req *dto.LogoutRequest) error {
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Scopes(tenant.ForTenant(appID)).
		Where("token_hash = ? AND revoked_at IS NULL", hashToken(req.RefreshToken)).
		Update("revoked_at", time.Now().UTC()).Error
}

// DeleteAccount removes the user, its profile and refresh tokens. Deposit
// records keep the user id for history.
func (s *AuthService) DeleteAccount(ctx context.Context, appID string, userID uuid.UUID, password string) error {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Scopes(tenant.ForTenant(appID)).First(&user, "id = ?", userID).Error; err != nil {
		return ErrUserNotFound
	}

	if password == "" {
		return ErrPasswordRequired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND app_id = ?", userID, appID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND app_id = ?", userID, appID).Delete(&models.Profile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}

func (s *AuthService) generateTokenPair(ctx context.Context, appID string, user *models.User, role string) (*dto.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(appID, user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(ctx, appID, user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: dto.UserResponse{
			ID:    user.ID,
			Email: user.Email,
			Role:  role,
		},
	}, nil
}

// generateAccessToken carries no role; the role is resolved per request.
func (s *AuthService) generateAccessToken(appID string, user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    user.ID.String(),
		"email":  user.Email,
		"app_id": appID,
		"iat":    now.Unix(),
		"exp":    now.Add(s.cfg.JWTAccessExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) generateRefreshToken(ctx context.Context, appID string, user *models.User) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)

	record := models.RefreshToken{
		ID:        uuid.New(),
		AppID:     appID,
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: time.Now().Add(s.cfg.JWTRefreshExpiry),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func validateRegistration(req *dto.RegisterRequest) (string, error) {
	email := normalizeEmail(req.Email)
	if email == "" || len(req.Password) < 8 {
		return "", ErrInvalidRegistration
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidRegistration
	}
	return email, nil
}

// signupRole applies the sign-up role policy. Self-registering as admin is
// refused unless the operator explicitly enabled it.
func signupRole(requested string, allowAdmin bool) (string, error) {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "", models.RoleUser:
		return models.RoleUser, nil
	case models.RoleAdmin:
		if !allowAdmin {
			return "", ErrAdminSignupDisabled
		}
		return models.RoleAdmin, nil
	default:
		return "", session.ErrInvalidRole
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
