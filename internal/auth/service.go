package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	cost   int
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cost: bcrypt.DefaultCost, logger: logger}
}

// WithCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a company and its first user.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Profile, error) {
	req.Email = normalizeEmail(req.Email)
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := shared.ValidateStruct(req); err != nil {
		return Profile{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return Profile{}, err
	}
	user := &User{Email: req.Email, FullName: req.FullName, PasswordHash: string(hash)}
	company, err := s.repo.CreateCompanyWithUser(ctx, req.CompanyName, user)
	if err != nil {
		return Profile{}, err
	}
	s.logger.Info("company registered",
		slog.Int64("company_id", company.ID),
		slog.Int64("user_id", user.ID))
	return Profile{User: *user, Company: company}, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// CurrentUser returns the profile of the signed-in caller.
func (s *Service) CurrentUser(ctx context.Context) (Profile, error) {
	id, err := shared.RequireIdentity(ctx)
	if err != nil {
		return Profile{}, err
	}
	p, err := s.Profile(ctx, id.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		return Profile{}, shared.ErrUnauthorized
	}
	return p, err
}

// Profile loads a user with their company.
func (s *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	return s.repo.Profile(ctx, userID)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
