// Package account manages the user lifecycle: onboarding, the current-user
// lookup and reset.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/puffquest/puffquest/internal/app/engagement"
	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/metrics"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

// DefaultCurrency is used when onboarding leaves the currency empty.
const DefaultCurrency = "USD"

// Service creates, looks up and deletes users.
type Service struct {
	db     *sqlite.DB
	stats  *stats.Service
	game   *engagement.Service
	logger *zap.Logger
}

// NewService creates an account service.
func NewService(db *sqlite.DB, st *stats.Service, game *engagement.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, stats: st, game: game, logger: logger.Named("account")}
}

// CompleteOnboarding validates the input, creates the user with zero XP and
// coins, and makes sure the achievement catalog exists.
func (s *Service) CompleteOnboarding(ctx context.Context, data domain.OnboardingData) (domain.User, error) {
	data.DisplayName = strings.TrimSpace(data.DisplayName)
	if err := data.Validate(); err != nil {
		return domain.User{}, err
	}
	method, err := domain.ParseMethod(string(data.Method))
	if err != nil {
		return domain.User{}, domain.NewValidationError("method", err.Error())
	}
	currency := strings.ToUpper(strings.TrimSpace(data.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	user := domain.User{
		ID:          uuid.New(),
		DisplayName: data.DisplayName,
		Method:      method,
		DailyLimit:  data.DailyLimit,
		PackSize:    data.PackSize,
		PackCost:    data.PackCost,
		Currency:    currency,
		CreatedAt:   s.stats.Now(),
	}
	if err := s.db.InsertUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("onboarding: %w", err)
	}
	if err := s.game.BootstrapCatalog(ctx); err != nil {
		return domain.User{}, fmt.Errorf("onboarding: %w", err)
	}

	metrics.UsersOnboarded.WithLabelValues(string(method)).Inc()
	s.logger.Info("user onboarded",
		zap.String("user_id", user.ID.String()),
		zap.String("method", string(method)),
		zap.Int("daily_limit", user.DailyLimit),
	)
	return user, nil
}

// CurrentUser returns the oldest user, or nil when nobody has onboarded.
// A storage failure is logged and treated as "no user" so the caller falls
// back to onboarding.
func (s *Service) CurrentUser(ctx context.Context) (*domain.User, error) {
	u, err := s.db.FirstUser(ctx)
	if err != nil {
		if domain.IsStorageError(err) {
			s.logger.Warn("current user lookup failed, assuming none", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// GetUser returns the user or ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (domain.User, error) {
	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if u == nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *u, nil
}

// Reset deletes the user with their entries, streak, achievements and
// reward history, and drops their cached counts.
func (s *Service) Reset(ctx context.Context, id uuid.UUID) error {
	unlock := s.game.Locks().Lock(id)
	defer unlock()

	if err := s.db.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("reset: %w", err)
	}
	s.stats.Forget(ctx, id)
	s.logger.Info("user reset", zap.String("user_id", id.String()))
	return nil
}
