package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

// Reward history page size bounds.
const (
	DefaultRewardLimit = 20
	MaxRewardLimit     = 200
)

// grant appends one award to the reward ledger. Zero awards are not recorded.
func grant(ctx context.Context, tx *sqlite.Store, userID uuid.UUID, day string, source domain.XPSource, ref string, xp, coins int64, at time.Time) (domain.RewardEntry, error) {
	if xp < 0 || coins < 0 {
		return domain.RewardEntry{}, fmt.Errorf("negative award %d xp / %d coins", xp, coins)
	}
	r := domain.RewardEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Day:       day,
		Source:    source,
		Reference: ref,
		XP:        xp,
		Coins:     coins,
		CreatedAt: at,
	}
	if xp == 0 && coins == 0 {
		return r, nil
	}
	if err := tx.InsertReward(ctx, r); err != nil {
		return domain.RewardEntry{}, fmt.Errorf("record %s reward: %w", source, err)
	}
	return r, nil
}

// Rewards returns the user's most recent awards, newest first.
func (s *Service) Rewards(ctx context.Context, userID uuid.UUID, limit int) ([]domain.RewardEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultRewardLimit
	case limit > MaxRewardLimit:
		limit = MaxRewardLimit
	}
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return s.db.ListRewards(ctx, userID, limit)
}
