package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errDuplicateUsage = errors.New("usage already recorded for request")

// Service enforces per-user token budgets on top of the users and usage_records tables
type Service struct {
	db    *gorm.DB
	plans Plans
	now   func() time.Time
}

func NewService(db *gorm.DB, plans Plans) *Service {
	if plans == nil {
		plans = DefaultPlans()
	}
	return &Service{db: db, plans: plans, now: time.Now}
}

// WithClock replaces the time source used for period boundaries
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&models.User{}, &models.UsageRecord{})
}

func (s *Service) Plans() Plans {
	return s.plans
}

// UpsertUser creates a user on plan, or moves an existing user to plan
func (s *Service) UpsertUser(ctx context.Context, userID string, plan models.PlanTier) (*models.User, error) {
	user := models.User{
		ID:               userID,
		Plan:             plan,
		UsagePeriodStart: monthStart(s.now()),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.getUser(ctx, s.db, userID)
}

func (s *Service) getUser(ctx context.Context, db *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CanSpend checks whether userID may spend estimatedTokens. The per-request
// ceiling is checked before the monthly balance.
func (s *Service) CanSpend(ctx context.Context, userID string, estimatedTokens int64) (models.SpendCheck, error) {
	user, err := s.getUser(ctx, s.db, userID)
	if err != nil {
		return models.SpendCheck{}, err
	}
	if user == nil {
		return models.SpendCheck{Reason: models.QuotaReasonNoUser}, nil
	}

	limits := s.plans.Limits(user.Plan)
	remaining := max(limits.MonthlyTokenLimit-user.MonthlyTokenUsed, 0)
	check := models.SpendCheck{
		OK:        true,
		Remaining: remaining,
		Limit:     limits.MonthlyTokenLimit,
		Plan:      user.Plan,
	}

	if estimatedTokens > limits.PerRequestMaxTokens {
		check.OK = false
		check.Reason = models.QuotaReasonPerRequestTooLarge
		check.Limit = limits.PerRequestMaxTokens
		check.WouldExceedBy = estimatedTokens - limits.PerRequestMaxTokens
		return check, nil
	}

	if over := user.MonthlyTokenUsed + estimatedTokens - limits.MonthlyTokenLimit; over > 0 {
		check.OK = false
		check.Reason = models.QuotaReasonOverLimit
		check.WouldExceedBy = over
		return check, nil
	}

	return check, nil
}

// RecordUsage appends a usage record and increments the user's monthly counter
// in one transaction. A replayed (userID, requestID) pair is a no-op.
func (s *Service) RecordUsage(ctx context.Context, params models.RecordUsageParams) (models.RecordUsageResult, error) {
	record := models.UsageRecord{
		UserID:    params.UserID,
		Provider:  params.Provider,
		Model:     params.Model,
		TokensIn:  params.TokensIn,
		TokensOut: params.TokensOut,
		CostUSD:   params.CostUSD,
	}
	if params.RequestID != "" {
		requestID := params.RequestID
		record.RequestID = &requestID
	}

	var newUsed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if record.RequestID != nil {
			var existing int64
			if err := tx.Model(&models.UsageRecord{}).
				Where("user_id = ? AND request_id = ?", record.UserID, *record.RequestID).
				Count(&existing).Error; err != nil {
				return fmt.Errorf("failed to check existing usage: %w", err)
			}
			if existing > 0 {
				return errDuplicateUsage
			}
		}

		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateUsage
			}
			return fmt.Errorf("failed to create usage record: %w", err)
		}

		tokens := int64(params.TokensIn + params.TokensOut)
		result := tx.Model(&models.User{}).
			Where("id = ?", params.UserID).
			Update("monthly_token_used", gorm.Expr("monthly_token_used + ?", tokens))
		if result.Error != nil {
			return fmt.Errorf("failed to increment monthly usage: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.NewNotFoundError("user " + params.UserID)
		}

		return tx.Model(&models.User{}).
			Where("id = ?", params.UserID).
			Select("monthly_token_used").
			Scan(&newUsed).Error
	})

	if errors.Is(err, errDuplicateUsage) {
		fiberlog.Infof("[%s] Quota: usage already recorded for user %s, skipping", params.RequestID, params.UserID)
		user, getErr := s.getUser(ctx, s.db, params.UserID)
		if getErr != nil {
			return models.RecordUsageResult{}, getErr
		}
		if user != nil {
			newUsed = user.MonthlyTokenUsed
		}
		return models.RecordUsageResult{Saved: false, NewMonthlyUsed: newUsed}, nil
	}
	if err != nil {
		return models.RecordUsageResult{}, err
	}

	return models.RecordUsageResult{Saved: true, NewMonthlyUsed: newUsed}, nil
}

// GetUsageSummary returns nil when the user does not exist
func (s *Service) GetUsageSummary(ctx context.Context, userID string) (*models.UsageSummary, error) {
	user, err := s.getUser(ctx, s.db, userID)
	if err != nil || user == nil {
		return nil, err
	}

	limits := s.plans.Limits(user.Plan)
	summary := &models.UsageSummary{
		Used:      user.MonthlyTokenUsed,
		Limit:     limits.MonthlyTokenLimit,
		Remaining: max(limits.MonthlyTokenLimit-user.MonthlyTokenUsed, 0),
		Plan:      user.Plan,
	}
	if limits.MonthlyTokenLimit > 0 {
		summary.Percent = float64(user.MonthlyTokenUsed) / float64(limits.MonthlyTokenLimit) * 100
	}
	return summary, nil
}

// ResetMonthlyUsage zeroes counters whose period started before the current
// month and returns the number of users reset.
func (s *Service) ResetMonthlyUsage(ctx context.Context, now time.Time) (int64, error) {
	start := monthStart(now)
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("usage_period_start < ?", start).
		Updates(map[string]any{
			"monthly_token_used": 0,
			"usage_period_start": start,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset monthly usage: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
