package db

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/rtbengine/internal/models"
)

var (
	// ErrBudgetExceeded is returned when a spend increment would push a
	// campaign past its budget. The ledger is left unchanged.
	ErrBudgetExceeded = errors.New("spend would exceed campaign budget")
	// ErrInvalidAmount is returned for negative spend increments.
	ErrInvalidAmount = errors.New("spend amount must be non-negative")
)

// SpendLedger atomically records confirmed spend against a campaign budget.
// IncrementSpend returns the campaign's new total spend.
type SpendLedger interface {
	IncrementSpend(ctx context.Context, campaignID string, amount float64) (float64, error)
}

// CampaignLoader reads the full campaign set from durable storage.
type CampaignLoader interface {
	LoadCampaigns(ctx context.Context) ([]models.Campaign, error)
}

// WithMarkupCheck wraps loader so that a campaign whose ads use macros checker
// cannot expand fails the load with models.ErrInvalidCampaign.
func WithMarkupCheck(loader CampaignLoader, checker models.MarkupChecker) CampaignLoader {
	return markupCheckedLoader{loader: loader, checker: checker}
}

type markupCheckedLoader struct {
	loader  CampaignLoader
	checker models.MarkupChecker
}

func (l markupCheckedLoader) LoadCampaigns(ctx context.Context) ([]models.Campaign, error) {
	campaigns, err := l.loader.LoadCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	for i := range campaigns {
		if err := models.ValidateAdMarkup(&campaigns[i], l.checker); err != nil {
			return nil, err
		}
	}
	return campaigns, nil
}

// BudgetSyncer mirrors campaign budgets into a secondary ledger after a reload.
// SyncBudgets returns the spend the ledger holds for each campaign, keyed by id.
type BudgetSyncer interface {
	SyncBudgets(ctx context.Context, campaigns []models.Campaign) (map[string]float64, error)
}

// ReloadSnapshot loads campaigns and atomically swaps them into store. The
// previous snapshot stays in place if loading or validation fails. Syncers run
// only after a successful swap, and the spend they report replaces the loaded
// TotalSpent so exhausted campaigns stay ineligible.
func ReloadSnapshot(ctx context.Context, loader CampaignLoader, store *models.CampaignStore, syncers ...BudgetSyncer) (int, error) {
	campaigns, err := loader.LoadCampaigns(ctx)
	if err != nil {
		return 0, fmt.Errorf("load campaigns: %w", err)
	}
	if err := store.ReloadAll(campaigns); err != nil {
		return 0, fmt.Errorf("swap snapshot: %w", err)
	}
	for _, s := range syncers {
		if s == nil {
			continue
		}
		spent, err := s.SyncBudgets(ctx, campaigns)
		if err != nil {
			return len(campaigns), fmt.Errorf("sync budgets: %w", err)
		}
		store.ApplySpend(spent)
	}
	zap.L().Info("campaign snapshot reloaded", zap.Int("campaigns", len(campaigns)))
	return len(campaigns), nil
}
