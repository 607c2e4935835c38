// Package settings stores runtime feature switches in the repository.
package settings

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"papertrade/internal/apperr"
	"papertrade/internal/models"
	"papertrade/internal/repository"
)

const (
	FeatureRiskMonitor     = "feature.risk_monitor"
	FeatureInterestAccrual = "feature.interest_accrual"
	FeatureOpenPositions   = "feature.open_positions"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureRiskMonitor:     true,
		FeatureInterestAccrual: true,
		FeatureOpenPositions:   true,
	}
}

// Known reports whether key is one of the managed switches.
func Known(key string) bool {
	_, ok := DefaultFeatureSwitches()[strings.TrimSpace(key)]
	return ok
}

type Service struct {
	Repo repository.SettingsRepository
}

func New(repo repository.SettingsRepository) *Service {
	return &Service{Repo: repo}
}

// EnsureDefaults writes every switch that is not stored yet. Stored values
// are never overwritten.
func (s *Service) EnsureDefaults(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	keys := make([]string, 0, len(DefaultFeatureSwitches()))
	for key := range DefaultFeatureSwitches() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.put(ctx, key, DefaultFeatureSwitches()[key]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

// Enabled is IsEnabled with the registered default as fallback.
func (s *Service) Enabled(ctx context.Context, key string) bool {
	return s.IsEnabled(ctx, key, DefaultFeatureSwitches()[strings.TrimSpace(key)])
}

func (s *Service) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if !Known(key) {
		return errors.Wrapf(apperr.ErrNotFound, "setting %q", key)
	}
	return s.put(ctx, key, enabled)
}

func (s *Service) Get(ctx context.Context, key string) (*models.SystemSetting, error) {
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.Wrapf(apperr.ErrNotFound, "setting %q", key)
	}
	return item, nil
}

func (s *Service) List(ctx context.Context) ([]models.SystemSetting, error) {
	prefix := "feature."
	return s.Repo.ListSystemSettings(ctx, repository.ListSystemSettingsParams{Prefix: &prefix})
}

func (s *Service) put(ctx context.Context, key string, enabled bool) error {
	raw, _ := json.Marshal(enabled)
	now := time.Now().UTC()
	return s.Repo.UpsertSystemSetting(ctx, &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
