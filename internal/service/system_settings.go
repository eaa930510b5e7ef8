package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"hypercopy/internal/models"
	"hypercopy/internal/repository"
)

const (
	FeatureSubmissionSweep = "feature.submission_sweep"
	FeatureStopLossMonitor = "feature.stoploss_monitor"
	FeatureResumeOnStartup = "feature.resume_on_startup"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureSubmissionSweep: true,
		FeatureStopLossMonitor: true,
		FeatureResumeOnStartup: true,
	}
}

// FeatureSwitch is one runtime switch as reported to operators.
type FeatureSwitch struct {
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SystemSettingsService struct {
	Store repository.PlanStore
}

// EnsureDefaultSwitches seeds missing switches. Existing values are left
// alone so an operator's choice survives restarts.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Store == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Store.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Store.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Store == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Store.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Store == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	now := time.Now().UTC()
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.Store.UpsertSystemSetting(ctx, item)
}

// ListSwitches reports every known switch, falling back to its default
// when it was never stored.
func (s *SystemSettingsService) ListSwitches(ctx context.Context) ([]FeatureSwitch, error) {
	defaults := DefaultFeatureSwitches()
	out := make([]FeatureSwitch, 0, len(defaults))
	for key, def := range defaults {
		sw := FeatureSwitch{Name: key, Enabled: def}
		if s != nil && s.Store != nil {
			item, err := s.Store.GetSystemSettingByKey(ctx, key)
			if err != nil {
				return nil, err
			}
			if item != nil {
				var enabled bool
				if err := json.Unmarshal(item.Value, &enabled); err == nil {
					sw.Enabled = enabled
				}
				sw.UpdatedAt = item.UpdatedAt
			}
		}
		out = append(out, sw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func IsKnownSwitch(name string) bool {
	_, ok := DefaultFeatureSwitches()[strings.TrimSpace(name)]
	return ok
}
