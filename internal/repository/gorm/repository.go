package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hypercopy/internal/models"
	"hypercopy/internal/repository"
)

type Store struct {
	db *gorm.DB
}

var _ repository.PlanStore = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store is nil")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- plans -------------------------------------------------------------------

func (s *Store) UpsertPlan(ctx context.Context, plan *models.OrderPlan, created *models.ExecEvent) (*models.OrderPlan, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("store is nil")
	}
	if plan == nil || strings.TrimSpace(plan.IdempotencyKey) == "" {
		return nil, false, errors.New("plan with idempotency key is required")
	}
	var stored models.OrderPlan
	inserted := false
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		// A duplicate intent only touches updated_at, and never on a terminal plan.
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "order_plans.status NOT IN ?", Vars: []any{statusStrings(models.TerminalStatuses())}},
			}},
		}).Create(plan).Error
		if err != nil {
			return err
		}
		if err := tx.Where("idempotency_key = ?", plan.IdempotencyKey).First(&stored).Error; err != nil {
			return err
		}
		inserted = stored.ID == plan.ID
		if inserted && created != nil {
			created.PlanID = stored.ID
			if err := tx.Create(created).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &stored, inserted, nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*models.OrderPlan, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.OrderPlan
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetPlanByKey(ctx context.Context, key string) (*models.OrderPlan, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.OrderPlan
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", strings.TrimSpace(key)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) FindRecentPlan(ctx context.Context, userID, signalRef string, source models.Source, since time.Time) (*models.OrderPlan, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if strings.TrimSpace(signalRef) == "" {
		return nil, nil
	}
	var item models.OrderPlan
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND signal_ref = ? AND source = ? AND created_at >= ?", userID, signalRef, source, since).
		Order("created_at desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPlans(ctx context.Context, params repository.ListPlansParams) ([]models.OrderPlan, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyPlanFilters(s.db.WithContext(ctx).Model(&models.OrderPlan{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.OrderPlan
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPlans(ctx context.Context, params repository.ListPlansParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := applyPlanFilters(s.db.WithContext(ctx).Model(&models.OrderPlan{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListPlansByStatuses(ctx context.Context, statuses []models.PlanStatus, after *repository.PlanCursor, limit int) ([]models.OrderPlan, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.OrderPlan{}).
		Where("status IN ?", statusStrings(statuses))
	return listPage(query, after, normalizeLimit(limit, 500))
}

func (s *Store) ListArmedPlans(ctx context.Context, after *repository.PlanCursor, limit int) ([]models.OrderPlan, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.OrderPlan{}).
		Where("sl_price IS NOT NULL").
		Where("status IN ?", statusStrings([]models.PlanStatus{models.StatusSubmitted, models.StatusPartiallyFilled}))
	return listPage(query, after, normalizeLimit(limit, 500))
}

func listPage(query *gorm.DB, after *repository.PlanCursor, limit int) ([]models.OrderPlan, error) {
	if after != nil {
		query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var items []models.OrderPlan
	if err := query.Order("created_at asc").Order("id asc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SumNotionalSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var total decimal.NullDecimal
	row := s.db.WithContext(ctx).
		Model(&models.OrderPlan{}).
		Select("SUM(notional)").
		Where("user_id = ? AND created_at >= ? AND notional IS NOT NULL", userID, since).
		Where("status IN ?", statusStrings([]models.PlanStatus{
			models.StatusSubmitted,
			models.StatusPartiallyFilled,
			models.StatusFilled,
		})).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// --- claims & transitions ------------------------------------------------------

func (s *Store) ClaimPlan(ctx context.Context, id, owner string, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("store is nil")
	}
	if strings.TrimSpace(owner) == "" {
		return false, errors.New("claim owner is required")
	}
	res := s.db.WithContext(ctx).
		Model(&models.OrderPlan{}).
		Where("id = ? AND status = ? AND claimed_by = ''", id, models.StatusCreated).
		UpdateColumns(map[string]any{
			"claimed_by": owner,
			"claimed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ReleaseClaim(ctx context.Context, id, owner string) error {
	if s == nil || s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.WithContext(ctx).
		Model(&models.OrderPlan{}).
		Where("id = ? AND status = ? AND claimed_by = ?", id, models.StatusCreated, owner).
		UpdateColumns(map[string]any{
			"claimed_by": "",
			"claimed_at": nil,
		}).Error
}

func (s *Store) Transition(ctx context.Context, t repository.Transition) (*models.OrderPlan, *models.ExecEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil, errors.New("store is nil")
	}
	if err := models.CheckTransition(t.From, t.To); err != nil {
		return nil, nil, err
	}
	var plan models.OrderPlan
	var event models.ExecEvent
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", t.PlanID).First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrNotFound
			}
			return err
		}
		if plan.Status != t.From {
			return repository.ErrStatusConflict
		}

		at := t.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		at = at.UTC().Truncate(time.Microsecond)
		if !at.After(plan.UpdatedAt) {
			at = plan.UpdatedAt.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
		}

		updates := map[string]any{
			"status":     t.To,
			"updated_at": at,
		}
		if t.BrokerOrderID != nil {
			updates["broker_order_id"] = *t.BrokerOrderID
		}
		if t.Notional != nil {
			updates["notional"] = *t.Notional
		}
		if t.ReleaseClaim {
			updates["claimed_by"] = ""
			updates["claimed_at"] = nil
		}
		res := tx.Model(&models.OrderPlan{}).
			Where("id = ? AND status = ?", t.PlanID, t.From).
			UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return repository.ErrStatusConflict
		}

		event = models.ExecEvent{
			PlanID:     t.PlanID,
			At:         at,
			FromStatus: t.From,
			ToStatus:   t.To,
			Event:      t.Event,
			Reason:     t.Reason,
			Receipt:    t.Receipt,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		plan.Status = t.To
		plan.UpdatedAt = at
		if t.BrokerOrderID != nil {
			id := *t.BrokerOrderID
			plan.BrokerOrderID = &id
		}
		if t.Notional != nil {
			n := *t.Notional
			plan.Notional = &n
		}
		if t.ReleaseClaim {
			plan.ClaimedBy = ""
			plan.ClaimedAt = nil
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &plan, &event, nil
}

func (s *Store) ListEvents(ctx context.Context, planID string) ([]models.ExecEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ExecEvent
	if err := s.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("at asc").
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- system settings -------------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	var items []models.SystemSetting
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// --- helpers -----------------------------------------------------------------------

func applyPlanFilters(query *gorm.DB, params repository.ListPlansParams) *gorm.DB {
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Status != nil && *params.Status != "" {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Source != nil && *params.Source != "" {
		query = query.Where("source = ?", *params.Source)
	}
	return query
}

var sortableColumns = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"symbol":     {},
	"status":     {},
	"key":        {},
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if _, ok := sortableColumns[column]; !ok {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func statusStrings(items []models.PlanStatus) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, string(it))
	}
	return out
}
