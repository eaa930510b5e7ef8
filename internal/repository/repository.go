package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"hypercopy/internal/models"
)

var (
	ErrNotFound = errors.New("plan not found")
	// ErrStatusConflict means the plan's status changed between read and
	// write; nothing was persisted.
	ErrStatusConflict = errors.New("plan status changed concurrently")
)

// PlanStore persists order plans and their audit events. Every status change
// goes through Transition so the plan row and exactly one event are written
// together.
type PlanStore interface {
	// UpsertPlan inserts plan and its creation event unless a plan with the
	// same idempotency key exists, in which case only that plan's updated_at
	// is refreshed (non-terminal plans only). It returns the stored plan and
	// whether this call inserted it.
	UpsertPlan(ctx context.Context, plan *models.OrderPlan, created *models.ExecEvent) (*models.OrderPlan, bool, error)
	GetPlan(ctx context.Context, id string) (*models.OrderPlan, error)
	GetPlanByKey(ctx context.Context, key string) (*models.OrderPlan, error)
	FindRecentPlan(ctx context.Context, userID, signalRef string, source models.Source, since time.Time) (*models.OrderPlan, error)
	ListPlans(ctx context.Context, params ListPlansParams) ([]models.OrderPlan, error)
	CountPlans(ctx context.Context, params ListPlansParams) (int64, error)
	// ListPlansByStatuses and ListArmedPlans return one page ordered by
	// (created_at, id). Pass the cursor of the last row to get the next page;
	// nil starts from the oldest plan.
	ListPlansByStatuses(ctx context.Context, statuses []models.PlanStatus, after *PlanCursor, limit int) ([]models.OrderPlan, error)
	ListArmedPlans(ctx context.Context, after *PlanCursor, limit int) ([]models.OrderPlan, error)
	SumNotionalSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)

	// ClaimPlan reserves a created, unclaimed plan for owner. Exactly one
	// concurrent caller gets true.
	ClaimPlan(ctx context.Context, id, owner string, at time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id, owner string) error

	Transition(ctx context.Context, t Transition) (*models.OrderPlan, *models.ExecEvent, error)
	ListEvents(ctx context.Context, planID string) ([]models.ExecEvent, error)

	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)

	Ping(ctx context.Context) error
}

// Transition is a compare-and-set status change plus its audit event. From
// must match the stored status or ErrStatusConflict is returned.
type Transition struct {
	PlanID  string
	From    models.PlanStatus
	To      models.PlanStatus
	Event   models.EventKind
	Reason  string
	Receipt datatypes.JSON
	At      time.Time

	BrokerOrderID *string
	Notional      *decimal.Decimal
	// ReleaseClaim clears claimed_by/claimed_at in the same write.
	ReleaseClaim bool
}

// PlanCursor is a keyset position in (created_at, id) order.
type PlanCursor struct {
	CreatedAt time.Time
	ID        string
}

func CursorAfter(plan *models.OrderPlan) *PlanCursor {
	return &PlanCursor{CreatedAt: plan.CreatedAt, ID: plan.ID}
}

type ListPlansParams struct {
	Limit   int
	Offset  int
	UserID  *string
	Status  *models.PlanStatus
	Symbol  *string
	Source  *models.Source
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
