package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/blicence/streamlock/balance"
	"github.com/blicence/streamlock/id"
	"github.com/blicence/streamlock/lock"
	"github.com/blicence/streamlock/types"
)

// ==================== Lock models ====================

type lockModel struct {
	grove.BaseModel `grove:"table:streamlock_locks"`

	ID              string    `grove:"id,pk"`
	Payer           string    `grove:"payer"`
	Recipient       string    `grove:"recipient"`
	Asset           string    `grove:"asset"`
	TotalAmount     int64     `grove:"total_amount"`
	StartTime       time.Time `grove:"start_time"`
	DurationNS      int64     `grove:"duration_ns"`
	StreamType      string    `grove:"stream_type"`
	CliffTime       time.Time `grove:"cliff_time"`
	ImmediateAmount int64     `grove:"immediate_amount"`
	UsageCount      int64     `grove:"usage_count"`
	UsedCount       int64     `grove:"used_count"`
	Active          bool      `grove:"active"`
	Settled         bool      `grove:"settled"`
	PlanKey         string    `grove:"plan_key"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toLockModel(l *lock.Lock) *lockModel {
	return &lockModel{
		ID:              l.ID.String(),
		Payer:           l.Payer,
		Recipient:       l.Recipient,
		Asset:           l.Asset,
		TotalAmount:     l.TotalAmount.Value,
		StartTime:       l.StartTime,
		DurationNS:      int64(l.Duration),
		StreamType:      string(l.StreamType),
		CliffTime:       l.CliffTime,
		ImmediateAmount: l.ImmediateAmount.Value,
		UsageCount:      l.UsageCount,
		UsedCount:       l.UsedCount,
		Active:          l.Active,
		Settled:         l.Settled,
		PlanKey:         l.PlanKey,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func fromLockModel(m *lockModel) (*lock.Lock, error) {
	lockID, err := id.ParseLockID(m.ID)
	if err != nil {
		return nil, err
	}

	return &lock.Lock{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              lockID,
		Payer:           m.Payer,
		Recipient:       m.Recipient,
		Asset:           m.Asset,
		TotalAmount:     types.New(m.TotalAmount, m.Asset),
		StartTime:       m.StartTime,
		Duration:        time.Duration(m.DurationNS),
		StreamType:      lock.StreamType(m.StreamType),
		CliffTime:       m.CliffTime,
		ImmediateAmount: types.New(m.ImmediateAmount, m.Asset),
		UsageCount:      m.UsageCount,
		UsedCount:       m.UsedCount,
		Active:          m.Active,
		Settled:         m.Settled,
		PlanKey:         m.PlanKey,
	}, nil
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:streamlock_balances"`

	Account   string    `grove:"account,pk"`
	Asset     string    `grove:"asset,pk"`
	Locked    int64     `grove:"locked"`
	Unlocked  int64     `grove:"unlocked"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func fromBalanceModel(m *balanceModel) *balance.Record {
	return &balance.Record{
		Account:  m.Account,
		Asset:    m.Asset,
		Locked:   types.New(m.Locked, m.Asset),
		Unlocked: types.New(m.Unlocked, m.Asset),
	}
}

// ==================== Authorization models ====================

type authorizedCallerModel struct {
	grove.BaseModel `grove:"table:streamlock_authorized_callers"`

	Account   string    `grove:"account,pk"`
	CreatedAt time.Time `grove:"created_at"`
}

// ==================== Parameter models ====================

// paramsModel is a single-row table; id is always 1.
type paramsModel struct {
	grove.BaseModel `grove:"table:streamlock_params"`

	ID            int       `grove:"id,pk"`
	MinAmount     int64     `grove:"min_amount"`
	MinDurationNS int64     `grove:"min_duration_ns"`
	MaxDurationNS int64     `grove:"max_duration_ns"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toParamsModel(p lock.Params, at time.Time) *paramsModel {
	return &paramsModel{
		ID:            1,
		MinAmount:     p.MinAmount,
		MinDurationNS: int64(p.MinDuration),
		MaxDurationNS: int64(p.MaxDuration),
		UpdatedAt:     at,
	}
}

func fromParamsModel(m *paramsModel) *lock.Params {
	return &lock.Params{
		MinAmount:   m.MinAmount,
		MinDuration: time.Duration(m.MinDurationNS),
		MaxDuration: time.Duration(m.MaxDurationNS),
	}
}
