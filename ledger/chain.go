package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/domain"
)

// ChainViolation is the first entry that breaks a ledger invariant.
type ChainViolation struct {
	EntryID  domain.EntryID `json:"entryId"`
	Sequence int64          `json:"sequence"`
	Rule     string         `json:"rule"` // "arithmetic" or "continuity"
	Expected domain.Amount  `json:"expected"`
	Actual   domain.Amount  `json:"actual"`
}

func (v *ChainViolation) Error() string {
	return fmt.Sprintf("ledger %s violation at sequence %d (%s): expected %s, got %s",
		v.Rule, v.Sequence, v.EntryID, v.Expected, v.Actual)
}

// CheckChain validates entries of a single key in sequence order.
func CheckChain(entries []domain.LedgerEntry) *ChainViolation {
	prev := domain.ZeroDays()
	for _, e := range entries {
		if !e.BalanceBefore.Equal(prev) {
			return &ChainViolation{EntryID: e.ID, Sequence: e.Sequence, Rule: "continuity", Expected: prev, Actual: e.BalanceBefore}
		}
		if want := e.BalanceBefore.Add(e.Amount); !e.BalanceAfter.Equal(want) {
			return &ChainViolation{EntryID: e.ID, Sequence: e.Sequence, Rule: "arithmetic", Expected: want, Actual: e.BalanceAfter}
		}
		prev = e.BalanceAfter
	}
	return nil
}

// VerifyChain loads the key's history and returns its first violation, or nil.
func (e *Engine) VerifyChain(ctx context.Context, key domain.BalanceKey) (*ChainViolation, error) {
	entries, err := e.store.ListEntries(ctx, domain.EntryFilter{
		CompanyID:  key.CompanyID,
		EmployeeID: key.EmployeeID,
		LeaveType:  key.LeaveType,
	})
	if err != nil {
		return nil, err
	}
	v := CheckChain(entries)
	if v != nil {
		e.logger.Error("ledger chain broken", zap.String("key", key.String()), zap.Error(v))
	}
	return v, nil
}

// Reconcile rebuilds the key's projection from its ledger. With no entries
// the existing projection is returned untouched (nil when absent).
func (e *Engine) Reconcile(ctx context.Context, key domain.BalanceKey) (*domain.EmployeeLeaveBalance, error) {
	var rebuilt *domain.EmployeeLeaveBalance
	err := e.store.WithTx(ctx, func(s domain.Store) error {
		unlock := e.locks.lock(key)
		defer unlock()

		entries, err := s.ListEntries(ctx, domain.EntryFilter{
			CompanyID:  key.CompanyID,
			EmployeeID: key.EmployeeID,
			LeaveType:  key.LeaveType,
		})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			rebuilt, err = s.GetProjection(ctx, key)
			return err
		}

		p := domain.EmployeeLeaveBalance{
			CompanyID:  key.CompanyID,
			EmployeeID: key.EmployeeID,
			LeaveType:  key.LeaveType,
			Total:      domain.ZeroDays(),
			Used:       domain.ZeroDays(),
		}
		for _, entry := range entries {
			applyEntry(&p, entry, false)
		}
		p.UpdatedAt = e.clock.Now()
		if err := s.SaveProjection(ctx, p); err != nil {
			return err
		}
		rebuilt = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rebuilt, nil
}
