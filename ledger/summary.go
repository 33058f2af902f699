package ledger

import (
	"context"
	"errors"

	"github.com/warp/leave-engine/domain"
)

// BalanceSummary describes one leave type for one employee.
type BalanceSummary struct {
	LeaveType     domain.LeaveTypeCode `json:"leaveType"`
	Name          string               `json:"name"`
	IsPaid        bool                 `json:"isPaid"`
	Quota         domain.Amount        `json:"quota"`
	QuotaSource   domain.QuotaSource   `json:"quotaSource"`
	PolicyID      domain.PolicyID      `json:"policyId,omitempty"`
	PolicyName    string               `json:"policyName,omitempty"`
	Balance       domain.Amount        `json:"balance"`
	HasLedger     bool                 `json:"hasLedger"`
	FinancialYear string               `json:"financialYear"`
	Used          domain.Amount        `json:"used"`
	Allocated     domain.Amount        `json:"allocated"`
	Restored      domain.Amount        `json:"restored"`
	Encashed      domain.Amount        `json:"encashed"`
	CarriedIn     domain.Amount        `json:"carriedIn"`
}

// GetBalanceSummary returns a summary for every active leave type, with
// usage/allocation/restoration totals for the current financial year.
func (e *Engine) GetBalanceSummary(ctx context.Context, companyID domain.CompanyID, employeeID domain.EmployeeID) (map[domain.LeaveTypeCode]BalanceSummary, error) {
	if e.catalog == nil || e.quotas == nil {
		return nil, errors.New("ledger: balance summary requires a catalog and quota resolver")
	}
	types, err := e.catalog.ListLeaveTypes(ctx, companyID, true)
	if err != nil {
		return nil, err
	}

	fy := e.fiscal.LabelFor(e.clock.Today())
	history, err := e.store.ListEntries(ctx, domain.EntryFilter{
		CompanyID:     companyID,
		EmployeeID:    employeeID,
		FinancialYear: fy,
	})
	if err != nil {
		return nil, err
	}

	summaries := make(map[domain.LeaveTypeCode]BalanceSummary, len(types))
	for _, lt := range types {
		key := domain.BalanceKey{CompanyID: companyID, EmployeeID: employeeID, LeaveType: lt.Code}

		res, err := e.quotas.ResolveQuotaIn(ctx, e.store, key)
		if err != nil {
			return nil, err
		}
		latest, err := e.store.LatestEntry(ctx, key)
		if err != nil {
			return nil, err
		}
		balance, err := e.CurrentBalance(ctx, key)
		if err != nil {
			return nil, err
		}

		s := BalanceSummary{
			LeaveType:     lt.Code,
			Name:          lt.Name,
			IsPaid:        lt.IsPaid,
			Quota:         res.Quota,
			QuotaSource:   res.Source,
			PolicyID:      res.PolicyID,
			PolicyName:    res.PolicyName,
			Balance:       balance,
			HasLedger:     latest != nil,
			FinancialYear: fy,
			Used:          domain.ZeroDays(),
			Allocated:     domain.ZeroDays(),
			Restored:      domain.ZeroDays(),
			Encashed:      domain.ZeroDays(),
			CarriedIn:     domain.ZeroDays(),
		}
		for _, entry := range history {
			if entry.LeaveType != lt.Code {
				continue
			}
			switch entry.TransactionType {
			case domain.TxUsed:
				s.Used = s.Used.Add(entry.Amount.Abs())
			case domain.TxAllocated:
				s.Allocated = s.Allocated.Add(entry.Amount)
			case domain.TxRestored:
				s.Restored = s.Restored.Add(entry.Amount)
			case domain.TxEncashed:
				s.Encashed = s.Encashed.Add(entry.Amount.Abs())
			case domain.TxCarryForward:
				s.CarriedIn = s.CarriedIn.Add(entry.Amount)
			}
		}
		summaries[lt.Code] = s
	}
	return summaries, nil
}
