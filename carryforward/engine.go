/*
Package carryforward rolls unused leave into the next financial year.

EXECUTION (per employee, one store transaction):
  1. expired        close the old year: the whole positive balance lapses
  2. carry_forward  min(balance, maxDays), tagged with the new year and
                    an expiry date validityMonths after it starts
  3. allocated      the configured newAllocation for the new year

  The projection ends at total = newAllocation + carry, used = 0.

CUSTOM POLICIES:
  An active policy covering the employee overrides the rule book for its
  leave type. Settings.CarryForward false skips the type. Otherwise a
  positive MaxCarryForwardDays replaces the cap and the policy's annual
  quota is the new allocation.

IDEMPOTENCY:
  Steps 1 and 2 are keyed by employee, leave type and year, so running a
  year twice fails with duplicate_entry and changes nothing. An allocation
  already recorded for the new year is kept and not granted again.
*/
package carryforward

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/batch"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/ledger"
)

// Result is the carry-forward outcome for one leave type.
type Result struct {
	LeaveType          domain.LeaveTypeCode `json:"leaveType"`
	FromBalance        domain.Amount        `json:"fromBalance"`
	CarryForwardAmount domain.Amount        `json:"carryForwardAmount"`
	ExpiryDate         domain.TimePoint     `json:"expiryDate"`
	FinancialYear      string               `json:"financialYear"` // destination year
	NewAllocation      domain.Amount        `json:"newAllocation"`
	NewBalance         domain.Amount        `json:"newBalance"`
}

type Engine struct {
	store       domain.Store
	ledger      *ledger.Engine
	directory   domain.EmployeeDirectory
	catalog     domain.LeaveTypeCatalog
	rules       *config.RuleBook
	concurrency int
	logger      *zap.Logger
}

func NewEngine(store domain.Store, lg *ledger.Engine, directory domain.EmployeeDirectory, catalog domain.LeaveTypeCatalog, rules *config.RuleBook, concurrency int, logger ...*zap.Logger) *Engine {
	l := zap.L().Named("carryforward.engine")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("carryforward.engine")
	}
	if rules == nil {
		rules = config.NewRuleBook(config.Rules{}, nil)
	}
	return &Engine{
		store:       store,
		ledger:      lg,
		directory:   directory,
		catalog:     catalog,
		rules:       rules,
		concurrency: concurrency,
		logger:      l,
	}
}

// Calculate previews the carry-forward out of the financial year starting
// in fromYear. It writes nothing.
func (e *Engine) Calculate(ctx context.Context, actor domain.Actor, employeeID domain.EmployeeID, fromYear int) ([]Result, error) {
	emp, err := e.directory.FindEmployee(ctx, actor.CompanyID, string(employeeID))
	if err != nil {
		return nil, err
	}
	if emp.ID != actor.EmployeeID && emp.ExternalUserID != actor.UserID && !actor.Can(domain.CapViewAll) {
		return nil, domain.Forbidden("balance_forbidden", "you cannot view another employee's carry-forward")
	}
	types, err := e.eligibleTypes(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	return e.calculate(ctx, e.ledger, e.store, emp, fromYear, types)
}

// Execute applies the carry-forward for one employee.
func (e *Engine) Execute(ctx context.Context, actor domain.Actor, employeeID domain.EmployeeID, fromYear int) ([]Result, error) {
	if err := requireManageBalances(actor); err != nil {
		return nil, err
	}
	emp, err := e.directory.FindEmployee(ctx, actor.CompanyID, string(employeeID))
	if err != nil {
		return nil, err
	}
	types, err := e.eligibleTypes(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, actor, emp, fromYear, types)
}

// ExecuteForCompany runs Execute for every active employee. One employee's
// failure is reported and does not stop the rest.
func (e *Engine) ExecuteForCompany(ctx context.Context, actor domain.Actor, fromYear int) (domain.BatchResult[[]Result], error) {
	if err := requireManageBalances(actor); err != nil {
		return domain.BatchResult[[]Result]{}, err
	}
	employees, err := e.directory.ListActiveEmployees(ctx, actor.CompanyID)
	if err != nil {
		return domain.BatchResult[[]Result]{}, err
	}
	types, err := e.eligibleTypes(ctx, actor.CompanyID)
	if err != nil {
		return domain.BatchResult[[]Result]{}, err
	}

	e.logger.Info("company carry-forward started",
		zap.String("company_id", string(actor.CompanyID)),
		zap.Int("from_year", fromYear),
		zap.Int("employees", len(employees)),
	)
	result := batch.Run(ctx, actor.CompanyID, employees, e.concurrency, func(ctx context.Context, emp domain.Employee) ([]Result, error) {
		return e.execute(ctx, actor, &emp, fromYear, types)
	})
	e.logger.Info("company carry-forward finished",
		zap.String("company_id", string(actor.CompanyID)),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, actor domain.Actor, emp *domain.Employee, fromYear int, types []domain.LeaveTypeCode) ([]Result, error) {
	fiscal := e.ledger.Fiscal()
	fromLabel := fiscal.Label(fromYear)

	var results []Result
	err := e.store.WithTx(ctx, func(tx domain.Store) error {
		lg := e.ledger.In(tx)
		planned, err := e.calculate(ctx, lg, tx, emp, fromYear, types)
		if err != nil {
			return err
		}
		for i := range planned {
			r := &planned[i]
			key := domain.BalanceKey{CompanyID: emp.CompanyID, EmployeeID: emp.ID, LeaveType: r.LeaveType}

			if _, err := lg.RecordExpiry(ctx, ledger.ExpiryInput{Key: key, FinancialYear: fromLabel, Actor: actor.UserID}); err != nil {
				return err
			}
			expiry := r.ExpiryDate
			entry, err := lg.RecordCarryForward(ctx, ledger.CarryForwardInput{
				Key:        key,
				Days:       r.CarryForwardAmount,
				FromYear:   fromLabel,
				ToYear:     r.FinancialYear,
				ExpiryDate: &expiry,
				Actor:      actor.UserID,
			})
			if err != nil {
				return err
			}
			r.NewBalance = entry.BalanceAfter

			if r.NewAllocation.IsPositive() {
				alloc, err := lg.RecordAllocation(ctx, ledger.AllocationInput{
					Key:           key,
					Days:          r.NewAllocation,
					FinancialYear: r.FinancialYear,
					Actor:         actor.UserID,
				})
				switch {
				case err == nil:
					r.NewBalance = alloc.BalanceAfter
				case domain.CodeOf(err) == "duplicate_entry":
					e.logger.Debug("allocation already recorded",
						zap.String("key", key.String()),
						zap.String("financial_year", r.FinancialYear),
					)
					r.NewAllocation = domain.ZeroDays()
				default:
					return err
				}
			}
		}
		results = planned
		return nil
	})
	if err != nil {
		e.logger.Warn("carry-forward failed",
			zap.String("employee_id", string(emp.ID)),
			zap.String("from_year", fromLabel),
			zap.Error(err),
		)
		return nil, err
	}

	e.logger.Info("carry-forward executed",
		zap.String("employee_id", string(emp.ID)),
		zap.String("from_year", fromLabel),
		zap.Int("leave_types", len(results)),
	)
	return results, nil
}

// calculate reads balances through lg and policies through ps so execute
// sees its own transaction.
func (e *Engine) calculate(ctx context.Context, lg *ledger.Engine, ps domain.PolicyStore, emp *domain.Employee, fromYear int, types []domain.LeaveTypeCode) ([]Result, error) {
	fiscal := lg.Fiscal()
	next := fiscal.Period(fromYear + 1)

	results := []Result{}
	for _, code := range types {
		rule, ok := e.rules.CarryForward(emp.CompanyID, code)
		if !ok {
			continue
		}
		key := domain.BalanceKey{CompanyID: emp.CompanyID, EmployeeID: emp.ID, LeaveType: code}
		balance, err := lg.CurrentBalance(ctx, key)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(rule.MinBalanceAmount()) {
			continue
		}
		maxDays, allocation := rule.MaxAmount(), rule.AllocationAmount()
		custom, err := coveringPolicy(ctx, ps, key)
		if err != nil {
			return nil, err
		}
		if custom != nil {
			if !custom.Settings.CarryForward {
				continue
			}
			if custom.Settings.MaxCarryForwardDays.IsPositive() {
				maxDays = custom.Settings.MaxCarryForwardDays
			}
			allocation = custom.AnnualQuota
		}
		carry := balance.Min(maxDays)
		if !carry.IsPositive() {
			continue
		}
		results = append(results, Result{
			LeaveType:          code,
			FromBalance:        balance,
			CarryForwardAmount: carry,
			ExpiryDate:         next.Start.AddMonths(rule.ValidityMonths),
			FinancialYear:      fiscal.Label(fromYear + 1),
			NewAllocation:      allocation,
			NewBalance:         carry.Add(allocation),
		})
	}
	return results, nil
}

// coveringPolicy is the oldest active custom policy for key, if any.
func coveringPolicy(ctx context.Context, ps domain.PolicyStore, key domain.BalanceKey) (*domain.CustomPolicy, error) {
	policies, err := ps.ListPolicies(ctx, domain.PolicyFilter{
		CompanyID:  key.CompanyID,
		LeaveType:  key.LeaveType,
		EmployeeID: key.EmployeeID,
		ActiveOnly: true,
	})
	if err != nil || len(policies) == 0 {
		return nil, err
	}
	return &policies[0], nil
}

// eligibleTypes is the rule book's enabled types that the catalog offers
// and marks carry-forward capable. Unknown types are skipped.
func (e *Engine) eligibleTypes(ctx context.Context, companyID domain.CompanyID) ([]domain.LeaveTypeCode, error) {
	var out []domain.LeaveTypeCode
	for _, code := range e.rules.CarryForwardTypes(companyID) {
		lt, err := e.catalog.GetLeaveType(ctx, companyID, code)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if lt.IsActive && lt.CarryForwardAllowed {
			out = append(out, code)
		}
	}
	return out, nil
}

func requireManageBalances(actor domain.Actor) error {
	if !actor.Can(domain.CapManageBalances) {
		return domain.Forbidden("balance_forbidden", "only HR or admin can run carry-forward")
	}
	return nil
}
