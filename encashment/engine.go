/*
Package encashment converts unused leave into a payout.

ELIGIBILITY (checked in this order):
  1. the leave type has an enabled rule
  2. tenure >= requireMinService months
  3. balance >= minBalance
  4. days <= maxEncashable = min(balance - minBalance, maxEncashmentDays)
  5. days <= remaining     = maxEncashmentDays - days encashed this calendar year

PAYOUT:
  basicSalary / rateDivisor (30) * days, rounded to 2 places.

Execute re-runs the calculation inside the ledger transaction so a stale
preview can never overdraw the yearly cap.
*/
package encashment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/batch"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/ledger"
)

// Calculation is the eligibility breakdown for one request.
type Calculation struct {
	EmployeeID              domain.EmployeeID    `json:"employeeId"`
	LeaveType               domain.LeaveTypeCode `json:"leaveType"`
	Balance                 domain.Amount        `json:"balance"`
	MinBalance              domain.Amount        `json:"minBalance"`
	MaxEncashableDays       domain.Amount        `json:"maxEncashableDays"`
	EncashedThisYear        domain.Amount        `json:"encashedThisYear"`
	RemainingEncashmentDays domain.Amount        `json:"remainingEncashmentDays"`
	DaysRequested           domain.Amount        `json:"daysRequested"`
	DailyRate               decimal.Decimal      `json:"dailyRate"`
	Amount                  decimal.Decimal      `json:"amount"`
}

// Eligible is the largest number of days that passes every cap.
func (c Calculation) Eligible() domain.Amount {
	return c.MaxEncashableDays.Min(c.RemainingEncashmentDays).Max(domain.ZeroDays())
}

// IneligibleError rejects a request and carries the breakdown computed so far.
type IneligibleError struct {
	Err         *domain.Error
	Calculation Calculation
}

func (e *IneligibleError) Error() string { return e.Err.Error() }
func (e *IneligibleError) Unwrap() error { return e.Err }

func ineligible(calc Calculation, code, field, message string) error {
	return &IneligibleError{Err: domain.Validation(code, field, message), Calculation: calc}
}

// Result is a recorded encashment.
type Result struct {
	Calculation
	EntryID      domain.EntryID `json:"entryId"`
	BalanceAfter domain.Amount  `json:"balanceAfter"`
}

// ExecuteInput requests an encashment.
type ExecuteInput struct {
	EmployeeID     domain.EmployeeID
	LeaveType      domain.LeaveTypeCode
	Days           domain.Amount
	IdempotencyKey string // optional; replays fail with duplicate_entry
}

type Engine struct {
	store       domain.Store
	ledger      *ledger.Engine
	directory   domain.EmployeeDirectory
	rules       *config.RuleBook
	concurrency int
	logger      *zap.Logger
}

func NewEngine(store domain.Store, lg *ledger.Engine, directory domain.EmployeeDirectory, rules *config.RuleBook, concurrency int, logger ...*zap.Logger) *Engine {
	l := zap.L().Named("encashment.engine")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("encashment.engine")
	}
	if rules == nil {
		rules = config.NewRuleBook(config.Rules{}, nil)
	}
	return &Engine{
		store:       store,
		ledger:      lg,
		directory:   directory,
		rules:       rules,
		concurrency: concurrency,
		logger:      l,
	}
}

// Calculate checks eligibility for encashing days. It writes nothing.
func (e *Engine) Calculate(ctx context.Context, actor domain.Actor, employeeID domain.EmployeeID, leaveType domain.LeaveTypeCode, days domain.Amount) (*Calculation, error) {
	emp, err := e.employee(ctx, actor, employeeID)
	if err != nil {
		return nil, err
	}
	calc, err := e.calculate(ctx, e.ledger, emp, leaveType, days)
	if err != nil {
		return nil, err
	}
	return &calc, nil
}

// Execute records the encashment after re-validating it.
func (e *Engine) Execute(ctx context.Context, actor domain.Actor, in ExecuteInput) (*Result, error) {
	emp, err := e.employee(ctx, actor, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, actor, emp, in.LeaveType, in.Days, in.IdempotencyKey)
}

// PreviewForCompany calculates the maximum eligible encashment for every
// active employee and every encashable leave type.
func (e *Engine) PreviewForCompany(ctx context.Context, actor domain.Actor) (domain.BatchResult[[]Calculation], error) {
	if err := requireManageBalances(actor); err != nil {
		return domain.BatchResult[[]Calculation]{}, err
	}
	employees, err := e.directory.ListActiveEmployees(ctx, actor.CompanyID)
	if err != nil {
		return domain.BatchResult[[]Calculation]{}, err
	}
	types := e.rules.EncashmentTypes(actor.CompanyID)

	return batch.Run(ctx, actor.CompanyID, employees, e.concurrency, func(ctx context.Context, emp domain.Employee) ([]Calculation, error) {
		out := []Calculation{}
		for _, code := range types {
			calc, ok, err := e.maximum(ctx, e.ledger, &emp, code)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, calc)
			}
		}
		return out, nil
	}), nil
}

// ExecuteForCompany encashes each employee's maximum eligible days.
// Employees with nothing eligible succeed with an empty result.
func (e *Engine) ExecuteForCompany(ctx context.Context, actor domain.Actor) (domain.BatchResult[[]Result], error) {
	if err := requireManageBalances(actor); err != nil {
		return domain.BatchResult[[]Result]{}, err
	}
	employees, err := e.directory.ListActiveEmployees(ctx, actor.CompanyID)
	if err != nil {
		return domain.BatchResult[[]Result]{}, err
	}
	types := e.rules.EncashmentTypes(actor.CompanyID)
	today := e.ledger.Clock().Today()

	e.logger.Info("company encashment started",
		zap.String("company_id", string(actor.CompanyID)),
		zap.Int("employees", len(employees)),
	)
	result := batch.Run(ctx, actor.CompanyID, employees, e.concurrency, func(ctx context.Context, emp domain.Employee) ([]Result, error) {
		out := []Result{}
		for _, code := range types {
			calc, ok, err := e.maximum(ctx, e.ledger, &emp, code)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			key := fmt.Sprintf("encashed:%s:%s:%s", emp.ID, code, today)
			r, err := e.execute(ctx, actor, &emp, code, calc.Eligible(), key)
			if err != nil {
				return nil, err
			}
			out = append(out, *r)
		}
		return out, nil
	})
	e.logger.Info("company encashment finished",
		zap.String("company_id", string(actor.CompanyID)),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, actor domain.Actor, emp *domain.Employee, leaveType domain.LeaveTypeCode, days domain.Amount, idempotencyKey string) (*Result, error) {
	var result *Result
	err := e.store.WithTx(ctx, func(tx domain.Store) error {
		lg := e.ledger.In(tx)
		calc, err := e.calculate(ctx, lg, emp, leaveType, days)
		if err != nil {
			return err
		}
		entry, err := lg.RecordEncashment(ctx, ledger.EncashmentInput{
			Key:            domain.BalanceKey{CompanyID: emp.CompanyID, EmployeeID: emp.ID, LeaveType: leaveType},
			Days:           days,
			Description:    fmt.Sprintf("encashed %s days at %s/day", days, calc.DailyRate.StringFixed(2)),
			IdempotencyKey: idempotencyKey,
			Actor:          actor.UserID,
		})
		if err != nil {
			return err
		}
		result = &Result{Calculation: calc, EntryID: entry.ID, BalanceAfter: entry.BalanceAfter}
		return nil
	})
	if err != nil {
		e.logger.Warn("encashment failed",
			zap.String("employee_id", string(emp.ID)),
			zap.String("leave_type", string(leaveType)),
			zap.String("days", days.String()),
			zap.Error(err),
		)
		return nil, err
	}

	e.logger.Info("encashment executed",
		zap.String("employee_id", string(emp.ID)),
		zap.String("leave_type", string(leaveType)),
		zap.String("days", days.String()),
		zap.String("amount", result.Amount.StringFixed(2)),
	)
	return result, nil
}

// maximum calculates the largest eligible encashment. ok is false when
// the employee is not eligible at all.
func (e *Engine) maximum(ctx context.Context, lg *ledger.Engine, emp *domain.Employee, leaveType domain.LeaveTypeCode) (Calculation, bool, error) {
	probe, err := e.calculate(ctx, lg, emp, leaveType, domain.HalfDay())
	var inel *IneligibleError
	switch {
	case errors.As(err, &inel):
		if !inel.Calculation.Eligible().IsPositive() {
			return Calculation{}, false, nil
		}
		probe = inel.Calculation
	case err != nil:
		return Calculation{}, false, err
	}
	days := probe.Eligible()
	if !days.IsPositive() {
		return Calculation{}, false, nil
	}
	calc, err := e.calculate(ctx, lg, emp, leaveType, days)
	if errors.As(err, &inel) {
		return Calculation{}, false, nil
	}
	if err != nil {
		return Calculation{}, false, err
	}
	return calc, true, nil
}

// calculate reads through lg so execute sees its own transaction.
func (e *Engine) calculate(ctx context.Context, lg *ledger.Engine, emp *domain.Employee, leaveType domain.LeaveTypeCode, days domain.Amount) (Calculation, error) {
	calc := Calculation{
		EmployeeID:    emp.ID,
		LeaveType:     leaveType,
		DaysRequested: days,
	}
	rule, ok := e.rules.Encashment(emp.CompanyID, leaveType)
	if !ok {
		return calc, ineligible(calc, "encashment_disabled", "leaveType", "encashment is not enabled for "+string(leaveType))
	}
	if !days.IsPositive() {
		return calc, ineligible(calc, "invalid_amount", "days", "days must be greater than zero")
	}

	today := lg.Clock().Today()
	if tenure := emp.TenureMonths(today); tenure < rule.RequireMinService {
		return calc, ineligible(calc, "insufficient_service", "employeeId",
			fmt.Sprintf("minimum %d months of service required, employee has %d", rule.RequireMinService, tenure))
	}

	key := domain.BalanceKey{CompanyID: emp.CompanyID, EmployeeID: emp.ID, LeaveType: leaveType}
	balance, err := lg.CurrentBalance(ctx, key)
	if err != nil {
		return calc, err
	}
	calc.Balance = balance
	calc.MinBalance = rule.MinBalanceAmount()
	if balance.LessThan(calc.MinBalance) {
		return calc, ineligible(calc, "below_min_balance", "days",
			fmt.Sprintf("balance %s is below the minimum %s", balance, calc.MinBalance))
	}

	encashed, err := encashedInYear(ctx, lg, key, today.Year())
	if err != nil {
		return calc, err
	}
	calc.EncashedThisYear = encashed
	calc.MaxEncashableDays = balance.Sub(calc.MinBalance).Min(rule.MaxAmount())
	calc.RemainingEncashmentDays = rule.MaxAmount().Sub(encashed).Max(domain.ZeroDays())
	rate := rule.DailyRate(emp.BasicSalary)
	calc.DailyRate = rate.Round(2)

	if days.GreaterThan(calc.MaxEncashableDays) {
		return calc, ineligible(calc, "exceeds_max_encashable", "days",
			fmt.Sprintf("at most %s days can be encashed", calc.MaxEncashableDays))
	}
	if days.GreaterThan(calc.RemainingEncashmentDays) {
		return calc, ineligible(calc, "exceeds_yearly_cap", "days",
			fmt.Sprintf("only %s days remain under this year's encashment limit", calc.RemainingEncashmentDays))
	}
	calc.Amount = rate.Mul(days.Value).Round(2)
	return calc, nil
}

func encashedInYear(ctx context.Context, lg *ledger.Engine, key domain.BalanceKey, year int) (domain.Amount, error) {
	entries, err := lg.History(ctx, domain.EntryFilter{
		CompanyID:       key.CompanyID,
		EmployeeID:      key.EmployeeID,
		LeaveType:       key.LeaveType,
		TransactionType: domain.TxEncashed,
		Year:            year,
	})
	if err != nil {
		return domain.Amount{}, err
	}
	total := domain.ZeroDays()
	for _, entry := range entries {
		total = total.Add(entry.Amount.Neg())
	}
	return total, nil
}

// employee resolves the target and checks the actor may act for them.
func (e *Engine) employee(ctx context.Context, actor domain.Actor, employeeID domain.EmployeeID) (*domain.Employee, error) {
	emp, err := e.directory.FindEmployee(ctx, actor.CompanyID, string(employeeID))
	if err != nil {
		return nil, err
	}
	self := emp.ID == actor.EmployeeID || (actor.UserID != "" && emp.ExternalUserID == actor.UserID)
	if !self && !actor.Can(domain.CapManageBalances) {
		return nil, domain.Forbidden("balance_forbidden", "you cannot encash another employee's leave")
	}
	return emp, nil
}

func requireManageBalances(actor domain.Actor) error {
	if !actor.Can(domain.CapManageBalances) {
		return domain.Forbidden("balance_forbidden", "only HR or admin can run company encashment")
	}
	return nil
}
