package encashment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/encashment"
	"github.com/warp/leave-engine/testkit"
)

func execute(emp domain.EmployeeID, days float64) encashment.ExecuteInput {
	return encashment.ExecuteInput{EmployeeID: emp, LeaveType: domain.LeaveEarned, Days: domain.Days(days)}
}

func requireIneligible(t *testing.T, err error, code string) *encashment.IneligibleError {
	t.Helper()
	var inel *encashment.IneligibleError
	require.True(t, errors.As(err, &inel), "expected IneligibleError, got %v", err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, code, domain.CodeOf(err))
	return inel
}

func TestCalculate_Breakdown(t *testing.T) {
	// GIVEN: Alice has 18 earned days and a 30000 monthly basic salary
	// WHEN: Previewing 10 days
	// THEN: max encashable min(18-5, 15) = 13, rate 1000/day, payout 10000

	env := testkit.New(t)

	calc, err := env.Encashment.Calculate(context.Background(), testkit.Employee(testkit.Alice), testkit.Alice, domain.LeaveEarned, domain.Days(10))

	require.NoError(t, err)
	testkit.AssertDays(t, 18, calc.Balance)
	testkit.AssertDays(t, 5, calc.MinBalance)
	testkit.AssertDays(t, 13, calc.MaxEncashableDays)
	testkit.AssertDays(t, 0, calc.EncashedThisYear)
	testkit.AssertDays(t, 15, calc.RemainingEncashmentDays)
	assert.True(t, calc.DailyRate.Equal(decimal.NewFromInt(1000)), calc.DailyRate.String())
	assert.True(t, calc.Amount.Equal(decimal.NewFromInt(10000)), calc.Amount.String())
	testkit.AssertDays(t, 13, calc.Eligible())
}

func TestCalculate_AmountUsesUnroundedRate(t *testing.T) {
	// GIVEN: A monthly basic salary of 1000, so 33.333... a day
	// WHEN: Previewing 3 days
	// THEN: The shown rate is 33.33 but the payout is 100.00

	env := testkit.New(t)
	ctx := context.Background()
	emp, err := env.Store.FindEmployee(ctx, testkit.Company, string(testkit.Alice))
	require.NoError(t, err)
	emp.BasicSalary = decimal.NewFromInt(1000)
	env.Store.PutEmployee(*emp)

	calc, err := env.Encashment.Calculate(ctx, testkit.AsHR(), testkit.Alice, domain.LeaveEarned, domain.Days(3))

	require.NoError(t, err)
	assert.Equal(t, "33.33", calc.DailyRate.StringFixed(2))
	assert.Equal(t, "100.00", calc.Amount.StringFixed(2))
}

func TestCalculate_Ineligible(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	hr := testkit.AsHR()

	t.Run("disabled leave type", func(t *testing.T) {
		_, err := env.Encashment.Calculate(ctx, hr, testkit.Alice, domain.LeaveCasual, domain.Days(1))
		requireIneligible(t, err, "encashment_disabled")
	})
	t.Run("non-positive days", func(t *testing.T) {
		_, err := env.Encashment.Calculate(ctx, hr, testkit.Alice, domain.LeaveEarned, domain.ZeroDays())
		requireIneligible(t, err, "invalid_amount")
	})
	t.Run("short tenure", func(t *testing.T) {
		_, err := env.Encashment.Calculate(ctx, hr, testkit.Carol, domain.LeaveEarned, domain.Days(1))
		requireIneligible(t, err, "insufficient_service")
	})
	t.Run("over the encashable maximum", func(t *testing.T) {
		_, err := env.Encashment.Calculate(ctx, hr, testkit.Alice, domain.LeaveEarned, domain.Days(14))
		inel := requireIneligible(t, err, "exceeds_max_encashable")
		testkit.AssertDays(t, 13, inel.Calculation.MaxEncashableDays)
	})
	t.Run("below minimum balance", func(t *testing.T) {
		env.SetBalance(t, testkit.Bob, domain.LeaveEarned, 4, 0)
		_, err := env.Encashment.Calculate(ctx, hr, testkit.Bob, domain.LeaveEarned, domain.Days(1))
		inel := requireIneligible(t, err, "below_min_balance")
		testkit.AssertDays(t, 4, inel.Calculation.Balance)
	})
}

func TestCalculate_Forbidden(t *testing.T) {
	env := testkit.New(t)

	_, err := env.Encashment.Calculate(context.Background(), testkit.Employee(testkit.Bob), testkit.Alice, domain.LeaveEarned, domain.Days(1))

	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, "balance_forbidden", domain.CodeOf(err))
}

func TestExecute_DebitsLedger(t *testing.T) {
	env := testkit.New(t)

	result, err := env.Encashment.Execute(context.Background(), testkit.Employee(testkit.Alice), execute(testkit.Alice, 10))

	require.NoError(t, err)
	assert.NotEmpty(t, result.EntryID)
	testkit.AssertDays(t, 8, result.BalanceAfter)
	testkit.AssertDays(t, 8, env.Balance(t, testkit.Alice, domain.LeaveEarned))
	env.RequireChain(t, testkit.Alice, domain.LeaveEarned)

	summary, err := env.Ledger.GetBalanceSummary(context.Background(), testkit.Company, testkit.Alice)
	require.NoError(t, err)
	testkit.AssertDays(t, 10, summary[domain.LeaveEarned].Encashed)
}

func TestExecute_YearlyCap(t *testing.T) {
	// GIVEN: 40 days and 10 already encashed this year
	// WHEN: Asking for 6 more, then 5
	// THEN: 6 breaks the 15-day yearly cap with 5 remaining; 5 succeeds

	env := testkit.New(t)
	ctx := context.Background()
	alice := testkit.Employee(testkit.Alice)
	env.SetBalance(t, testkit.Alice, domain.LeaveEarned, 40, 0)
	_, err := env.Encashment.Execute(ctx, alice, execute(testkit.Alice, 10))
	require.NoError(t, err)

	_, err = env.Encashment.Execute(ctx, alice, execute(testkit.Alice, 6))
	inel := requireIneligible(t, err, "exceeds_yearly_cap")
	testkit.AssertDays(t, 10, inel.Calculation.EncashedThisYear)
	testkit.AssertDays(t, 5, inel.Calculation.RemainingEncashmentDays)
	testkit.AssertDays(t, 30, env.Balance(t, testkit.Alice, domain.LeaveEarned))

	result, err := env.Encashment.Execute(ctx, alice, execute(testkit.Alice, 5))
	require.NoError(t, err)
	testkit.AssertDays(t, 25, result.BalanceAfter)
}

func TestExecute_CapResetsWithCalendarYear(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	alice := testkit.Employee(testkit.Alice)
	env.SetBalance(t, testkit.Alice, domain.LeaveEarned, 40, 0)
	_, err := env.Encashment.Execute(ctx, alice, execute(testkit.Alice, 15))
	require.NoError(t, err)

	env.SetToday(2026, time.January, 5)
	calc, err := env.Encashment.Calculate(ctx, alice, testkit.Alice, domain.LeaveEarned, domain.Days(15))

	require.NoError(t, err)
	testkit.AssertDays(t, 0, calc.EncashedThisYear)
}

func TestExecute_IdempotencyKey(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	in := execute(testkit.Alice, 2)
	in.IdempotencyKey = "payroll:2025-03:emp-alice"

	_, err := env.Encashment.Execute(ctx, testkit.AsHR(), in)
	require.NoError(t, err)
	_, err = env.Encashment.Execute(ctx, testkit.AsHR(), in)

	assert.Equal(t, "duplicate_entry", domain.CodeOf(err))
	testkit.AssertDays(t, 16, env.Balance(t, testkit.Alice, domain.LeaveEarned))
}

func TestPreviewForCompany(t *testing.T) {
	env := testkit.New(t)

	result, err := env.Encashment.PreviewForCompany(context.Background(), testkit.AsHR())

	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Succeeded, 6)
	for _, s := range result.Succeeded {
		if s.EmployeeID == testkit.Carol {
			assert.Empty(t, s.Result, "short tenure is not an error")
			continue
		}
		require.Len(t, s.Result, 1, s.EmployeeID)
		testkit.AssertDays(t, 13, s.Result[0].DaysRequested)
	}
	entries, err := env.Ledger.History(context.Background(), domain.EntryFilter{CompanyID: testkit.Company})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecuteForCompany(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()

	result, err := env.Encashment.ExecuteForCompany(ctx, testkit.AsAdmin())
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	testkit.AssertDays(t, 5, env.Balance(t, testkit.Bob, domain.LeaveEarned))
	testkit.AssertDays(t, 18, env.Balance(t, testkit.Carol, domain.LeaveEarned))

	// nothing left above the minimum balance
	again, err := env.Encashment.ExecuteForCompany(ctx, testkit.AsAdmin())
	require.NoError(t, err)
	assert.Empty(t, again.Failed)
	for _, s := range again.Succeeded {
		assert.Empty(t, s.Result, s.EmployeeID)
	}

	_, err = env.Encashment.ExecuteForCompany(ctx, testkit.AsManager())
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
