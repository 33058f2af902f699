package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/testkit"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func march(day int) domain.TimePoint { return testkit.Date(2025, time.March, day) }

func input(lt domain.LeaveTypeCode, start, end domain.TimePoint) leave.CreateInput {
	return leave.CreateInput{LeaveType: lt, StartDate: start, EndDate: end, Reason: "family event"}
}

func requireCode(t *testing.T, err error, kind error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	assert.Equal(t, code, domain.CodeOf(err))
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_RoutesToReportingManager(t *testing.T) {
	env := testkit.New(t)

	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))

	assert.Equal(t, domain.StatusPending, r.Status)
	require.NotNil(t, r.ReportingManagerID)
	assert.Equal(t, testkit.Manager, *r.ReportingManagerID)
	assert.False(t, r.IsHRFallback)
	assert.Equal(t, domain.SessionFullDay, r.Session)
	testkit.AssertDays(t, 3, r.Duration)
	testkit.AssertDays(t, 18, r.BalanceAtRequest)
	assert.Equal(t, []domain.EventType{domain.EventLeaveCreated}, env.Notifier.Types())
}

func TestCreate_WithoutManagerFallsBackToHR(t *testing.T) {
	env := testkit.New(t)

	r := env.File(t, testkit.Bob, domain.LeaveCasual, march(10), march(10))

	assert.Nil(t, r.ReportingManagerID)
	assert.True(t, r.IsHRFallback)
}

func TestCreate_Validation(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	alice := testkit.Employee(testkit.Alice)

	tests := []struct {
		name string
		in   leave.CreateInput
		kind error
		code string
	}{
		{"end before start", input(domain.LeaveEarned, march(12), march(10)), domain.ErrValidation, "invalid_date_range"},
		{"missing dates", input(domain.LeaveEarned, domain.TimePoint{}, march(10)), domain.ErrValidation, "dates_required"},
		{"missing leave type", input("", march(10), march(10)), domain.ErrValidation, "leave_type_required"},
		{"unknown leave type", input("sabbatical", march(10), march(10)), domain.ErrNotFound, "leave_type_not_found"},
		{"blank reason", leave.CreateInput{LeaveType: domain.LeaveEarned, StartDate: march(10), EndDate: march(10), Reason: "  "}, domain.ErrValidation, "reason_required"},
		{"bad session", leave.CreateInput{LeaveType: domain.LeaveEarned, StartDate: march(10), EndDate: march(10), Reason: "x", Session: "Evening"}, domain.ErrValidation, "invalid_session"},
		{"for someone else", leave.CreateInput{EmployeeID: testkit.Bob, LeaveType: domain.LeaveEarned, StartDate: march(10), EndDate: march(10), Reason: "x"}, domain.ErrForbidden, "not_request_owner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Leaves.Create(ctx, alice, tt.in)
			requireCode(t, err, tt.kind, tt.code)
		})
	}
}

func TestCreate_InactiveLeaveType(t *testing.T) {
	env := testkit.New(t)
	lt, err := env.Store.GetLeaveType(context.Background(), testkit.Company, domain.LeavePaternity)
	require.NoError(t, err)
	lt.IsActive = false
	env.Store.PutLeaveType(*lt)

	_, err = env.Leaves.Create(context.Background(), testkit.Employee(testkit.Alice), input(domain.LeavePaternity, march(10), march(10)))

	requireCode(t, err, domain.ErrValidation, "leave_type_inactive")
}

func TestCreate_HRFilesForAnotherEmployee(t *testing.T) {
	env := testkit.New(t)
	in := input(domain.LeaveSick, march(10), march(10))
	in.EmployeeID = testkit.Bob

	r, err := env.Leaves.Create(context.Background(), testkit.AsHR(), in)

	require.NoError(t, err)
	assert.Equal(t, testkit.Bob, r.EmployeeID)
	assert.Equal(t, "user-hr", r.CreatedBy)
}

func TestCreate_BrokenReportingLine(t *testing.T) {
	env := testkit.New(t)
	self := domain.EmployeeID("emp-loop")
	ghost := domain.EmployeeID("emp-ghost")
	env.Store.PutEmployee(domain.Employee{ID: self, CompanyID: testkit.Company, ExternalUserID: "user-loop", ManagerID: &self, IsActive: true})
	env.Store.PutEmployee(domain.Employee{ID: "emp-orphan", CompanyID: testkit.Company, ExternalUserID: "user-orphan", ManagerID: &ghost, IsActive: true})

	_, err := env.Leaves.Create(context.Background(), testkit.Employee(self), input(domain.LeaveCasual, march(10), march(10)))
	requireCode(t, err, domain.ErrValidation, "self_manager")

	_, err = env.Leaves.Create(context.Background(), testkit.Employee("emp-orphan"), input(domain.LeaveCasual, march(10), march(10)))
	requireCode(t, err, domain.ErrValidation, "manager_not_found")
}

func TestCreate_HalfDay(t *testing.T) {
	env := testkit.New(t)
	in := input(domain.LeaveCasual, march(10), march(10))
	in.Session = domain.SessionFirstHalf

	r, err := env.Leaves.Create(context.Background(), testkit.Employee(testkit.Alice), in)

	require.NoError(t, err)
	testkit.AssertDays(t, 0.5, r.Duration)
}

// =============================================================================
// OVERLAP
// =============================================================================

func TestCreate_OverlapGuard(t *testing.T) {
	// GIVEN: A pending request for March 10-15
	// WHEN: Filing March 14-20, then March 16-20
	// THEN: The first overlaps, the second is fine

	env := testkit.New(t)
	ctx := context.Background()
	alice := testkit.Employee(testkit.Alice)
	env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(15))

	_, err := env.Leaves.Create(ctx, alice, input(domain.LeaveCasual, march(14), march(20)))
	requireCode(t, err, domain.ErrConflict, "overlapping_request")

	_, err = env.Leaves.Create(ctx, alice, input(domain.LeaveCasual, march(16), march(20)))
	assert.NoError(t, err)
}

func TestCreate_RejectedRequestDoesNotBlockDates(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(15))
	_, err := env.Leaves.Reject(ctx, testkit.AsManager(), r.ID, "team offsite")
	require.NoError(t, err)

	_, err = env.Leaves.Create(ctx, testkit.Employee(testkit.Alice), input(domain.LeaveEarned, march(10), march(15)))

	assert.NoError(t, err)
}

func TestCreate_ManagerSkipsOverlapGuard(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	mgr := testkit.AsManager()

	_, err := env.Leaves.Create(ctx, mgr, input(domain.LeaveEarned, march(10), march(12)))
	require.NoError(t, err)
	_, err = env.Leaves.Create(ctx, mgr, input(domain.LeaveCasual, march(11), march(11)))

	assert.NoError(t, err)
}

// =============================================================================
// APPROVE & REJECT
// =============================================================================

func TestApprove_DebitsLedger(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))

	approved, err := env.Leaves.Approve(ctx, testkit.AsManager(), r.ID, " enjoy ")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	assert.Equal(t, "user-manager", approved.ApprovedBy)
	assert.Equal(t, "enjoy", approved.ApprovalComments)
	require.NotNil(t, approved.ApprovedAt)
	testkit.AssertDays(t, 15, env.Balance(t, testkit.Alice, domain.LeaveEarned))
	env.RequireChain(t, testkit.Alice, domain.LeaveEarned)
	assert.Equal(t, []domain.EventType{
		domain.EventLeaveCreated, domain.EventLeaveApproved, domain.EventBalanceUpdated,
	}, env.Notifier.Types())

	stored, err := env.Leaves.Get(ctx, testkit.Employee(testkit.Alice), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
}

func TestApprove_Twice(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))
	_, err := env.Leaves.Approve(ctx, testkit.AsManager(), r.ID, "")
	require.NoError(t, err)

	_, err = env.Leaves.Approve(ctx, testkit.AsAdmin(), r.ID, "")

	requireCode(t, err, domain.ErrConflict, "request_not_pending")
	testkit.AssertDays(t, 15, env.Balance(t, testkit.Alice, domain.LeaveEarned))
}

func TestApprove_Routing(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	managed := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(10))
	fallback := env.File(t, testkit.Bob, domain.LeaveEarned, march(10), march(10))
	own := env.File(t, testkit.Manager, domain.LeaveEarned, march(10), march(10))

	tests := []struct {
		name    string
		actor   domain.Actor
		request *domain.LeaveRequest
		code    string
	}{
		{"employee cannot approve", testkit.Employee(testkit.Bob), managed, "not_assigned_approver"},
		{"hr is not the assigned manager", testkit.AsHR(), managed, "not_assigned_approver"},
		{"manager cannot take hr queue", testkit.AsManager(), fallback, "hr_approval_required"},
		{"self approval", testkit.AsManager(), own, "self_approval"},
		{"self approval as admin", testkit.As(testkit.Manager, domain.RoleAdmin), own, "self_approval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Leaves.Approve(ctx, tt.actor, tt.request.ID, "")
			requireCode(t, err, domain.ErrForbidden, tt.code)
		})
	}

	t.Run("hr takes fallback", func(t *testing.T) {
		_, err := env.Leaves.Approve(ctx, testkit.AsHR(), fallback.ID, "")
		assert.NoError(t, err)
	})
	t.Run("admin approves anything", func(t *testing.T) {
		_, err := env.Leaves.Approve(ctx, testkit.AsAdmin(), own.ID, "")
		assert.NoError(t, err)
	})
}

func TestApprove_ClaimedEmployeeIDCannotBypassSelfApproval(t *testing.T) {
	// GIVEN: HR filed a request for themselves, routed to the HR queue
	// WHEN: HR approves it while claiming to be Bob
	// THEN: The claim is rejected and the request stays pending

	env := testkit.New(t)
	ctx := context.Background()
	own := env.File(t, testkit.HR, domain.LeaveEarned, march(10), march(10))
	require.True(t, own.IsHRFallback)

	spoofed := testkit.AsHR()
	spoofed.EmployeeID = testkit.Bob
	_, err := env.Leaves.Approve(ctx, spoofed, own.ID, "")
	requireCode(t, err, domain.ErrForbidden, "identity_mismatch")

	_, err = env.Leaves.Approve(ctx, testkit.AsHR(), own.ID, "")
	requireCode(t, err, domain.ErrForbidden, "self_approval")

	got, err := env.Leaves.Get(ctx, testkit.AsAdmin(), own.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestResolveActor(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()

	resolved, err := env.Leaves.ResolveActor(ctx, testkit.AsHR())
	require.NoError(t, err)
	assert.Equal(t, testkit.HR, resolved.EmployeeID)

	matching := testkit.AsHR()
	matching.EmployeeID = testkit.HR
	resolved, err = env.Leaves.ResolveActor(ctx, matching)
	require.NoError(t, err)
	assert.Equal(t, testkit.HR, resolved.EmployeeID)

	// no directory record: the actor is left as supplied
	platform := domain.Actor{CompanyID: testkit.Company, UserID: "ops-bot", Role: domain.RoleAdmin}
	resolved, err = env.Leaves.ResolveActor(ctx, platform)
	require.NoError(t, err)
	assert.Empty(t, resolved.EmployeeID)
}

func TestApprove_InsufficientBalanceKeepsPending(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(1), march(31))

	_, err := env.Leaves.Approve(ctx, testkit.AsManager(), r.ID, "")

	var ib *domain.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	testkit.AssertDays(t, 13, ib.Shortfall)
	stored, err := env.Store.GetRequest(ctx, testkit.Company, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	testkit.AssertDays(t, 18, env.Balance(t, testkit.Alice, domain.LeaveEarned))
}

func TestApprove_AllowNegativeOnApproval(t *testing.T) {
	env := testkit.New(t, testkit.WithLeaveConfig(leave.Config{AllowNegativeOnApproval: true}))
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(1), march(31))

	_, err := env.Leaves.Approve(context.Background(), testkit.AsManager(), r.ID, "")

	require.NoError(t, err)
	testkit.AssertDays(t, -13, env.Balance(t, testkit.Alice, domain.LeaveEarned))
}

func TestApprove_NotificationFailureIsSwallowed(t *testing.T) {
	env := testkit.New(t)
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(10))
	env.Notifier.Err = errors.New("smtp down")

	_, err := env.Leaves.Approve(context.Background(), testkit.AsManager(), r.ID, "")

	assert.NoError(t, err)
}

func TestApprove_ConcurrentDecisionsOneWins(t *testing.T) {
	env := testkit.New(t)
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, actor := range []domain.Actor{testkit.AsManager(), testkit.AsAdmin(), testkit.AsManager(), testkit.AsAdmin()} {
		wg.Add(1)
		go func(actor domain.Actor) {
			defer wg.Done()
			_, err := env.Leaves.Approve(context.Background(), actor, r.ID, "")
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(actor)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, wins)
	testkit.AssertDays(t, 15, env.Balance(t, testkit.Alice, domain.LeaveEarned))
}

func TestReject(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))

	_, err := env.Leaves.Reject(ctx, testkit.AsManager(), r.ID, "   ")
	requireCode(t, err, domain.ErrValidation, "reason_required")

	rejected, err := env.Leaves.Reject(ctx, testkit.AsManager(), r.ID, "quarter close")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, "quarter close", rejected.RejectionReason)
	testkit.AssertDays(t, 18, env.Balance(t, testkit.Alice, domain.LeaveEarned))

	_, err = env.Leaves.Approve(ctx, testkit.AsManager(), r.ID, "")
	requireCode(t, err, domain.ErrConflict, "request_not_pending")
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_ApprovedRestoresBalance(t *testing.T) {
	// GIVEN: A projection balance of 8 and an approved 3-day request
	// WHEN: The employee cancels before the start date
	// THEN: 8 -> 5 -> 8 with an intact chain

	env := testkit.New(t)
	ctx := context.Background()
	env.SetBalance(t, testkit.Alice, domain.LeaveEarned, 10, 2)
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))
	_, err := env.Leaves.Approve(ctx, testkit.AsManager(), r.ID, "")
	require.NoError(t, err)
	testkit.AssertDays(t, 5, env.Balance(t, testkit.Alice, domain.LeaveEarned))

	cancelled, err := env.Leaves.Cancel(ctx, testkit.Employee(testkit.Alice), r.ID, "plans changed")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, "plans changed", cancelled.CancellationReason)
	testkit.AssertDays(t, 8, env.Balance(t, testkit.Alice, domain.LeaveEarned))
	env.RequireChain(t, testkit.Alice, domain.LeaveEarned)

	entries, err := env.Ledger.History(ctx, domain.EntryFilter{CompanyID: testkit.Company, EmployeeID: testkit.Alice, TransactionType: domain.TxRestored})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, r.ID, entries[0].LeaveRequestID)
}

func TestCancel_PendingHasNoLedgerEffect(t *testing.T) {
	env := testkit.New(t)
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))

	_, err := env.Leaves.Cancel(context.Background(), testkit.Employee(testkit.Alice), r.ID, "")

	require.NoError(t, err)
	entries, err := env.Ledger.History(context.Background(), domain.EntryFilter{CompanyID: testkit.Company, EmployeeID: testkit.Alice})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCancel_AfterStartRejected(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))
	_, err := env.Leaves.Approve(ctx, testkit.AsManager(), r.ID, "")
	require.NoError(t, err)

	env.SetToday(2025, time.March, 10)
	_, err = env.Leaves.Cancel(ctx, testkit.Employee(testkit.Alice), r.ID, "")

	requireCode(t, err, domain.ErrConflict, "leave_already_started")
	testkit.AssertDays(t, 15, env.Balance(t, testkit.Alice, domain.LeaveEarned))
}

func TestCancel_Guards(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))

	_, err := env.Leaves.Cancel(ctx, testkit.Employee(testkit.Bob), r.ID, "")
	requireCode(t, err, domain.ErrForbidden, "not_request_owner")

	_, err = env.Leaves.Cancel(ctx, testkit.AsHR(), r.ID, "duplicate")
	require.NoError(t, err)

	_, err = env.Leaves.Cancel(ctx, testkit.Employee(testkit.Alice), r.ID, "")
	requireCode(t, err, domain.ErrConflict, "request_not_cancellable")
}

// =============================================================================
// UPDATE & DELETE
// =============================================================================

func TestUpdate_PendingRecomputesDuration(t *testing.T) {
	env := testkit.New(t)
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))
	end := march(14)
	session := domain.SessionSecondHalf

	updated, err := env.Leaves.Update(context.Background(), testkit.Employee(testkit.Alice), r.ID, leave.UpdateInput{EndDate: &end, Session: &session})

	require.NoError(t, err)
	assert.True(t, updated.EndDate.Equal(end))
	testkit.AssertDays(t, 4.5, updated.Duration)
}

func TestUpdate_Guards(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	alice := testkit.Employee(testkit.Alice)
	first := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))
	second := env.File(t, testkit.Alice, domain.LeaveEarned, march(20), march(21))

	t.Run("dates moved onto another request", func(t *testing.T) {
		start := march(11)
		_, err := env.Leaves.Update(ctx, alice, second.ID, leave.UpdateInput{StartDate: &start})
		requireCode(t, err, domain.ErrConflict, "overlapping_request")
	})

	t.Run("end before start", func(t *testing.T) {
		end := march(1)
		_, err := env.Leaves.Update(ctx, alice, second.ID, leave.UpdateInput{EndDate: &end})
		requireCode(t, err, domain.ErrValidation, "invalid_date_range")
	})

	t.Run("approved is not editable", func(t *testing.T) {
		_, err := env.Leaves.Approve(ctx, testkit.AsManager(), first.ID, "")
		require.NoError(t, err)
		reason := "changed"
		_, err = env.Leaves.Update(ctx, alice, first.ID, leave.UpdateInput{Reason: &reason})
		requireCode(t, err, domain.ErrConflict, "request_not_editable")
	})
}

func TestDelete(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	alice := testkit.Employee(testkit.Alice)
	pending := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))
	approved := env.File(t, testkit.Alice, domain.LeaveEarned, march(20), march(20))
	_, err := env.Leaves.Approve(ctx, testkit.AsManager(), approved.ID, "")
	require.NoError(t, err)

	require.NoError(t, env.Leaves.Delete(ctx, alice, pending.ID))
	_, err = env.Leaves.Get(ctx, alice, pending.ID)
	requireCode(t, err, domain.ErrNotFound, "request_not_found")

	err = env.Leaves.Delete(ctx, alice, approved.ID)
	requireCode(t, err, domain.ErrConflict, "request_not_deletable")

	// the deleted request no longer occupies its dates
	_, err = env.Leaves.Create(ctx, alice, input(domain.LeaveEarned, march(10), march(12)))
	assert.NoError(t, err)
}

// =============================================================================
// READ
// =============================================================================

func TestGet_Visibility(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	r := env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))

	for _, actor := range []domain.Actor{testkit.Employee(testkit.Alice), testkit.AsManager(), testkit.AsHR()} {
		_, err := env.Leaves.Get(ctx, actor, r.ID)
		assert.NoError(t, err, actor.UserID)
	}
	_, err := env.Leaves.Get(ctx, testkit.Employee(testkit.Bob), r.ID)
	requireCode(t, err, domain.ErrForbidden, "request_forbidden")
}

func TestList_ScopedToActor(t *testing.T) {
	env := testkit.New(t)
	ctx := context.Background()
	env.File(t, testkit.Alice, domain.LeaveEarned, march(10), march(12))
	env.File(t, testkit.Carol, domain.LeaveCasual, march(10), march(10))
	env.File(t, testkit.Bob, domain.LeaveSick, march(10), march(10))

	own, err := env.Leaves.List(ctx, testkit.Employee(testkit.Alice), domain.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, testkit.Alice, own[0].EmployeeID)

	queue, err := env.Leaves.List(ctx, testkit.AsManager(), domain.RequestFilter{ReportingManagerID: testkit.Manager})
	require.NoError(t, err)
	assert.Len(t, queue, 2)

	hrQueue, err := env.Leaves.List(ctx, testkit.AsHR(), domain.RequestFilter{HRFallbackOnly: true})
	require.NoError(t, err)
	require.Len(t, hrQueue, 1)
	assert.Equal(t, testkit.Bob, hrQueue[0].EmployeeID)

	outsider, err := env.Leaves.List(ctx, domain.Actor{CompanyID: testkit.Company, UserID: "nobody", Role: domain.RoleEmployee}, domain.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, outsider)
}
