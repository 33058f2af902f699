package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/store/memory"
)

var key = domain.BalanceKey{CompanyID: "acme", EmployeeID: "emp-1", LeaveType: domain.LeaveEarned}

func entry(amount float64, idem string) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:              domain.EntryID("e-" + idem),
		CompanyID:       key.CompanyID,
		EmployeeID:      key.EmployeeID,
		LeaveType:       key.LeaveType,
		TransactionType: domain.TxAdjustment,
		TransactionDate: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Amount:          domain.Days(amount),
		IdempotencyKey:  idem,
	}
}

func request(id domain.RequestID) domain.LeaveRequest {
	return domain.LeaveRequest{
		ID:         id,
		CompanyID:  "acme",
		EmployeeID: "emp-1",
		StartDate:  domain.NewTimePoint(2025, time.March, 10),
		EndDate:    domain.NewTimePoint(2025, time.March, 11),
		Session:    domain.SessionFullDay,
		Duration:   domain.Days(2),
		LeaveType:  domain.LeaveEarned,
		Status:     domain.StatusPending,
	}
}

func TestAppendEntry_AssignsSequence(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	first, second := entry(5, "a"), entry(-2, "b")
	require.NoError(t, store.AppendEntry(ctx, first))
	require.NoError(t, store.AppendEntry(ctx, second))

	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)
	latest, err := store.LatestEntry(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryID("e-b"), latest.ID)

	other := domain.BalanceKey{CompanyID: "acme", EmployeeID: "emp-2", LeaveType: domain.LeaveEarned}
	none, err := store.LatestEntry(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAppendEntry_DuplicateIdempotencyKey(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.AppendEntry(ctx, entry(5, "same")))

	err := store.AppendEntry(ctx, entry(5, "same"))

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "duplicate_entry", domain.CodeOf(err))

	// empty keys are never deduplicated
	require.NoError(t, store.AppendEntry(ctx, entry(1, "")))
	require.NoError(t, store.AppendEntry(ctx, entry(1, "")))
	entries, err := store.ListEntries(ctx, domain.EntryFilter{CompanyID: "acme"})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestAppendEntry_IdempotencyScopedByCompany(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.AppendEntry(ctx, entry(5, "shared")))

	e := entry(5, "shared")
	e.CompanyID = "globex"

	assert.NoError(t, store.AppendEntry(ctx, e))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx domain.Store) error {
		require.NoError(t, tx.AppendEntry(ctx, entry(5, "a")))
		require.NoError(t, tx.SaveProjection(ctx, domain.EmployeeLeaveBalance{
			CompanyID: key.CompanyID, EmployeeID: key.EmployeeID, LeaveType: key.LeaveType,
			Total: domain.Days(5), Balance: domain.Days(5),
		}))
		require.NoError(t, tx.CreateRequest(ctx, request("req-1")))
		return boom
	})

	require.ErrorIs(t, err, boom)
	latest, err := store.LatestEntry(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, latest)
	p, err := store.GetProjection(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, p)
	_, err = store.GetRequest(ctx, "acme", "req-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// the idempotency key is free again
	assert.NoError(t, store.AppendEntry(ctx, entry(5, "a")))
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx domain.Store) error {
		require.NoError(t, tx.WithTx(ctx, func(inner domain.Store) error {
			return inner.AppendEntry(ctx, entry(5, "inner"))
		}))
		latest, err := tx.LatestEntry(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, latest, "inner write is visible to the outer view")
		return boom
	})

	require.ErrorIs(t, err, boom)
	latest, err := store.LatestEntry(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, latest, "inner write rolls back with the outer tx")
}

func TestUpdateRequest_CompareAndSwap(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.CreateRequest(ctx, request("req-1")))

	approved := request("req-1")
	approved.Status = domain.StatusApproved
	require.NoError(t, store.UpdateRequest(ctx, approved, domain.StatusPending))

	rejected := request("req-1")
	rejected.Status = domain.StatusRejected
	err := store.UpdateRequest(ctx, rejected, domain.StatusPending)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "stale_status", domain.CodeOf(err))

	got, err := store.GetRequest(ctx, "acme", "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)

	err = store.UpdateRequest(ctx, request("req-missing"), domain.StatusPending)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "duplicate_request", domain.CodeOf(store.CreateRequest(ctx, request("req-1"))))
}

func TestGetRequest_SoftDeletedAndTenant(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	r := request("req-1")
	require.NoError(t, store.CreateRequest(ctx, r))

	_, err := store.GetRequest(ctx, "globex", "req-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	r.IsDeleted = true
	require.NoError(t, store.UpdateRequest(ctx, r, domain.StatusPending))
	_, err = store.GetRequest(ctx, "acme", "req-1")
	assert.Equal(t, "request_not_found", domain.CodeOf(err))

	visible, err := store.ListRequests(ctx, domain.RequestFilter{CompanyID: "acme"})
	require.NoError(t, err)
	assert.Empty(t, visible)
	all, err := store.ListRequests(ctx, domain.RequestFilter{CompanyID: "acme", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPolicies_OrderAndCopy(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	older := domain.CustomPolicy{ID: "pol-1", CompanyID: "acme", LeaveType: domain.LeaveEarned, EmployeeIDs: []domain.EmployeeID{"emp-1"}, IsActive: true}
	newer := domain.CustomPolicy{ID: "pol-2", CompanyID: "acme", LeaveType: domain.LeaveEarned, EmployeeIDs: []domain.EmployeeID{"emp-1"}, IsActive: true}
	require.NoError(t, store.CreatePolicy(ctx, older))
	require.NoError(t, store.CreatePolicy(ctx, newer))

	list, err := store.ListPolicies(ctx, domain.PolicyFilter{CompanyID: "acme", EmployeeID: "emp-1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.PolicyID("pol-1"), list[0].ID)

	// mutating a returned policy does not leak into the store
	list[0].EmployeeIDs[0] = "emp-9"
	got, err := store.GetPolicy(ctx, "acme", "pol-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.EmployeeID{"emp-1"}, got.EmployeeIDs)

	_, err = store.GetPolicy(ctx, "acme", "pol-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindEmployee_ByIDOrExternalID(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	store.PutEmployee(domain.Employee{ID: "emp-1", CompanyID: "acme", ExternalUserID: "user-1", IsActive: true})
	store.PutEmployee(domain.Employee{ID: "emp-2", CompanyID: "acme", IsActive: false})

	byID, err := store.FindEmployee(ctx, "acme", "emp-1")
	require.NoError(t, err)
	byExternal, err := store.FindEmployee(ctx, "acme", "user-1")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byExternal.ID)

	_, err = store.FindEmployee(ctx, "globex", "emp-1")
	assert.Equal(t, "employee_not_found", domain.CodeOf(err))

	active, err := store.ListActiveEmployees(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.EmployeeID("emp-1"), active[0].ID)
}

func TestLeaveTypes_ActiveOnly(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	store.PutLeaveType(domain.LeaveType{CompanyID: "acme", Code: domain.LeaveSick, IsActive: true})
	store.PutLeaveType(domain.LeaveType{CompanyID: "acme", Code: domain.LeaveCasual, IsActive: false})

	all, err := store.ListLeaveTypes(ctx, "acme", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, domain.LeaveCasual, all[0].Code)

	active, err := store.ListLeaveTypes(ctx, "acme", true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = store.GetLeaveType(ctx, "acme", "sabbatical")
	assert.Equal(t, "leave_type_not_found", domain.CodeOf(err))
}
