package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/store/sqlite"
)

const company domain.CompanyID = "acme"

var key = domain.BalanceKey{CompanyID: company, EmployeeID: "emp-1", LeaveType: domain.LeaveEarned}

func setupStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func entry(id string, amount, before float64, idem string) *domain.LedgerEntry {
	day := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	return &domain.LedgerEntry{
		ID:              domain.EntryID(id),
		CompanyID:       key.CompanyID,
		EmployeeID:      key.EmployeeID,
		LeaveType:       key.LeaveType,
		TransactionType: domain.TxAdjustment,
		TransactionDate: day,
		Amount:          domain.Days(amount),
		BalanceBefore:   domain.Days(before),
		BalanceAfter:    domain.Days(before + amount),
		FinancialYear:   "FY2024-2025",
		Year:            2025,
		Month:           time.March,
		IdempotencyKey:  idem,
		CreatedAt:       day,
	}
}

func TestAppendEntry_SequenceAndRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := entry("e-1", 18, 0, "opening:emp-1:earned")
	second := entry("e-2", -2.5, 18, "used:req-1")
	start := domain.NewTimePoint(2025, time.March, 10)
	second.TransactionType = domain.TxUsed
	second.LeaveRequestID = "req-1"
	second.Details = &domain.EntryDetails{StartDate: &start, Reason: "trip"}
	require.NoError(t, store.AppendEntry(ctx, first))
	require.NoError(t, store.AppendEntry(ctx, second))

	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)

	latest, err := store.LatestEntry(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, domain.EntryID("e-2"), latest.ID)
	assert.True(t, latest.BalanceAfter.Equal(domain.Days(15.5)), latest.BalanceAfter.String())
	assert.Equal(t, domain.RequestID("req-1"), latest.LeaveRequestID)
	assert.Equal(t, time.March, latest.Month)
	require.NotNil(t, latest.Details)
	assert.Equal(t, "2025-03-10", latest.Details.StartDate.String())
	assert.Equal(t, "trip", latest.Details.Reason)

	used, err := store.ListEntries(ctx, domain.EntryFilter{CompanyID: company, TransactionType: domain.TxUsed})
	require.NoError(t, err)
	assert.Len(t, used, 1)
}

func TestLatestEntry_EmptyLedger(t *testing.T) {
	store := setupStore(t)

	latest, err := store.LatestEntry(context.Background(), key)

	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestAppendEntry_DuplicateIdempotencyKey(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.AppendEntry(ctx, entry("e-1", 5, 0, "allocated:emp-1:earned:FY2024-2025")))

	err := store.AppendEntry(ctx, entry("e-2", 5, 5, "allocated:emp-1:earned:FY2024-2025"))

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "duplicate_entry", domain.CodeOf(err))
}

func TestAppendEntry_EmptyKeyStoredAsNull(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendEntry(ctx, entry("e-1", 1, 0, "")))
	require.NoError(t, store.AppendEntry(ctx, entry("e-2", 1, 1, "")))

	entries, err := store.ListEntries(ctx, domain.EntryFilter{CompanyID: company})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Empty(t, entries[1].IdempotencyKey)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx domain.Store) error {
		require.NoError(t, tx.AppendEntry(ctx, entry("e-1", 5, 0, "a")))
		require.NoError(t, tx.WithTx(ctx, func(inner domain.Store) error {
			return inner.SaveProjection(ctx, domain.EmployeeLeaveBalance{
				CompanyID: company, EmployeeID: key.EmployeeID, LeaveType: key.LeaveType,
				Total: domain.Days(5), Balance: domain.Days(5), UpdatedAt: time.Now().UTC(),
			})
		}))
		return boom
	})

	require.ErrorIs(t, err, boom)
	latest, err := store.LatestEntry(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, latest)
	p, err := store.GetProjection(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestProjection_Upsert(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	b := domain.EmployeeLeaveBalance{
		CompanyID: company, EmployeeID: key.EmployeeID, LeaveType: key.LeaveType,
		Total: domain.Days(18), Used: domain.Days(2), Balance: domain.Days(16), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveProjection(ctx, b))
	b.Used = domain.Days(4.5)
	b.Balance = domain.Days(13.5)
	require.NoError(t, store.SaveProjection(ctx, b))

	got, err := store.GetProjection(ctx, key)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Used.Equal(domain.Days(4.5)), got.Used.String())
	assert.True(t, got.Balance.Equal(domain.Days(13.5)), got.Balance.String())
}

func TestRequests_CompareAndSwap(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	manager := domain.EmployeeID("emp-manager")
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	r := domain.LeaveRequest{
		ID: "req-1", CompanyID: company, EmployeeID: "emp-1",
		StartDate: domain.NewTimePoint(2025, time.March, 10), EndDate: domain.NewTimePoint(2025, time.March, 11),
		Session: domain.SessionFullDay, Duration: domain.Days(2), LeaveType: domain.LeaveEarned,
		Reason: "trip", ReportingManagerID: &manager, Status: domain.StatusPending,
		BalanceAtRequest: domain.Days(18), CreatedBy: "user-1", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateRequest(ctx, r))
	assert.Equal(t, "duplicate_request", domain.CodeOf(store.CreateRequest(ctx, r)))

	approved := r
	approved.Status = domain.StatusApproved
	approved.ApprovedBy = "user-manager"
	approved.ApprovedAt = &now
	require.NoError(t, store.UpdateRequest(ctx, approved, domain.StatusPending))

	err := store.UpdateRequest(ctx, r, domain.StatusPending)
	assert.Equal(t, "stale_status", domain.CodeOf(err))

	got, err := store.GetRequest(ctx, company, "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)
	assert.Equal(t, "user-manager", got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)
	require.NotNil(t, got.ReportingManagerID)
	assert.Equal(t, manager, *got.ReportingManagerID)
	assert.Equal(t, "2025-03-11", got.EndDate.String())

	listed, err := store.ListRequests(ctx, domain.RequestFilter{
		CompanyID: company, Statuses: []domain.RequestStatus{domain.StatusApproved, domain.StatusPending},
	})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = store.GetRequest(ctx, company, "req-404")
	assert.Equal(t, "request_not_found", domain.CodeOf(err))
}

func TestPolicies_RoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	p := domain.CustomPolicy{
		ID: "pol-1", CompanyID: company, Name: "Senior staff", LeaveType: domain.LeaveEarned,
		AnnualQuota: domain.Days(24), EmployeeIDs: []domain.EmployeeID{"emp-1", "emp-2"},
		Settings: domain.PolicySettings{CarryForward: true, MaxCarryForwardDays: domain.Days(10)},
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreatePolicy(ctx, p))

	got, err := store.GetPolicy(ctx, company, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, p.EmployeeIDs, got.EmployeeIDs)
	assert.True(t, got.AnnualQuota.Equal(domain.Days(24)))
	assert.True(t, got.Settings.CarryForward)

	got.IsDeleted = true
	require.NoError(t, store.UpdatePolicy(ctx, *got))
	_, err = store.GetPolicy(ctx, company, "pol-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := store.ListPolicies(ctx, domain.PolicyFilter{CompanyID: company, EmployeeID: "emp-2", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDirectory_FindEmployee(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	manager := domain.EmployeeID("emp-manager")
	require.NoError(t, store.SaveEmployee(ctx, domain.Employee{
		ID: "emp-1", CompanyID: company, ExternalUserID: "user-1", Name: "Alice",
		ManagerID: &manager, JoiningDate: domain.NewTimePoint(2022, time.January, 10),
		BasicSalary: decimal.NewFromInt(30000), IsActive: true,
	}))
	require.NoError(t, store.SaveEmployee(ctx, domain.Employee{ID: "emp-2", CompanyID: company, IsActive: false}))

	byExternal, err := store.FindEmployee(ctx, company, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EmployeeID("emp-1"), byExternal.ID)
	require.NotNil(t, byExternal.ManagerID)
	assert.Equal(t, manager, *byExternal.ManagerID)
	assert.True(t, byExternal.BasicSalary.Equal(decimal.NewFromInt(30000)))

	_, err = store.FindEmployee(ctx, "globex", "emp-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	active, err := store.ListActiveEmployees(ctx, company)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEngine_OverSQLite(t *testing.T) {
	// GIVEN: A wired engine on SQLite with Alice reporting to a manager
	// WHEN: Alice files 3 days, the manager approves, Alice cancels
	// THEN: 18 -> 15 -> 18 and the ledger chain holds

	store := setupStore(t)
	ctx := context.Background()
	for _, lt := range domain.DefaultLeaveTypes(company) {
		require.NoError(t, store.SaveLeaveType(ctx, lt))
	}
	manager := domain.EmployeeID("emp-manager")
	joined := domain.NewTimePoint(2022, time.January, 10)
	require.NoError(t, store.SaveEmployee(ctx, domain.Employee{ID: manager, CompanyID: company, ExternalUserID: "user-manager", JoiningDate: joined, IsActive: true}))
	require.NoError(t, store.SaveEmployee(ctx, domain.Employee{ID: "emp-alice", CompanyID: company, ExternalUserID: "user-alice", ManagerID: &manager, JoiningDate: joined, IsActive: true}))

	clock := func() time.Time { return time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC) }
	resolver := policy.NewResolver(store, store)
	engine := ledger.NewEngine(store,
		ledger.WithQuotaResolver(resolver),
		ledger.WithCatalog(store),
		ledger.WithClock(clock),
		ledger.WithLogger(zap.NewNop()),
	)
	leaves := leave.NewService(store, engine, store, store, notify.NewLogNotifier(zap.NewNop()), leave.Config{}, zap.NewNop())

	alice := domain.Actor{CompanyID: company, UserID: "user-alice", Role: domain.RoleEmployee}
	boss := domain.Actor{CompanyID: company, UserID: "user-manager", Role: domain.RoleManager}
	r, err := leaves.Create(ctx, alice, leave.CreateInput{
		LeaveType: domain.LeaveEarned,
		StartDate: domain.NewTimePoint(2025, time.March, 10),
		EndDate:   domain.NewTimePoint(2025, time.March, 12),
		Session:   domain.SessionFullDay,
		Reason:    "family trip",
	})
	require.NoError(t, err)

	_, err = leaves.Approve(ctx, boss, r.ID, "ok")
	require.NoError(t, err)
	aliceKey := domain.BalanceKey{CompanyID: company, EmployeeID: "emp-alice", LeaveType: domain.LeaveEarned}
	balance, err := engine.CurrentBalance(ctx, aliceKey)
	require.NoError(t, err)
	assert.True(t, balance.Equal(domain.Days(15)), balance.String())

	// a second approval loses the compare-and-swap
	_, err = leaves.Approve(ctx, boss, r.ID, "again")
	assert.Error(t, err)

	_, err = leaves.Cancel(ctx, alice, r.ID, "plans changed")
	require.NoError(t, err)
	balance, err = engine.CurrentBalance(ctx, aliceKey)
	require.NoError(t, err)
	assert.True(t, balance.Equal(domain.Days(18)), balance.String())

	violation, err := engine.VerifyChain(ctx, aliceKey)
	require.NoError(t, err)
	assert.Nil(t, violation)

	p, err := store.GetProjection(ctx, aliceKey)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Used.IsZero(), p.Used.String())
}
