// Package testkit assembles a fully wired engine over an in-memory store
// with a controllable clock, for use by package tests.
package testkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/carryforward"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/encashment"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/store/memory"
)

const Company domain.CompanyID = "acme"

// Employees in the default fixture.
const (
	Alice   domain.EmployeeID = "emp-alice"   // reports to Manager
	Manager domain.EmployeeID = "emp-manager" // no manager: HR fallback
	Bob     domain.EmployeeID = "emp-bob"     // no manager: HR fallback
	HR      domain.EmployeeID = "emp-hr"
	Admin   domain.EmployeeID = "emp-admin"
	Carol   domain.EmployeeID = "emp-carol" // reports to Manager, joined recently
)

// Env is a wired engine. Today starts at 2025-03-01 (inside FY2024-2025).
type Env struct {
	Store        *memory.Memory
	Ledger       *ledger.Engine
	Resolver     *policy.Resolver
	Leaves       *leave.Service
	Policies     *policy.Service
	CarryForward *carryforward.Engine
	Encashment   *encashment.Engine
	Notifier     *Recorder
	Rules        *config.RuleBook

	mu  sync.Mutex
	now time.Time
	seq int
}

// Option adjusts the environment before services are built.
type Option func(*options)

type options struct {
	leaveCfg leave.Config
	rules    *config.RuleBook
}

func WithLeaveConfig(cfg leave.Config) Option { return func(o *options) { o.leaveCfg = cfg } }
func WithRules(r *config.RuleBook) Option     { return func(o *options) { o.rules = r } }

func New(t testing.TB, opts ...Option) *Env {
	t.Helper()
	o := options{rules: config.NewRuleBook(config.Rules{}, nil)}
	for _, opt := range opts {
		opt(&o)
	}

	env := &Env{
		Store:    memory.New(),
		Notifier: &Recorder{},
		Rules:    o.rules,
		now:      time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
	logger := zap.NewNop()

	env.Resolver = policy.NewResolver(env.Store, env.Store)
	env.Ledger = ledger.NewEngine(env.Store,
		ledger.WithQuotaResolver(env.Resolver),
		ledger.WithCatalog(env.Store),
		ledger.WithClock(env.Clock()),
		ledger.WithLogger(logger),
	)
	env.Leaves = leave.NewService(env.Store, env.Ledger, env.Store, env.Store, env.Notifier, o.leaveCfg, logger)
	env.Policies = policy.NewService(env.Store, env.Resolver, env.Ledger, env.Store, env.Store, logger)
	env.CarryForward = carryforward.NewEngine(env.Store, env.Ledger, env.Store, env.Store, o.rules, 2, logger)
	env.Encashment = encashment.NewEngine(env.Store, env.Ledger, env.Store, o.rules, 2, logger)

	for _, lt := range domain.DefaultLeaveTypes(Company) {
		env.Store.PutLeaveType(lt)
	}
	manager := Manager
	joined := domain.NewTimePoint(2022, time.January, 10)
	for _, e := range []domain.Employee{
		{ID: Alice, Name: "Alice", ManagerID: &manager, JoiningDate: joined},
		{ID: Manager, Name: "Maya Manager", JoiningDate: joined},
		{ID: Bob, Name: "Bob", JoiningDate: joined},
		{ID: HR, Name: "Hana HR", JoiningDate: joined},
		{ID: Admin, Name: "Ari Admin", JoiningDate: joined},
		{ID: Carol, Name: "Carol", ManagerID: &manager, JoiningDate: domain.NewTimePoint(2024, time.December, 1)},
	} {
		e.CompanyID = Company
		e.ExternalUserID = "user-" + string(e.ID)[len("emp-"):]
		e.Email = string(e.ID) + "@acme.test"
		e.BasicSalary = decimal.NewFromInt(30000)
		e.IsActive = true
		env.Store.PutEmployee(e)
	}
	return env
}

// Clock returns the environment clock.
func (e *Env) Clock() domain.Clock {
	return func() time.Time {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.seq++
		return e.now.Add(time.Duration(e.seq) * time.Millisecond)
	}
}

// SetToday moves the clock to 09:00 UTC on the given day.
func (e *Env) SetToday(year int, month time.Month, day int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
}

// As returns an actor identified by external user id only, as the HTTP
// layer would build it.
func As(id domain.EmployeeID, role domain.Role) domain.Actor {
	return domain.Actor{CompanyID: Company, UserID: "user-" + string(id)[len("emp-"):], Role: role}
}

func Employee(id domain.EmployeeID) domain.Actor { return As(id, domain.RoleEmployee) }
func AsManager() domain.Actor                    { return As(Manager, domain.RoleManager) }
func AsHR() domain.Actor                         { return As(HR, domain.RoleHR) }
func AsAdmin() domain.Actor                      { return As(Admin, domain.RoleAdmin) }

// Key builds a balance key in the fixture company.
func Key(emp domain.EmployeeID, lt domain.LeaveTypeCode) domain.BalanceKey {
	return domain.BalanceKey{CompanyID: Company, EmployeeID: emp, LeaveType: lt}
}

// Date is shorthand for a calendar day.
func Date(year int, month time.Month, day int) domain.TimePoint {
	return domain.NewTimePoint(year, month, day)
}

// SetBalance seeds an existing projection, as if migrated from a system
// without a ledger.
func (e *Env) SetBalance(t testing.TB, emp domain.EmployeeID, lt domain.LeaveTypeCode, total, used float64) {
	t.Helper()
	require.NoError(t, e.Store.SaveProjection(context.Background(), domain.EmployeeLeaveBalance{
		CompanyID:  Company,
		EmployeeID: emp,
		LeaveType:  lt,
		Total:      domain.Days(total),
		Used:       domain.Days(used),
		Balance:    domain.Days(total - used),
		UpdatedAt:  e.Clock().Now(),
	}))
}

// Balance returns the authoritative balance for a key.
func (e *Env) Balance(t testing.TB, emp domain.EmployeeID, lt domain.LeaveTypeCode) domain.Amount {
	t.Helper()
	b, err := e.Ledger.CurrentBalance(context.Background(), Key(emp, lt))
	require.NoError(t, err)
	return b
}

// AssertDays compares amounts by value, ignoring decimal exponent.
func AssertDays(t testing.TB, want float64, got domain.Amount, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Truef(t, got.Equal(domain.Days(want)), "expected %v days, got %s %v", want, got, msgAndArgs)
}

// RequireChain fails the test when the key's ledger breaks an invariant.
func (e *Env) RequireChain(t testing.TB, emp domain.EmployeeID, lt domain.LeaveTypeCode) {
	t.Helper()
	v, err := e.Ledger.VerifyChain(context.Background(), Key(emp, lt))
	require.NoError(t, err)
	require.Nil(t, v, "ledger chain violation: %v", v)
}

// File creates a full-day request for emp.
func (e *Env) File(t testing.TB, emp domain.EmployeeID, lt domain.LeaveTypeCode, start, end domain.TimePoint) *domain.LeaveRequest {
	t.Helper()
	r, err := e.Leaves.Create(context.Background(), Employee(emp), leave.CreateInput{
		LeaveType: lt,
		StartDate: start,
		EndDate:   end,
		Reason:    "personal",
	})
	require.NoError(t, err)
	return r
}

// Recorder is a Notifier that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
	Err    error
}

func (r *Recorder) Notify(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

// Types lists recorded event types in order.
func (r *Recorder) Types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}
