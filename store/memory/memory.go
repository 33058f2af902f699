// Package memory provides an in-memory domain.Store for tests and dev.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/leave-engine/domain"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements domain.Store, domain.EmployeeDirectory and
// domain.LeaveTypeCatalog. Transactions are simulated with a snapshot and
// rollback on error.
type Memory struct {
	mu    sync.RWMutex
	state *state

	// Directory data lives under its own lock so engines can resolve
	// employees while a transaction holds mu.
	dirMu      sync.RWMutex
	employees  map[domain.CompanyID]map[domain.EmployeeID]domain.Employee
	leaveTypes map[domain.CompanyID]map[domain.LeaveTypeCode]domain.LeaveType
}

type state struct {
	entries      map[domain.BalanceKey][]domain.LedgerEntry
	idempotency  map[string]bool
	projections  map[domain.BalanceKey]domain.EmployeeLeaveBalance
	requests     map[domain.RequestID]domain.LeaveRequest
	requestOrder []domain.RequestID
	policies     map[domain.PolicyID]domain.CustomPolicy
	policyOrder  []domain.PolicyID
}

func New() *Memory {
	return &Memory{
		state: &state{
			entries:     make(map[domain.BalanceKey][]domain.LedgerEntry),
			idempotency: make(map[string]bool),
			projections: make(map[domain.BalanceKey]domain.EmployeeLeaveBalance),
			requests:    make(map[domain.RequestID]domain.LeaveRequest),
			policies:    make(map[domain.PolicyID]domain.CustomPolicy),
		},
		employees:  make(map[domain.CompanyID]map[domain.EmployeeID]domain.Employee),
		leaveTypes: make(map[domain.CompanyID]map[domain.LeaveTypeCode]domain.LeaveType),
	}
}

var _ domain.Store = (*Memory)(nil)
var _ domain.EmployeeDirectory = (*Memory)(nil)
var _ domain.LeaveTypeCatalog = (*Memory)(nil)

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, e *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.appendEntry(e)
}

func (m *Memory) LatestEntry(_ context.Context, key domain.BalanceKey) (*domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.latestEntry(key), nil
}

func (m *Memory) ListEntries(_ context.Context, filter domain.EntryFilter) ([]domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listEntries(filter), nil
}

func idempotencyScope(e *domain.LedgerEntry) string {
	return string(e.CompanyID) + "|" + e.IdempotencyKey
}

func (s *state) appendEntry(e *domain.LedgerEntry) error {
	if e.IdempotencyKey != "" && s.idempotency[idempotencyScope(e)] {
		return domain.Conflict("duplicate_entry", "idempotencyKey", "ledger entry already recorded: "+e.IdempotencyKey)
	}
	k := e.Key()
	entries := s.entries[k]
	e.Sequence = int64(len(entries)) + 1
	s.entries[k] = append(entries, *e)
	if e.IdempotencyKey != "" {
		s.idempotency[idempotencyScope(e)] = true
	}
	return nil
}

func (s *state) latestEntry(key domain.BalanceKey) *domain.LedgerEntry {
	entries := s.entries[key]
	if len(entries) == 0 {
		return nil
	}
	latest := entries[len(entries)-1]
	return &latest
}

func (s *state) listEntries(filter domain.EntryFilter) []domain.LedgerEntry {
	keys := make([]domain.BalanceKey, 0, len(s.entries))
	for k := range s.entries {
		if filter.CompanyID != "" && k.CompanyID != filter.CompanyID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.Compare(keys[i].String(), keys[j].String()) < 0
	})

	var result []domain.LedgerEntry
	for _, k := range keys {
		for _, e := range s.entries[k] {
			if filter.Matches(e) {
				result = append(result, e)
			}
		}
	}
	return result
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func (m *Memory) GetProjection(_ context.Context, key domain.BalanceKey) (*domain.EmployeeLeaveBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getProjection(key), nil
}

func (m *Memory) SaveProjection(_ context.Context, b domain.EmployeeLeaveBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.projections[b.Key()] = b
	return nil
}

func (s *state) getProjection(key domain.BalanceKey) *domain.EmployeeLeaveBalance {
	b, ok := s.projections[key]
	if !ok {
		return nil
	}
	return &b
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) CreateRequest(_ context.Context, r domain.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createRequest(r)
}

func (m *Memory) GetRequest(_ context.Context, companyID domain.CompanyID, id domain.RequestID) (*domain.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getRequest(companyID, id)
}

func (m *Memory) ListRequests(_ context.Context, filter domain.RequestFilter) ([]domain.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listRequests(filter), nil
}

func (m *Memory) UpdateRequest(_ context.Context, r domain.LeaveRequest, expected domain.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updateRequest(r, expected)
}

func (s *state) createRequest(r domain.LeaveRequest) error {
	if _, exists := s.requests[r.ID]; exists {
		return domain.Conflict("duplicate_request", "id", "leave request already exists")
	}
	s.requests[r.ID] = r
	s.requestOrder = append(s.requestOrder, r.ID)
	return nil
}

func (s *state) getRequest(companyID domain.CompanyID, id domain.RequestID) (*domain.LeaveRequest, error) {
	r, ok := s.requests[id]
	if !ok || r.CompanyID != companyID || r.IsDeleted {
		return nil, domain.NotFound("request_not_found", "id", "leave request not found")
	}
	return &r, nil
}

func (s *state) listRequests(filter domain.RequestFilter) []domain.LeaveRequest {
	var result []domain.LeaveRequest
	for _, id := range s.requestOrder {
		if r := s.requests[id]; filter.Matches(r) {
			result = append(result, r)
		}
	}
	return result
}

func (s *state) updateRequest(r domain.LeaveRequest, expected domain.RequestStatus) error {
	current, ok := s.requests[r.ID]
	if !ok || current.CompanyID != r.CompanyID {
		return domain.NotFound("request_not_found", "id", "leave request not found")
	}
	if current.Status != expected {
		return domain.Conflict("stale_status", "status", "leave request is "+string(current.Status)+", expected "+string(expected))
	}
	s.requests[r.ID] = r
	return nil
}

// =============================================================================
// POLICIES
// =============================================================================

func (m *Memory) CreatePolicy(_ context.Context, p domain.CustomPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createPolicy(p)
}

func (m *Memory) GetPolicy(_ context.Context, companyID domain.CompanyID, id domain.PolicyID) (*domain.CustomPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getPolicy(companyID, id)
}

func (m *Memory) UpdatePolicy(_ context.Context, p domain.CustomPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updatePolicy(p)
}

func (m *Memory) ListPolicies(_ context.Context, filter domain.PolicyFilter) ([]domain.CustomPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listPolicies(filter), nil
}

func clonePolicy(p domain.CustomPolicy) domain.CustomPolicy {
	p.EmployeeIDs = append([]domain.EmployeeID(nil), p.EmployeeIDs...)
	return p
}

func (s *state) createPolicy(p domain.CustomPolicy) error {
	if _, exists := s.policies[p.ID]; exists {
		return domain.Conflict("duplicate_policy", "id", "policy already exists")
	}
	s.policies[p.ID] = clonePolicy(p)
	s.policyOrder = append(s.policyOrder, p.ID)
	return nil
}

func (s *state) getPolicy(companyID domain.CompanyID, id domain.PolicyID) (*domain.CustomPolicy, error) {
	p, ok := s.policies[id]
	if !ok || p.CompanyID != companyID || p.IsDeleted {
		return nil, domain.NotFound("policy_not_found", "id", "custom policy not found")
	}
	p = clonePolicy(p)
	return &p, nil
}

func (s *state) updatePolicy(p domain.CustomPolicy) error {
	current, ok := s.policies[p.ID]
	if !ok || current.CompanyID != p.CompanyID {
		return domain.NotFound("policy_not_found", "id", "custom policy not found")
	}
	s.policies[p.ID] = clonePolicy(p)
	return nil
}

func (s *state) listPolicies(filter domain.PolicyFilter) []domain.CustomPolicy {
	var result []domain.CustomPolicy
	for _, id := range s.policyOrder {
		if p := s.policies[id]; filter.Matches(p) {
			result = append(result, clonePolicy(p))
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(domain.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txView{state: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := &state{
		entries:      make(map[domain.BalanceKey][]domain.LedgerEntry, len(s.entries)),
		idempotency:  make(map[string]bool, len(s.idempotency)),
		projections:  make(map[domain.BalanceKey]domain.EmployeeLeaveBalance, len(s.projections)),
		requests:     make(map[domain.RequestID]domain.LeaveRequest, len(s.requests)),
		requestOrder: append([]domain.RequestID(nil), s.requestOrder...),
		policies:     make(map[domain.PolicyID]domain.CustomPolicy, len(s.policies)),
		policyOrder:  append([]domain.PolicyID(nil), s.policyOrder...),
	}
	for k, v := range s.entries {
		c.entries[k] = append([]domain.LedgerEntry(nil), v...)
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.projections {
		c.projections[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.policies {
		c.policies[k] = clonePolicy(v)
	}
	return c
}

// txView operates on the state while WithTx holds the write lock.
type txView struct {
	state *state
}

func (tv *txView) AppendEntry(_ context.Context, e *domain.LedgerEntry) error {
	return tv.state.appendEntry(e)
}

func (tv *txView) LatestEntry(_ context.Context, key domain.BalanceKey) (*domain.LedgerEntry, error) {
	return tv.state.latestEntry(key), nil
}

func (tv *txView) ListEntries(_ context.Context, filter domain.EntryFilter) ([]domain.LedgerEntry, error) {
	return tv.state.listEntries(filter), nil
}

func (tv *txView) GetProjection(_ context.Context, key domain.BalanceKey) (*domain.EmployeeLeaveBalance, error) {
	return tv.state.getProjection(key), nil
}

func (tv *txView) SaveProjection(_ context.Context, b domain.EmployeeLeaveBalance) error {
	tv.state.projections[b.Key()] = b
	return nil
}

func (tv *txView) CreateRequest(_ context.Context, r domain.LeaveRequest) error {
	return tv.state.createRequest(r)
}

func (tv *txView) GetRequest(_ context.Context, companyID domain.CompanyID, id domain.RequestID) (*domain.LeaveRequest, error) {
	return tv.state.getRequest(companyID, id)
}

func (tv *txView) ListRequests(_ context.Context, filter domain.RequestFilter) ([]domain.LeaveRequest, error) {
	return tv.state.listRequests(filter), nil
}

func (tv *txView) UpdateRequest(_ context.Context, r domain.LeaveRequest, expected domain.RequestStatus) error {
	return tv.state.updateRequest(r, expected)
}

func (tv *txView) CreatePolicy(_ context.Context, p domain.CustomPolicy) error {
	return tv.state.createPolicy(p)
}

func (tv *txView) GetPolicy(_ context.Context, companyID domain.CompanyID, id domain.PolicyID) (*domain.CustomPolicy, error) {
	return tv.state.getPolicy(companyID, id)
}

func (tv *txView) UpdatePolicy(_ context.Context, p domain.CustomPolicy) error {
	return tv.state.updatePolicy(p)
}

func (tv *txView) ListPolicies(_ context.Context, filter domain.PolicyFilter) ([]domain.CustomPolicy, error) {
	return tv.state.listPolicies(filter), nil
}

// WithTx joins the enclosing transaction.
func (tv *txView) WithTx(_ context.Context, fn func(domain.Store) error) error {
	return fn(tv)
}

// =============================================================================
// DIRECTORY & CATALOG
// =============================================================================

// PutEmployee inserts or replaces an employee.
func (m *Memory) PutEmployee(e domain.Employee) {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	if m.employees[e.CompanyID] == nil {
		m.employees[e.CompanyID] = make(map[domain.EmployeeID]domain.Employee)
	}
	m.employees[e.CompanyID][e.ID] = e
}

// PutLeaveType inserts or replaces a catalog entry.
func (m *Memory) PutLeaveType(lt domain.LeaveType) {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	if m.leaveTypes[lt.CompanyID] == nil {
		m.leaveTypes[lt.CompanyID] = make(map[domain.LeaveTypeCode]domain.LeaveType)
	}
	m.leaveTypes[lt.CompanyID][lt.Code] = lt
}

func (m *Memory) FindEmployee(_ context.Context, companyID domain.CompanyID, key string) (*domain.Employee, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()

	byID := m.employees[companyID]
	if e, ok := byID[domain.EmployeeID(key)]; ok {
		return &e, nil
	}
	for _, e := range byID {
		if e.ExternalUserID != "" && e.ExternalUserID == key {
			return &e, nil
		}
	}
	return nil, domain.NotFound("employee_not_found", "employeeId", "employee not found")
}

func (m *Memory) ListActiveEmployees(_ context.Context, companyID domain.CompanyID) ([]domain.Employee, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()

	var result []domain.Employee
	for _, e := range m.employees[companyID] {
		if e.IsActive {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) GetLeaveType(_ context.Context, companyID domain.CompanyID, code domain.LeaveTypeCode) (*domain.LeaveType, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()

	lt, ok := m.leaveTypes[companyID][code]
	if !ok {
		return nil, domain.NotFound("leave_type_not_found", "leaveType", "leave type not found: "+string(code))
	}
	return &lt, nil
}

func (m *Memory) ListLeaveTypes(_ context.Context, companyID domain.CompanyID, activeOnly bool) ([]domain.LeaveType, error) {
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()

	var result []domain.LeaveType
	for _, lt := range m.leaveTypes[companyID] {
		if activeOnly && !lt.IsActive {
			continue
		}
		result = append(result, lt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}
