/*
store.go - Persistence interfaces

PURPOSE:
  The boundary between engines and the datastore. Any store with
  transactional (or document-level atomic) writes can implement it.

KEY INTERFACES:
  LedgerStore:     append-only entries, latest-entry lookup, history
  ProjectionStore: denormalized EmployeeLeaveBalance rows
  RequestStore:    leave requests with compare-and-swap status updates
  PolicyStore:     custom policy records
  Store:           all of the above plus WithTx

APPEND-ONLY CONTRACT:
  LedgerStore has no Update or Delete. AppendEntry assigns the next
  Sequence for the entry's BalanceKey and fails with ErrConflict when the
  idempotency key already exists or a concurrent writer took the sequence.

COMPARE-AND-SWAP:
  UpdateRequest writes only if the stored status still equals 'expected'.
  Two approvals racing on the same request: one wins, the other gets
  ErrConflict.

TRANSACTIONS:
  WithTx runs fn against a transactional view. fn returning an error rolls
  back every write made through the view. Calling WithTx on a view joins
  the enclosing transaction.

IMPLEMENTATIONS:
  - store/sqlite: SQLite via database/sql
  - store/memory: in-memory, snapshot rollback
*/
package domain

import "context"

type LedgerStore interface {
	// AppendEntry persists e and sets e.Sequence. The ONLY ledger write.
	AppendEntry(ctx context.Context, e *LedgerEntry) error

	// LatestEntry returns the highest-sequence entry for key, or nil.
	LatestEntry(ctx context.Context, key BalanceKey) (*LedgerEntry, error)

	// ListEntries returns matching entries ordered by key then Sequence.
	ListEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error)
}

type ProjectionStore interface {
	// GetProjection returns nil when no projection row exists.
	GetProjection(ctx context.Context, key BalanceKey) (*EmployeeLeaveBalance, error)
	SaveProjection(ctx context.Context, b EmployeeLeaveBalance) error
}

type RequestStore interface {
	CreateRequest(ctx context.Context, r LeaveRequest) error

	// GetRequest returns ErrNotFound for unknown or soft-deleted requests.
	GetRequest(ctx context.Context, companyID CompanyID, id RequestID) (*LeaveRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)

	// UpdateRequest replaces r only if the stored status equals expected.
	UpdateRequest(ctx context.Context, r LeaveRequest, expected RequestStatus) error
}

type PolicyStore interface {
	CreatePolicy(ctx context.Context, p CustomPolicy) error
	GetPolicy(ctx context.Context, companyID CompanyID, id PolicyID) (*CustomPolicy, error)
	UpdatePolicy(ctx context.Context, p CustomPolicy) error

	// ListPolicies returns matches ordered by creation time, oldest first.
	ListPolicies(ctx context.Context, filter PolicyFilter) ([]CustomPolicy, error)
}

// Store is the full transactional persistence surface.
type Store interface {
	LedgerStore
	ProjectionStore
	RequestStore
	PolicyStore

	WithTx(ctx context.Context, fn func(Store) error) error
}
