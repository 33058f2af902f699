/*
Package sqlite provides a SQLite-backed implementation of domain.Store.

PURPOSE:
  Persists ledger entries, balance projections, leave requests, custom
  policies and the employee/leave-type directory. In production the same
  patterns apply to PostgreSQL with minor dialect differences.

INTERFACES IMPLEMENTED:
  domain.Store:             ledger, projections, requests, policies, WithTx
  domain.EmployeeDirectory: employee lookup by id or external user id
  domain.LeaveTypeCatalog:  per-tenant leave types

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on ledger_entries
  - UNIQUE(company_id, employee_id, leave_type, sequence) rejects a second
    writer that read the same latest entry
  - UNIQUE(company_id, idempotency_key) rejects replays

KEY TABLES:
  ledger_entries:  immutable balance changes, chained per key
  leave_balances:  denormalized projection, may lag the ledger
  leave_requests:  lifecycle rows, status changed by compare-and-swap
  custom_policies: quota overrides with JSON employee lists
  employees:       directory
  leave_types:     catalog

CONCURRENCY:
  One connection: SQLite has a single writer, and ":memory:" databases
  are per connection. Every statement inside WithTx runs on the sql.Tx.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - domain/store.go: interface contracts
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/domain"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store implements domain.Store using SQLite. A Store returned to a WithTx
// callback is bound to that transaction.
type Store struct {
	db   *sql.DB
	q    querier
	mu   *sync.Mutex
	inTx bool
}

var _ domain.Store = (*Store)(nil)
var _ domain.EmployeeDirectory = (*Store)(nil)
var _ domain.LeaveTypeCatalog = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: db, mu: &sync.Mutex{}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		transaction_type TEXT NOT NULL,
		transaction_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		leave_request_id TEXT,
		policy_id TEXT,
		financial_year TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		description TEXT,
		details_json TEXT,
		idempotency_key TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(company_id, employee_id, leave_type, sequence)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_idempotency
		ON ledger_entries(company_id, idempotency_key) WHERE idempotency_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_ledger_date
		ON ledger_entries(company_id, transaction_date);
	CREATE INDEX IF NOT EXISTS idx_ledger_request
		ON ledger_entries(leave_request_id) WHERE leave_request_id IS NOT NULL;

	-- Balance projection
	CREATE TABLE IF NOT EXISTS leave_balances (
		company_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		total TEXT NOT NULL,
		used TEXT NOT NULL,
		balance TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (company_id, employee_id, leave_type)
	);

	-- Leave requests
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		session TEXT NOT NULL,
		duration TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		reason TEXT,
		reporting_manager_id TEXT,
		is_hr_fallback BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'pending',
		approved_by TEXT,
		approved_at TEXT,
		approval_comments TEXT,
		rejected_by TEXT,
		rejected_at TEXT,
		rejection_reason TEXT,
		cancelled_by TEXT,
		cancelled_at TEXT,
		cancellation_reason TEXT,
		balance_at_request TEXT NOT NULL,
		attachment_url TEXT,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(company_id, employee_id, status);
	CREATE INDEX IF NOT EXISTS idx_requests_manager
		ON leave_requests(company_id, reporting_manager_id);

	-- Custom policies
	CREATE TABLE IF NOT EXISTS custom_policies (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		annual_quota TEXT NOT NULL,
		employee_ids_json TEXT NOT NULL,
		settings_json TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_company_type
		ON custom_policies(company_id, leave_type);

	-- Directory
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		external_user_id TEXT,
		name TEXT NOT NULL,
		email TEXT,
		department TEXT,
		manager_id TEXT,
		joining_date TEXT,
		basic_salary TEXT NOT NULL DEFAULT '0',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (company_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_employees_external
		ON employees(company_id, external_user_id);

	CREATE TABLE IF NOT EXISTS leave_types (
		company_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		annual_quota TEXT NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT TRUE,
		carry_forward_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		encashment_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (company_id, code)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside a database transaction. Nested calls join.
func (s *Store) WithTx(ctx context.Context, fn func(domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &Store{db: s.db, q: sqlTx, mu: s.mu, inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// LEDGER
// =============================================================================

const entryColumns = `id, company_id, employee_id, leave_type, sequence, transaction_type,
	transaction_date, amount, balance_before, balance_after, leave_request_id, policy_id,
	financial_year, year, month, description, details_json, idempotency_key, created_by, created_at`

func (s *Store) AppendEntry(ctx context.Context, e *domain.LedgerEntry) error {
	var maxSeq int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM ledger_entries
		 WHERE company_id = ? AND employee_id = ? AND leave_type = ?`,
		e.CompanyID, e.EmployeeID, e.LeaveType,
	).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("failed to read ledger sequence: %w", err)
	}

	var detailsJSON sql.NullString
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to encode entry details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(b), Valid: true}
	}

	seq := maxSeq + 1
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CompanyID, e.EmployeeID, e.LeaveType, seq, e.TransactionType,
		formatTime(e.TransactionDate), e.Amount.String(), e.BalanceBefore.String(), e.BalanceAfter.String(),
		nullString(string(e.LeaveRequestID)), nullString(string(e.PolicyID)),
		e.FinancialYear, e.Year, int(e.Month), e.Description, detailsJSON,
		nullString(e.IdempotencyKey), e.CreatedBy, formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "idempotency_key") {
				return domain.Conflict("duplicate_entry", "idempotencyKey", "ledger entry already recorded: "+e.IdempotencyKey)
			}
			return domain.Conflict("concurrent_append", "sequence", "ledger for "+e.Key().String()+" changed concurrently")
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	e.Sequence = seq
	return nil
}

func (s *Store) LatestEntry(ctx context.Context, key domain.BalanceKey) (*domain.LedgerEntry, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE company_id = ? AND employee_id = ? AND leave_type = ?
		 ORDER BY sequence DESC LIMIT 1`,
		key.CompanyID, key.EmployeeID, key.LeaveType,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEntries(ctx context.Context, filter domain.EntryFilter) ([]domain.LedgerEntry, error) {
	var w where
	w.eq("company_id", string(filter.CompanyID))
	w.eq("employee_id", string(filter.EmployeeID))
	w.eq("leave_type", string(filter.LeaveType))
	w.eq("transaction_type", string(filter.TransactionType))
	w.eq("financial_year", filter.FinancialYear)
	if filter.From != nil {
		w.add("transaction_date >= ?", formatTime(*filter.From))
	}
	if filter.To != nil {
		w.add("transaction_date <= ?", formatTime(*filter.To))
	}
	if filter.Year != 0 {
		w.add("year = ?", filter.Year)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries`+w.sql()+
			` ORDER BY company_id, employee_id, leave_type, sequence`,
		w.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row scanner) (domain.LedgerEntry, error) {
	var (
		e                                   domain.LedgerEntry
		amount, before, after               string
		txDate, createdAt                   string
		requestID, policyID, idempotencyKey sql.NullString
		description, detailsJSON, createdBy sql.NullString
		month                               int
	)
	err := row.Scan(
		&e.ID, &e.CompanyID, &e.EmployeeID, &e.LeaveType, &e.Sequence, &e.TransactionType,
		&txDate, &amount, &before, &after, &requestID, &policyID,
		&e.FinancialYear, &e.Year, &month, &description, &detailsJSON, &idempotencyKey, &createdBy, &createdAt,
	)
	if err != nil {
		return e, err
	}

	e.TransactionDate = parseTime(txDate)
	e.CreatedAt = parseTime(createdAt)
	e.Amount = parseAmount(amount)
	e.BalanceBefore = parseAmount(before)
	e.BalanceAfter = parseAmount(after)
	e.LeaveRequestID = domain.RequestID(requestID.String)
	e.PolicyID = domain.PolicyID(policyID.String)
	e.Month = time.Month(month)
	e.Description = description.String
	e.IdempotencyKey = idempotencyKey.String
	e.CreatedBy = createdBy.String
	if detailsJSON.Valid && detailsJSON.String != "" {
		var d domain.EntryDetails
		if err := json.Unmarshal([]byte(detailsJSON.String), &d); err != nil {
			return e, fmt.Errorf("failed to decode entry details: %w", err)
		}
		e.Details = &d
	}
	return e, nil
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func (s *Store) GetProjection(ctx context.Context, key domain.BalanceKey) (*domain.EmployeeLeaveBalance, error) {
	var total, used, balance, updatedAt string
	err := s.q.QueryRowContext(ctx,
		`SELECT total, used, balance, updated_at FROM leave_balances
		 WHERE company_id = ? AND employee_id = ? AND leave_type = ?`,
		key.CompanyID, key.EmployeeID, key.LeaveType,
	).Scan(&total, &used, &balance, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read projection: %w", err)
	}
	return &domain.EmployeeLeaveBalance{
		CompanyID:  key.CompanyID,
		EmployeeID: key.EmployeeID,
		LeaveType:  key.LeaveType,
		Total:      parseAmount(total),
		Used:       parseAmount(used),
		Balance:    parseAmount(balance),
		UpdatedAt:  parseTime(updatedAt),
	}, nil
}

func (s *Store) SaveProjection(ctx context.Context, b domain.EmployeeLeaveBalance) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO leave_balances (company_id, employee_id, leave_type, total, used, balance, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(company_id, employee_id, leave_type) DO UPDATE SET
			total = excluded.total,
			used = excluded.used,
			balance = excluded.balance,
			updated_at = excluded.updated_at`,
		b.CompanyID, b.EmployeeID, b.LeaveType,
		b.Total.String(), b.Used.String(), b.Balance.String(), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save projection: %w", err)
	}
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, company_id, employee_id, start_date, end_date, session, duration,
	leave_type, reason, reporting_manager_id, is_hr_fallback, status,
	approved_by, approved_at, approval_comments, rejected_by, rejected_at, rejection_reason,
	cancelled_by, cancelled_at, cancellation_reason, balance_at_request, attachment_url,
	is_deleted, created_by, created_at, updated_at`

func requestArgs(r domain.LeaveRequest) []any {
	var manager sql.NullString
	if r.ReportingManagerID != nil {
		manager = sql.NullString{String: string(*r.ReportingManagerID), Valid: true}
	}
	return []any{
		r.ID, r.CompanyID, r.EmployeeID, r.StartDate.String(), r.EndDate.String(), r.Session, r.Duration.String(),
		r.LeaveType, r.Reason, manager, r.IsHRFallback, r.Status,
		nullString(r.ApprovedBy), nullTime(r.ApprovedAt), nullString(r.ApprovalComments),
		nullString(r.RejectedBy), nullTime(r.RejectedAt), nullString(r.RejectionReason),
		nullString(r.CancelledBy), nullTime(r.CancelledAt), nullString(r.CancellationReason),
		r.BalanceAtRequest.String(), nullString(r.AttachmentURL),
		r.IsDeleted, r.CreatedBy, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	}
}

func (s *Store) CreateRequest(ctx context.Context, r domain.LeaveRequest) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO leave_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		requestArgs(r)...,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.Conflict("duplicate_request", "id", "leave request already exists")
		}
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, companyID domain.CompanyID, id domain.RequestID) (*domain.LeaveRequest, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM leave_requests
		 WHERE id = ? AND company_id = ? AND is_deleted = FALSE`,
		id, companyID,
	)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("request_not_found", "id", "leave request not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.LeaveRequest, error) {
	var w where
	w.eq("company_id", string(filter.CompanyID))
	w.eq("employee_id", string(filter.EmployeeID))
	w.eq("reporting_manager_id", string(filter.ReportingManagerID))
	w.eq("leave_type", string(filter.LeaveType))
	if filter.HRFallbackOnly {
		w.add("is_hr_fallback = TRUE")
	}
	if !filter.IncludeDeleted {
		w.add("is_deleted = FALSE")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		args := make([]any, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args[i] = string(st)
		}
		w.add("status IN ("+strings.Join(placeholders, ", ")+")", args...)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM leave_requests`+w.sql()+` ORDER BY created_at, rowid`,
		w.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (s *Store) UpdateRequest(ctx context.Context, r domain.LeaveRequest, expected domain.RequestStatus) error {
	args := requestArgs(r)
	// Drop id and company_id from the SET list; they key the WHERE clause.
	res, err := s.q.ExecContext(ctx,
		`UPDATE leave_requests SET
			employee_id = ?, start_date = ?, end_date = ?, session = ?, duration = ?,
			leave_type = ?, reason = ?, reporting_manager_id = ?, is_hr_fallback = ?, status = ?,
			approved_by = ?, approved_at = ?, approval_comments = ?,
			rejected_by = ?, rejected_at = ?, rejection_reason = ?,
			cancelled_by = ?, cancelled_at = ?, cancellation_reason = ?,
			balance_at_request = ?, attachment_url = ?,
			is_deleted = ?, created_by = ?, created_at = ?, updated_at = ?
		 WHERE id = ? AND company_id = ? AND status = ?`,
		append(args[2:], r.ID, r.CompanyID, expected)...,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var current string
	err = s.q.QueryRowContext(ctx,
		`SELECT status FROM leave_requests WHERE id = ? AND company_id = ?`, r.ID, r.CompanyID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound("request_not_found", "id", "leave request not found")
	}
	if err != nil {
		return fmt.Errorf("failed to read leave request status: %w", err)
	}
	return domain.Conflict("stale_status", "status", "leave request is "+current+", expected "+string(expected))
}

func scanRequest(row scanner) (domain.LeaveRequest, error) {
	var (
		r                                       domain.LeaveRequest
		startDate, endDate, duration, atRequest string
		createdAt, updatedAt                    string
		reason, manager, approvedBy, approvedAt sql.NullString
		comments, rejectedBy, rejectedAt        sql.NullString
		rejection, cancelledBy, cancelledAt     sql.NullString
		cancellation, attachment, createdBy     sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.CompanyID, &r.EmployeeID, &startDate, &endDate, &r.Session, &duration,
		&r.LeaveType, &reason, &manager, &r.IsHRFallback, &r.Status,
		&approvedBy, &approvedAt, &comments, &rejectedBy, &rejectedAt, &rejection,
		&cancelledBy, &cancelledAt, &cancellation, &atRequest, &attachment,
		&r.IsDeleted, &createdBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return r, err
	}

	r.StartDate = parseDate(startDate)
	r.EndDate = parseDate(endDate)
	r.Duration = parseAmount(duration)
	r.BalanceAtRequest = parseAmount(atRequest)
	r.Reason = reason.String
	if manager.Valid {
		id := domain.EmployeeID(manager.String)
		r.ReportingManagerID = &id
	}
	r.ApprovedBy = approvedBy.String
	r.ApprovedAt = parseNullTime(approvedAt)
	r.ApprovalComments = comments.String
	r.RejectedBy = rejectedBy.String
	r.RejectedAt = parseNullTime(rejectedAt)
	r.RejectionReason = rejection.String
	r.CancelledBy = cancelledBy.String
	r.CancelledAt = parseNullTime(cancelledAt)
	r.CancellationReason = cancellation.String
	r.AttachmentURL = attachment.String
	r.CreatedBy = createdBy.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

// =============================================================================
// POLICIES
// =============================================================================

const policyColumns = `id, company_id, name, leave_type, annual_quota, employee_ids_json,
	settings_json, is_active, is_deleted, created_by, created_at, updated_at`

func policyArgs(p domain.CustomPolicy) ([]any, error) {
	ids := p.EmployeeIDs
	if ids == nil {
		ids = []domain.EmployeeID{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	settingsJSON, err := json.Marshal(p.Settings)
	if err != nil {
		return nil, err
	}
	return []any{
		p.ID, p.CompanyID, p.Name, p.LeaveType, p.AnnualQuota.String(), string(idsJSON),
		string(settingsJSON), p.IsActive, p.IsDeleted, p.CreatedBy, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	}, nil
}

func (s *Store) CreatePolicy(ctx context.Context, p domain.CustomPolicy) error {
	args, err := policyArgs(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO custom_policies (`+policyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.Conflict("duplicate_policy", "id", "policy already exists")
		}
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, companyID domain.CompanyID, id domain.PolicyID) (*domain.CustomPolicy, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM custom_policies WHERE id = ? AND company_id = ? AND is_deleted = FALSE`,
		id, companyID,
	)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("policy_not_found", "id", "custom policy not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p domain.CustomPolicy) error {
	args, err := policyArgs(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE custom_policies SET
			name = ?, leave_type = ?, annual_quota = ?, employee_ids_json = ?, settings_json = ?,
			is_active = ?, is_deleted = ?, created_by = ?, created_at = ?, updated_at = ?
		 WHERE id = ? AND company_id = ?`,
		append(args[2:], p.ID, p.CompanyID)...,
	)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("policy_not_found", "id", "custom policy not found")
	}
	return nil
}

func (s *Store) ListPolicies(ctx context.Context, filter domain.PolicyFilter) ([]domain.CustomPolicy, error) {
	var w where
	w.eq("company_id", string(filter.CompanyID))
	w.eq("leave_type", string(filter.LeaveType))
	if filter.ActiveOnly {
		w.add("is_active = TRUE")
	}
	if !filter.IncludeDeleted {
		w.add("is_deleted = FALSE")
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM custom_policies`+w.sql()+` ORDER BY created_at, rowid`,
		w.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []domain.CustomPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		// Membership lives in JSON; filter it here.
		if filter.Matches(p) {
			policies = append(policies, p)
		}
	}
	return policies, rows.Err()
}

func scanPolicy(row scanner) (domain.CustomPolicy, error) {
	var (
		p                            domain.CustomPolicy
		quota, idsJSON, settingsJSON string
		createdAt, updatedAt         string
		createdBy                    sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.Name, &p.LeaveType, &quota, &idsJSON,
		&settingsJSON, &p.IsActive, &p.IsDeleted, &createdBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &p.EmployeeIDs); err != nil {
		return p, fmt.Errorf("failed to decode policy employees: %w", err)
	}
	if err := json.Unmarshal([]byte(settingsJSON), &p.Settings); err != nil {
		return p, fmt.Errorf("failed to decode policy settings: %w", err)
	}
	p.AnnualQuota = parseAmount(quota)
	p.CreatedBy = createdBy.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// =============================================================================
// DIRECTORY & CATALOG
// =============================================================================

const employeeColumns = `id, company_id, external_user_id, name, email, department,
	manager_id, joining_date, basic_salary, is_active`

// SaveEmployee inserts or replaces an employee.
func (s *Store) SaveEmployee(ctx context.Context, e domain.Employee) error {
	var manager sql.NullString
	if e.ManagerID != nil {
		manager = sql.NullString{String: string(*e.ManagerID), Valid: true}
	}
	var joining sql.NullString
	if !e.JoiningDate.IsZero() {
		joining = sql.NullString{String: e.JoiningDate.String(), Valid: true}
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO employees (`+employeeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CompanyID, nullString(e.ExternalUserID), e.Name, e.Email, e.Department,
		manager, joining, e.BasicSalary.String(), e.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) FindEmployee(ctx context.Context, companyID domain.CompanyID, key string) (*domain.Employee, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees
		 WHERE company_id = ? AND (id = ? OR external_user_id = ?)
		 ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END LIMIT 1`,
		companyID, key, key, key,
	)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("employee_not_found", "employeeId", "employee not found")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListActiveEmployees(ctx context.Context, companyID domain.CompanyID) ([]domain.Employee, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE company_id = ? AND is_active = TRUE ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []domain.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func scanEmployee(row scanner) (domain.Employee, error) {
	var (
		e                              domain.Employee
		external, email, dept, manager sql.NullString
		joining                        sql.NullString
		salary                         string
	)
	err := row.Scan(&e.ID, &e.CompanyID, &external, &e.Name, &email, &dept, &manager, &joining, &salary, &e.IsActive)
	if err != nil {
		return e, err
	}
	e.ExternalUserID = external.String
	e.Email = email.String
	e.Department = dept.String
	if manager.Valid {
		id := domain.EmployeeID(manager.String)
		e.ManagerID = &id
	}
	if joining.Valid {
		e.JoiningDate = parseDate(joining.String)
	}
	e.BasicSalary, _ = decimal.NewFromString(salary)
	return e, nil
}

// SaveLeaveType inserts or replaces a catalog entry.
func (s *Store) SaveLeaveType(ctx context.Context, lt domain.LeaveType) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO leave_types
			(company_id, code, name, annual_quota, is_paid, carry_forward_allowed, encashment_allowed, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lt.CompanyID, lt.Code, lt.Name, lt.AnnualQuota.String(),
		lt.IsPaid, lt.CarryForwardAllowed, lt.EncashmentAllowed, lt.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save leave type: %w", err)
	}
	return nil
}

const leaveTypeColumns = `company_id, code, name, annual_quota, is_paid, carry_forward_allowed, encashment_allowed, is_active`

func (s *Store) GetLeaveType(ctx context.Context, companyID domain.CompanyID, code domain.LeaveTypeCode) (*domain.LeaveType, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+leaveTypeColumns+` FROM leave_types WHERE company_id = ? AND code = ?`,
		companyID, code,
	)
	lt, err := scanLeaveType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("leave_type_not_found", "leaveType", "leave type not found: "+string(code))
	}
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func (s *Store) ListLeaveTypes(ctx context.Context, companyID domain.CompanyID, activeOnly bool) ([]domain.LeaveType, error) {
	query := `SELECT ` + leaveTypeColumns + ` FROM leave_types WHERE company_id = ?`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	rows, err := s.q.QueryContext(ctx, query+` ORDER BY code`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var types []domain.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

func scanLeaveType(row scanner) (domain.LeaveType, error) {
	var lt domain.LeaveType
	var quota string
	err := row.Scan(&lt.CompanyID, &lt.Code, &lt.Name, &quota, &lt.IsPaid, &lt.CarryForwardAllowed, &lt.EncashmentAllowed, &lt.IsActive)
	if err != nil {
		return lt, err
	}
	lt.AnnualQuota = parseAmount(quota)
	return lt, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// where accumulates AND-ed predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

// eq adds column = value unless value is empty.
func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDate(s string) domain.TimePoint {
	tp, _ := domain.ParseDate(s)
	return tp
}

func parseAmount(s string) domain.Amount {
	a, _ := domain.ParseDays(s)
	return a
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
