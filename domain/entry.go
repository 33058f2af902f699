package domain

import "time"

// =============================================================================
// LEDGER ENTRY - Immutable record of one balance change
// =============================================================================

type TransactionType string

const (
	TxOpening          TransactionType = "opening"           // seeds a ledger from the projection or quota
	TxAllocated        TransactionType = "allocated"         // periodic grant
	TxUsed             TransactionType = "used"              // approved leave
	TxRestored         TransactionType = "restored"          // cancelled approved leave
	TxCarryForward     TransactionType = "carry_forward"     // rollover into the next financial year
	TxEncashed         TransactionType = "encashed"          // converted to payout
	TxAdjustment       TransactionType = "adjustment"        // manual admin correction
	TxCustomAdjustment TransactionType = "custom_adjustment" // custom policy quota delta
	TxExpired          TransactionType = "expired"           // lapsed balance at period close
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TxOpening, TxAllocated, TxUsed, TxRestored, TxCarryForward,
		TxEncashed, TxAdjustment, TxCustomAdjustment, TxExpired:
		return true
	}
	return false
}

// LedgerEntry is append-only. Corrections are new compensating entries.
//
// INVARIANTS (per BalanceKey, ordered by Sequence):
//   - BalanceAfter == BalanceBefore + Amount
//   - BalanceBefore of entry N == BalanceAfter of entry N-1 (first entry starts at 0)
type LedgerEntry struct {
	ID              EntryID
	CompanyID       CompanyID
	EmployeeID      EmployeeID
	LeaveType       LeaveTypeCode
	TransactionType TransactionType
	TransactionDate time.Time

	// Sequence is the insertion order within the key; the store assigns it.
	Sequence int64

	Amount        Amount
	BalanceBefore Amount
	BalanceAfter  Amount

	LeaveRequestID RequestID
	PolicyID       PolicyID
	FinancialYear  string
	Year           int
	Month          time.Month
	Description    string
	Details        *EntryDetails

	IdempotencyKey string
	CreatedBy      string
	CreatedAt      time.Time
}

func (e LedgerEntry) Key() BalanceKey {
	return BalanceKey{CompanyID: e.CompanyID, EmployeeID: e.EmployeeID, LeaveType: e.LeaveType}
}

// EntryDetails carries structured context for usage, restoration and carry-forward entries.
type EntryDetails struct {
	StartDate  *TimePoint `json:"startDate,omitempty"`
	EndDate    *TimePoint `json:"endDate,omitempty"`
	Duration   *Amount    `json:"duration,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	FromYear   string     `json:"fromYear,omitempty"`
	ExpiryDate *TimePoint `json:"expiryDate,omitempty"`
}

// EntryFilter selects ledger history. Zero fields are ignored.
type EntryFilter struct {
	CompanyID       CompanyID
	EmployeeID      EmployeeID
	LeaveType       LeaveTypeCode
	TransactionType TransactionType
	From            *time.Time
	To              *time.Time
	FinancialYear   string
	Year            int
}

// Matches applies the filter in memory.
func (f EntryFilter) Matches(e LedgerEntry) bool {
	if f.CompanyID != "" && e.CompanyID != f.CompanyID {
		return false
	}
	if f.EmployeeID != "" && e.EmployeeID != f.EmployeeID {
		return false
	}
	if f.LeaveType != "" && e.LeaveType != f.LeaveType {
		return false
	}
	if f.TransactionType != "" && e.TransactionType != f.TransactionType {
		return false
	}
	if f.From != nil && e.TransactionDate.Before(*f.From) {
		return false
	}
	if f.To != nil && e.TransactionDate.After(*f.To) {
		return false
	}
	if f.FinancialYear != "" && e.FinancialYear != f.FinancialYear {
		return false
	}
	if f.Year != 0 && e.Year != f.Year {
		return false
	}
	return true
}

// EmployeeLeaveBalance is the denormalized projection kept next to the employee.
// It can lag; the ledger's latest BalanceAfter is authoritative.
type EmployeeLeaveBalance struct {
	CompanyID  CompanyID
	EmployeeID EmployeeID
	LeaveType  LeaveTypeCode
	Total      Amount
	Used       Amount
	Balance    Amount
	UpdatedAt  time.Time
}

func (b EmployeeLeaveBalance) Key() BalanceKey {
	return BalanceKey{CompanyID: b.CompanyID, EmployeeID: b.EmployeeID, LeaveType: b.LeaveType}
}
