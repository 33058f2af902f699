/*
Package domain holds the shared vocabulary of the leave engine.

PURPOSE:
  Types every component agrees on: day amounts, identifiers, ledger
  entries, leave requests, custom policies, employees and the store
  interfaces that persist them. The engines (ledger, policy, leave,
  carryforward, encashment) depend on this package only, never on each
  other's concrete stores.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: a signed quantity of leave days (half-day granularity)
  - Identifiers: CompanyID (tenant key), EmployeeID, LeaveTypeCode
  - BalanceKey: the (company, employee, leave type) ledger partition

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal, never float64, for day arithmetic
  2. Tenancy: every key carries the CompanyID
  3. Type safety: distinct ID types prevent mixing employees and companies

SEE ALSO:
  - entry.go: LedgerEntry and transaction types
  - request.go: LeaveRequest lifecycle fields
  - store.go: persistence interfaces
*/
package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity of leave days
// =============================================================================

// Amount is a signed number of leave days. Negative values are debits.
type Amount struct {
	Value decimal.Decimal
}

var half = decimal.NewFromFloat(0.5)

func Days(value float64) Amount          { return Amount{Value: decimal.NewFromFloat(value)} }
func DaysInt(value int) Amount           { return Amount{Value: decimal.NewFromInt(int64(value))} }
func ZeroDays() Amount                   { return Amount{Value: decimal.Zero} }
func HalfDay() Amount                    { return Amount{Value: half} }
func NewAmount(d decimal.Decimal) Amount { return Amount{Value: d} }

// ParseDays parses a decimal string such as "2.5".
func ParseDays(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg()} }
func (a Amount) Abs() Amount                  { return Amount{Value: a.Value.Abs()} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) GreaterOrEqual(b Amount) bool { return a.Value.GreaterThanOrEqual(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) String() string               { return a.Value.String() }
func (a Amount) Float64() float64             { f, _ := a.Value.Float64(); return f }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// MarshalJSON encodes the amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Float64())
}

// UnmarshalJSON accepts a JSON number or numeric string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	a.Value = d
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID string
type EmployeeID string
type LeaveTypeCode string
type RequestID string
type EntryID string
type PolicyID string

// Common leave-type codes. The catalog is data; these are only defaults.
const (
	LeaveEarned    LeaveTypeCode = "earned"
	LeaveCasual    LeaveTypeCode = "casual"
	LeaveSick      LeaveTypeCode = "sick"
	LeaveMaternity LeaveTypeCode = "maternity"
	LeavePaternity LeaveTypeCode = "paternity"
	LeaveUnpaid    LeaveTypeCode = "lop"
)

// BalanceKey identifies one ledger: a single employee's balance for one leave type.
// Writes that read the latest entry and append a new one are linearized per key.
type BalanceKey struct {
	CompanyID  CompanyID
	EmployeeID EmployeeID
	LeaveType  LeaveTypeCode
}

func (k BalanceKey) String() string {
	return string(k.CompanyID) + "/" + string(k.EmployeeID) + "/" + string(k.LeaveType)
}
