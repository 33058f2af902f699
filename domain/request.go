package domain

import "time"

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	StatusOnHold    RequestStatus = "on-hold" // reachable but not driven by any transition
)

// Occupies reports whether a request in this status blocks overlapping dates.
func (s RequestStatus) Occupies() bool {
	return s == StatusPending || s == StatusApproved
}

type Session string

const (
	SessionFullDay    Session = "Full Day"
	SessionFirstHalf  Session = "First Half"
	SessionSecondHalf Session = "Second Half"
)

func (s Session) IsValid() bool {
	return s == SessionFullDay || s == SessionFirstHalf || s == SessionSecondHalf
}

func (s Session) IsHalfDay() bool {
	return s == SessionFirstHalf || s == SessionSecondHalf
}

// LeaveRequest is owned by the employee who filed it and mutated only by the
// leave state machine.
type LeaveRequest struct {
	ID         RequestID
	CompanyID  CompanyID
	EmployeeID EmployeeID

	StartDate TimePoint
	EndDate   TimePoint
	Session   Session
	Duration  Amount

	LeaveType LeaveTypeCode
	Reason    string

	// Routing is fixed at creation: IsHRFallback is true iff no manager resolved.
	ReportingManagerID *EmployeeID
	IsHRFallback       bool

	Status RequestStatus

	ApprovedBy       string
	ApprovedAt       *time.Time
	ApprovalComments string

	RejectedBy      string
	RejectedAt      *time.Time
	RejectionReason string

	CancelledBy        string
	CancelledAt        *time.Time
	CancellationReason string

	// Informational snapshot; the ledger decides at approval time.
	BalanceAtRequest Amount

	AttachmentURL string
	IsDeleted     bool
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *LeaveRequest) Period() Period {
	return Period{Start: r.StartDate, End: r.EndDate}
}

func (r *LeaveRequest) BalanceKey() BalanceKey {
	return BalanceKey{CompanyID: r.CompanyID, EmployeeID: r.EmployeeID, LeaveType: r.LeaveType}
}

// RequestFilter selects leave requests. Zero fields are ignored.
type RequestFilter struct {
	CompanyID          CompanyID
	EmployeeID         EmployeeID
	ReportingManagerID EmployeeID
	LeaveType          LeaveTypeCode
	Statuses           []RequestStatus
	HRFallbackOnly     bool
	IncludeDeleted     bool
}

func (f RequestFilter) Matches(r LeaveRequest) bool {
	if f.CompanyID != "" && r.CompanyID != f.CompanyID {
		return false
	}
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.ReportingManagerID != "" && (r.ReportingManagerID == nil || *r.ReportingManagerID != f.ReportingManagerID) {
		return false
	}
	if f.LeaveType != "" && r.LeaveType != f.LeaveType {
		return false
	}
	if f.HRFallbackOnly && !r.IsHRFallback {
		return false
	}
	if !f.IncludeDeleted && r.IsDeleted {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if r.Status == s {
				return true
			}
		}
		return false
	}
	return true
}
