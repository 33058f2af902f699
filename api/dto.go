/*
dto.go - Request and response bodies

NAMING CONVENTION:
  - *Request: bodies read from clients, validated with validator/v10 tags
  - *DTO:     bodies written to clients

Dates travel as YYYY-MM-DD strings, day amounts as JSON numbers.
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/domain"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateLeaveRequest struct {
	EmployeeID    string `json:"employeeId"`
	LeaveType     string `json:"leaveType" validate:"required"`
	StartDate     string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Session       string `json:"session" validate:"omitempty,oneof='Full Day' 'First Half' 'Second Half'"`
	Reason        string `json:"reason" validate:"required"`
	AttachmentURL string `json:"attachmentUrl" validate:"omitempty,url"`
}

type UpdateLeaveRequest struct {
	LeaveType     *string `json:"leaveType" validate:"omitempty,min=1"`
	StartDate     *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate       *string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Session       *string `json:"session" validate:"omitempty,oneof='Full Day' 'First Half' 'Second Half'"`
	Reason        *string `json:"reason" validate:"omitempty,min=1"`
	AttachmentURL *string `json:"attachmentUrl" validate:"omitempty,url"`
}

type DecisionRequest struct {
	Comments string `json:"comments"`
	Reason   string `json:"reason"`
}

type CreatePolicyRequest struct {
	Name        string                `json:"name" validate:"required"`
	LeaveType   string                `json:"leaveType" validate:"required"`
	AnnualQuota domain.Amount         `json:"annualQuota"`
	EmployeeIDs []string              `json:"employeeIds" validate:"required,min=1,dive,required"`
	Settings    domain.PolicySettings `json:"settings"`
	IsActive    *bool                 `json:"isActive"`
}

type UpdatePolicyRequest struct {
	Name        *string                `json:"name" validate:"omitempty,min=1"`
	LeaveType   *string                `json:"leaveType" validate:"omitempty,min=1"`
	AnnualQuota *domain.Amount         `json:"annualQuota"`
	EmployeeIDs *[]string              `json:"employeeIds" validate:"omitempty,min=1,dive,required"`
	Settings    *domain.PolicySettings `json:"settings"`
	IsActive    *bool                  `json:"isActive"`
}

type AdjustmentRequest struct {
	LeaveType string        `json:"leaveType" validate:"required"`
	Days      domain.Amount `json:"days"`
	Reason    string        `json:"reason" validate:"required"`
}

type CarryForwardRequest struct {
	EmployeeID string `json:"employeeId"`
	FromYear   int    `json:"fromYear" validate:"required,min=2000,max=2100"`
}

type EncashmentRequest struct {
	EmployeeID string        `json:"employeeId"`
	LeaveType  string        `json:"leaveType" validate:"required"`
	Days       domain.Amount `json:"days"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type LeaveDTO struct {
	ID                 string        `json:"id"`
	EmployeeID         string        `json:"employeeId"`
	LeaveType          string        `json:"leaveType"`
	StartDate          string        `json:"startDate"`
	EndDate            string        `json:"endDate"`
	Session            string        `json:"session"`
	Duration           domain.Amount `json:"duration"`
	Reason             string        `json:"reason"`
	Status             string        `json:"status"`
	ReportingManagerID string        `json:"reportingManagerId,omitempty"`
	IsHRFallback       bool          `json:"isHrFallback"`
	BalanceAtRequest   domain.Amount `json:"balanceAtRequest"`
	ApprovedBy         string        `json:"approvedBy,omitempty"`
	ApprovedAt         *time.Time    `json:"approvedAt,omitempty"`
	ApprovalComments   string        `json:"approvalComments,omitempty"`
	RejectedBy         string        `json:"rejectedBy,omitempty"`
	RejectedAt         *time.Time    `json:"rejectedAt,omitempty"`
	RejectionReason    string        `json:"rejectionReason,omitempty"`
	CancelledBy        string        `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time    `json:"cancelledAt,omitempty"`
	CancellationReason string        `json:"cancellationReason,omitempty"`
	AttachmentURL      string        `json:"attachmentUrl,omitempty"`
	CreatedBy          string        `json:"createdBy"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

func toLeaveDTO(r *domain.LeaveRequest) LeaveDTO {
	dto := LeaveDTO{
		ID:                 string(r.ID),
		EmployeeID:         string(r.EmployeeID),
		LeaveType:          string(r.LeaveType),
		StartDate:          r.StartDate.String(),
		EndDate:            r.EndDate.String(),
		Session:            string(r.Session),
		Duration:           r.Duration,
		Reason:             r.Reason,
		Status:             string(r.Status),
		IsHRFallback:       r.IsHRFallback,
		BalanceAtRequest:   r.BalanceAtRequest,
		ApprovedBy:         r.ApprovedBy,
		ApprovedAt:         r.ApprovedAt,
		ApprovalComments:   r.ApprovalComments,
		RejectedBy:         r.RejectedBy,
		RejectedAt:         r.RejectedAt,
		RejectionReason:    r.RejectionReason,
		CancelledBy:        r.CancelledBy,
		CancelledAt:        r.CancelledAt,
		CancellationReason: r.CancellationReason,
		AttachmentURL:      r.AttachmentURL,
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.ReportingManagerID != nil {
		dto.ReportingManagerID = string(*r.ReportingManagerID)
	}
	return dto
}

type PolicyDTO struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	LeaveType   string                `json:"leaveType"`
	AnnualQuota domain.Amount         `json:"annualQuota"`
	EmployeeIDs []string              `json:"employeeIds"`
	Settings    domain.PolicySettings `json:"settings"`
	IsActive    bool                  `json:"isActive"`
	CreatedBy   string                `json:"createdBy"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

func toPolicyDTO(p *domain.CustomPolicy) PolicyDTO {
	ids := make([]string, 0, len(p.EmployeeIDs))
	for _, id := range p.EmployeeIDs {
		ids = append(ids, string(id))
	}
	return PolicyDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		LeaveType:   string(p.LeaveType),
		AnnualQuota: p.AnnualQuota,
		EmployeeIDs: ids,
		Settings:    p.Settings,
		IsActive:    p.IsActive,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type EntryDTO struct {
	ID              string               `json:"id"`
	LeaveType       string               `json:"leaveType"`
	TransactionType string               `json:"transactionType"`
	TransactionDate time.Time            `json:"transactionDate"`
	Sequence        int64                `json:"sequence"`
	Amount          domain.Amount        `json:"amount"`
	BalanceBefore   domain.Amount        `json:"balanceBefore"`
	BalanceAfter    domain.Amount        `json:"balanceAfter"`
	LeaveRequestID  string               `json:"leaveRequestId,omitempty"`
	PolicyID        string               `json:"policyId,omitempty"`
	FinancialYear   string               `json:"financialYear"`
	Description     string               `json:"description"`
	Details         *domain.EntryDetails `json:"details,omitempty"`
	CreatedBy       string               `json:"createdBy"`
}

func toEntryDTO(e *domain.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:              string(e.ID),
		LeaveType:       string(e.LeaveType),
		TransactionType: string(e.TransactionType),
		TransactionDate: e.TransactionDate,
		Sequence:        e.Sequence,
		Amount:          e.Amount,
		BalanceBefore:   e.BalanceBefore,
		BalanceAfter:    e.BalanceAfter,
		LeaveRequestID:  string(e.LeaveRequestID),
		PolicyID:        string(e.PolicyID),
		FinancialYear:   e.FinancialYear,
		Description:     e.Description,
		Details:         e.Details,
		CreatedBy:       e.CreatedBy,
	}
}

type ProjectionDTO struct {
	LeaveType string        `json:"leaveType"`
	Total     domain.Amount `json:"total"`
	Used      domain.Amount `json:"used"`
	Balance   domain.Amount `json:"balance"`
}

// ErrorDTO is the body of every non-2xx response.
type ErrorDTO struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
