package domain

import "time"

// LeaveType is a catalog entry for one tenant.
type LeaveType struct {
	CompanyID           CompanyID
	Code                LeaveTypeCode
	Name                string
	AnnualQuota         Amount
	IsPaid              bool
	CarryForwardAllowed bool
	EncashmentAllowed   bool
	IsActive            bool
}

// CustomPolicy overrides the default annual quota of one leave type for a
// set of employees.
type CustomPolicy struct {
	ID          PolicyID
	CompanyID   CompanyID
	Name        string
	LeaveType   LeaveTypeCode
	AnnualQuota Amount
	EmployeeIDs []EmployeeID
	Settings    PolicySettings
	IsActive    bool
	IsDeleted   bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type PolicySettings struct {
	CarryForward        bool   `json:"carryForward"`
	MaxCarryForwardDays Amount `json:"maxCarryForwardDays"`
	IsEarnedLeave       bool   `json:"isEarnedLeave"`
}

// Covers reports whether the policy is in force for the employee.
func (p CustomPolicy) Covers(employeeID EmployeeID) bool {
	if !p.IsActive || p.IsDeleted {
		return false
	}
	for _, id := range p.EmployeeIDs {
		if id == employeeID {
			return true
		}
	}
	return false
}

type QuotaSource string

const (
	QuotaDefault QuotaSource = "default"
	QuotaCustom  QuotaSource = "custom"
)

// QuotaResolution is the effective annual quota and where it came from.
type QuotaResolution struct {
	Quota      Amount
	Source     QuotaSource
	PolicyID   PolicyID
	PolicyName string
}

// PolicyFilter selects custom policies.
type PolicyFilter struct {
	CompanyID      CompanyID
	LeaveType      LeaveTypeCode
	EmployeeID     EmployeeID
	ActiveOnly     bool
	IncludeDeleted bool
}

func (f PolicyFilter) Matches(p CustomPolicy) bool {
	if f.CompanyID != "" && p.CompanyID != f.CompanyID {
		return false
	}
	if f.LeaveType != "" && p.LeaveType != f.LeaveType {
		return false
	}
	if !f.IncludeDeleted && p.IsDeleted {
		return false
	}
	if f.ActiveOnly && !p.IsActive {
		return false
	}
	if f.EmployeeID != "" {
		found := false
		for _, id := range p.EmployeeIDs {
			if id == f.EmployeeID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// DefaultLeaveTypes is the starter catalog for a new tenant.
func DefaultLeaveTypes(companyID CompanyID) []LeaveType {
	lt := func(code LeaveTypeCode, name string, quota int, paid, carry, encash bool) LeaveType {
		return LeaveType{
			CompanyID:           companyID,
			Code:                code,
			Name:                name,
			AnnualQuota:         DaysInt(quota),
			IsPaid:              paid,
			CarryForwardAllowed: carry,
			EncashmentAllowed:   encash,
			IsActive:            true,
		}
	}
	return []LeaveType{
		lt(LeaveEarned, "Earned Leave", 18, true, true, true),
		lt(LeaveCasual, "Casual Leave", 12, true, false, false),
		lt(LeaveSick, "Sick Leave", 12, true, true, false),
		lt(LeaveMaternity, "Maternity Leave", 182, true, false, false),
		lt(LeavePaternity, "Paternity Leave", 15, true, false, false),
		lt(LeaveUnpaid, "Loss of Pay", 0, false, false, false),
	}
}
