package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Employee is what the core needs from the employee directory.
type Employee struct {
	ID             EmployeeID
	CompanyID      CompanyID
	ExternalUserID string // auth-provider user id
	Name           string
	Email          string
	Department     string
	ManagerID      *EmployeeID
	JoiningDate    TimePoint
	BasicSalary    decimal.Decimal // monthly
	IsActive       bool
}

// TenureMonths returns completed months of service as of the given day.
func (e Employee) TenureMonths(asOf TimePoint) int {
	if e.JoiningDate.IsZero() {
		return 0
	}
	return MonthsBetween(e.JoiningDate, asOf)
}

// EmployeeDirectory resolves employees. FindEmployee accepts either the
// employee id or the external auth-provider user id.
type EmployeeDirectory interface {
	FindEmployee(ctx context.Context, companyID CompanyID, key string) (*Employee, error)
	ListActiveEmployees(ctx context.Context, companyID CompanyID) ([]Employee, error)
}

// LeaveTypeCatalog lists the leave types a tenant offers.
type LeaveTypeCatalog interface {
	GetLeaveType(ctx context.Context, companyID CompanyID, code LeaveTypeCode) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context, companyID CompanyID, activeOnly bool) ([]LeaveType, error)
}

// =============================================================================
// ACTORS & ROLES
// =============================================================================

type Role string

const (
	RoleEmployee   Role = "employee"
	RoleManager    Role = "manager"
	RoleHR         Role = "hr"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleHR, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller. EmployeeID may be empty; services
// resolve it through the directory from UserID.
type Actor struct {
	CompanyID  CompanyID
	UserID     string
	EmployeeID EmployeeID
	Role       Role
}

// SystemActor is used by batch jobs.
func SystemActor(companyID CompanyID) Actor {
	return Actor{CompanyID: companyID, UserID: "system", Role: RoleSuperAdmin}
}
