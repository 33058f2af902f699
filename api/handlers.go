/*
handlers.go - HTTP handlers for the leave engine

PURPOSE:
  Thin transport over the services: decode and validate the body, take the
  caller from the request context, call one service method, encode the
  result. Business rules live in the services.

ENDPOINTS:
  Leaves:
    POST   /api/leaves                 File a request
    GET    /api/leaves                 List (scoped to what the caller may see)
    GET    /api/leaves/{id}            Get one
    PUT    /api/leaves/{id}            Edit a pending request
    DELETE /api/leaves/{id}            Soft-delete a pending request
    POST   /api/leaves/{id}/approve    Approve and debit the ledger
    POST   /api/leaves/{id}/reject     Reject
    POST   /api/leaves/{id}/cancel     Cancel, restoring approved days

  Employees:
    GET    /api/employees/{id}/balances          Per leave type summary
    GET    /api/employees/{id}/ledger            Ledger history
    GET    /api/employees/{id}/ledger/verify     Chain invariant check
    POST   /api/employees/{id}/ledger/reconcile  Rebuild projections
    POST   /api/employees/{id}/adjustments       Manual correction

  Policies, carry-forward and encashment: see server.go.

ERROR HANDLING:
  400 validation, 401 missing identity, 403 forbidden, 404 not found,
  409 conflict, 422 insufficient balance, 500 everything else.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/carryforward"
	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/encashment"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Leaves       *leave.Service
	Policies     *policy.Service
	Ledger       *ledger.Engine
	CarryForward *carryforward.Engine
	Encashment   *encashment.Engine
	Directory    domain.EmployeeDirectory
	Catalog      domain.LeaveTypeCatalog

	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler wires a handler. Every field of deps except the logger is required.
func NewHandler(deps Handler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.L()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	h := deps
	h.validate = v
	h.logger = logger.Named("api")
	return &h
}

// =============================================================================
// LEAVES
// =============================================================================

func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseDateField(req.StartDate, "startDate")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	end, err := parseDateField(req.EndDate, "endDate")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.Leaves.Create(r.Context(), actor(r), leave.CreateInput{
		EmployeeID:    domain.EmployeeID(req.EmployeeID),
		LeaveType:     domain.LeaveTypeCode(req.LeaveType),
		StartDate:     start,
		EndDate:       end,
		Session:       domain.Session(req.Session),
		Reason:        req.Reason,
		AttachmentURL: req.AttachmentURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(created))
}

func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.RequestFilter{
		EmployeeID:         domain.EmployeeID(q.Get("employeeId")),
		ReportingManagerID: domain.EmployeeID(q.Get("managerId")),
		LeaveType:          domain.LeaveTypeCode(q.Get("leaveType")),
		HRFallbackOnly:     q.Get("hrFallback") == "true",
	}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			filter.Statuses = append(filter.Statuses, domain.RequestStatus(strings.TrimSpace(part)))
		}
	}

	requests, err := h.Leaves.List(r.Context(), actor(r), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]LeaveDTO, 0, len(requests))
	for i := range requests {
		dtos = append(dtos, toLeaveDTO(&requests[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	req, err := h.Leaves.Get(r.Context(), actor(r), requestID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(req))
}

func (h *Handler) UpdateLeave(w http.ResponseWriter, r *http.Request) {
	var req UpdateLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := leave.UpdateInput{Reason: req.Reason, AttachmentURL: req.AttachmentURL}
	if req.LeaveType != nil {
		lt := domain.LeaveTypeCode(*req.LeaveType)
		in.LeaveType = &lt
	}
	if req.StartDate != nil {
		d, err := parseDateField(*req.StartDate, "startDate")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		in.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := parseDateField(*req.EndDate, "endDate")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		in.EndDate = &d
	}
	if req.Session != nil {
		s := domain.Session(*req.Session)
		in.Session = &s
	}

	updated, err := h.Leaves.Update(r.Context(), actor(r), requestID(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(updated))
}

func (h *Handler) DeleteLeave(w http.ResponseWriter, r *http.Request) {
	if err := h.Leaves.Delete(r.Context(), actor(r), requestID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	approved, err := h.Leaves.Approve(r.Context(), actor(r), requestID(r), req.Comments)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(approved))
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	rejected, err := h.Leaves.Reject(r.Context(), actor(r), requestID(r), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(rejected))
}

func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	cancelled, err := h.Leaves.Cancel(r.Context(), actor(r), requestID(r), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(cancelled))
}

// =============================================================================
// EMPLOYEES: BALANCES & LEDGER
// =============================================================================

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	a, emp, ok := h.viewableEmployee(w, r)
	if !ok {
		return
	}
	summary, err := h.Ledger.GetBalanceSummary(r.Context(), a.CompanyID, emp.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employeeId": emp.ID,
		"balances":   summary,
	})
}

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	a, emp, ok := h.viewableEmployee(w, r)
	if !ok {
		return
	}
	filter, err := entryFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter.CompanyID = a.CompanyID
	filter.EmployeeID = emp.ID

	entries, err := h.Ledger.History(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]EntryDTO, 0, len(entries))
	for i := range entries {
		dtos = append(dtos, toEntryDTO(&entries[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// VerifyLedger checks the chain invariant of every leave type the employee
// has entries for, or only ?leaveType= when given.
func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	a, emp, ok := h.viewableEmployee(w, r)
	if !ok {
		return
	}
	types, err := h.ledgerTypes(r, a.CompanyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	violations := map[domain.LeaveTypeCode]*ledger.ChainViolation{}
	for _, lt := range types {
		v, err := h.Ledger.VerifyChain(r.Context(), domain.BalanceKey{CompanyID: a.CompanyID, EmployeeID: emp.ID, LeaveType: lt})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if v != nil {
			violations[lt] = v
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employeeId": emp.ID,
		"valid":      len(violations) == 0,
		"checked":    types,
		"violations": violations,
	})
}

func (h *Handler) ReconcileLedger(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if !a.Can(domain.CapManageBalances) {
		h.writeError(w, r, domain.Forbidden("balance_forbidden", "only HR or admin can reconcile balances"))
		return
	}
	emp, err := h.Directory.FindEmployee(r.Context(), a.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types, err := h.ledgerTypes(r, a.CompanyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]ProjectionDTO, 0, len(types))
	for _, lt := range types {
		p, err := h.Ledger.Reconcile(r.Context(), domain.BalanceKey{CompanyID: a.CompanyID, EmployeeID: emp.ID, LeaveType: lt})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if p != nil {
			out = append(out, ProjectionDTO{LeaveType: string(lt), Total: p.Total, Used: p.Used, Balance: p.Balance})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if !a.Can(domain.CapManageBalances) {
		h.writeError(w, r, domain.Forbidden("balance_forbidden", "only HR or admin can adjust balances"))
		return
	}
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	emp, err := h.Directory.FindEmployee(r.Context(), a.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lt := domain.LeaveTypeCode(req.LeaveType)
	if _, err := h.Catalog.GetLeaveType(r.Context(), a.CompanyID, lt); err != nil {
		h.writeError(w, r, err)
		return
	}

	entry, err := h.Ledger.RecordAdjustment(r.Context(), ledger.AdjustmentInput{
		Key:    domain.BalanceKey{CompanyID: a.CompanyID, EmployeeID: emp.ID, LeaveType: lt},
		Days:   req.Days,
		Reason: req.Reason,
		Actor:  a.UserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// =============================================================================
// POLICIES
// =============================================================================

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	policies, err := h.Policies.List(r.Context(), actor(r), domain.PolicyFilter{
		LeaveType:  domain.LeaveTypeCode(q.Get("leaveType")),
		EmployeeID: domain.EmployeeID(q.Get("employeeId")),
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]PolicyDTO, 0, len(policies))
	for i := range policies {
		dtos = append(dtos, toPolicyDTO(&policies[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Policies.Create(r.Context(), actor(r), policy.CreateInput{
		Name:        req.Name,
		LeaveType:   domain.LeaveTypeCode(req.LeaveType),
		AnnualQuota: req.AnnualQuota,
		EmployeeIDs: employeeIDs(req.EmployeeIDs),
		Settings:    req.Settings,
		IsActive:    req.IsActive,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyDTO(p))
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Policies.Get(r.Context(), actor(r), domain.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req UpdatePolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := policy.UpdateInput{
		Name:        req.Name,
		AnnualQuota: req.AnnualQuota,
		Settings:    req.Settings,
		IsActive:    req.IsActive,
	}
	if req.LeaveType != nil {
		lt := domain.LeaveTypeCode(*req.LeaveType)
		in.LeaveType = &lt
	}
	if req.EmployeeIDs != nil {
		ids := employeeIDs(*req.EmployeeIDs)
		in.EmployeeIDs = &ids
	}

	p, err := h.Policies.Update(r.Context(), actor(r), domain.PolicyID(chi.URLParam(r, "id")), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.Policies.Delete(r.Context(), actor(r), domain.PolicyID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CARRY-FORWARD & ENCASHMENT
// =============================================================================

func (h *Handler) PreviewCarryForward(w http.ResponseWriter, r *http.Request) {
	var req CarryForwardRequest
	if !h.decode(w, r, &req) {
		return
	}
	a := actor(r)
	results, err := h.CarryForward.Calculate(r.Context(), a, targetEmployee(a, req.EmployeeID), req.FromYear)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) ExecuteCarryForward(w http.ResponseWriter, r *http.Request) {
	var req CarryForwardRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.EmployeeID == "" {
		h.writeError(w, r, domain.Validation("employee_required", "employeeId", "employeeId is required"))
		return
	}
	results, err := h.CarryForward.Execute(r.Context(), actor(r), domain.EmployeeID(req.EmployeeID), req.FromYear)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) ExecuteCompanyCarryForward(w http.ResponseWriter, r *http.Request) {
	var req CarryForwardRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.CarryForward.ExecuteForCompany(r.Context(), actor(r), req.FromYear)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) PreviewEncashment(w http.ResponseWriter, r *http.Request) {
	var req EncashmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	a := actor(r)
	calc, err := h.Encashment.Calculate(r.Context(), a, targetEmployee(a, req.EmployeeID), domain.LeaveTypeCode(req.LeaveType), req.Days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

func (h *Handler) ExecuteEncashment(w http.ResponseWriter, r *http.Request) {
	var req EncashmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	a := actor(r)
	result, err := h.Encashment.Execute(r.Context(), a, encashment.ExecuteInput{
		EmployeeID:     targetEmployee(a, req.EmployeeID),
		LeaveType:      domain.LeaveTypeCode(req.LeaveType),
		Days:           req.Days,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) PreviewCompanyEncashment(w http.ResponseWriter, r *http.Request) {
	result, err := h.Encashment.PreviewForCompany(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ExecuteCompanyEncashment(w http.ResponseWriter, r *http.Request) {
	result, err := h.Encashment.ExecuteForCompany(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// HELPERS
// =============================================================================

func actor(r *http.Request) domain.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

func requestID(r *http.Request) domain.RequestID {
	return domain.RequestID(chi.URLParam(r, "id"))
}

// targetEmployee defaults an empty body field to the caller's own record.
func targetEmployee(a domain.Actor, employeeID string) domain.EmployeeID {
	if employeeID != "" {
		return domain.EmployeeID(employeeID)
	}
	if a.EmployeeID != "" {
		return a.EmployeeID
	}
	return domain.EmployeeID(a.UserID)
}

func employeeIDs(ids []string) []domain.EmployeeID {
	out := make([]domain.EmployeeID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.EmployeeID(id))
	}
	return out
}

// viewableEmployee resolves {id} and checks the caller may read that
// employee's balances: themselves, their direct manager, or HR and up.
func (h *Handler) viewableEmployee(w http.ResponseWriter, r *http.Request) (domain.Actor, *domain.Employee, bool) {
	a, err := h.Leaves.ResolveActor(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return a, nil, false
	}
	emp, err := h.Directory.FindEmployee(r.Context(), a.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return a, nil, false
	}
	self := a.EmployeeID != "" && emp.ID == a.EmployeeID
	manager := a.EmployeeID != "" && emp.ManagerID != nil && *emp.ManagerID == a.EmployeeID && a.Can(domain.CapApproveAsManager)
	if !self && !manager && !a.Can(domain.CapViewAll) {
		h.writeError(w, r, domain.Forbidden("balance_forbidden", "you cannot view this employee's balances"))
		return a, nil, false
	}
	return a, emp, true
}

// ledgerTypes returns ?leaveType= or every leave type in the catalog.
func (h *Handler) ledgerTypes(r *http.Request, companyID domain.CompanyID) ([]domain.LeaveTypeCode, error) {
	if lt := r.URL.Query().Get("leaveType"); lt != "" {
		return []domain.LeaveTypeCode{domain.LeaveTypeCode(lt)}, nil
	}
	types, err := h.Catalog.ListLeaveTypes(r.Context(), companyID, false)
	if err != nil {
		return nil, err
	}
	out := make([]domain.LeaveTypeCode, 0, len(types))
	for _, lt := range types {
		out = append(out, lt.Code)
	}
	return out, nil
}

func entryFilter(r *http.Request) (domain.EntryFilter, error) {
	q := r.URL.Query()
	f := domain.EntryFilter{
		LeaveType:       domain.LeaveTypeCode(q.Get("leaveType")),
		TransactionType: domain.TransactionType(q.Get("type")),
		FinancialYear:   q.Get("financialYear"),
	}
	if f.TransactionType != "" && !f.TransactionType.IsValid() {
		return f, domain.Validation("invalid_transaction_type", "type", "unknown transaction type: "+string(f.TransactionType))
	}
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			return f, domain.Validation("invalid_year", "year", "year must be a number")
		}
		f.Year = y
	}
	if s := q.Get("from"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			return f, domain.Validation("invalid_date", "from", "from must be YYYY-MM-DD")
		}
		from := d.Time
		f.From = &from
	}
	if s := q.Get("to"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			return f, domain.Validation("invalid_date", "to", "to must be YYYY-MM-DD")
		}
		to := d.Time.Add(24*time.Hour - time.Nanosecond)
		f.To = &to
	}
	return f, nil
}

func parseDateField(s, field string) (domain.TimePoint, error) {
	d, err := domain.ParseDate(s)
	if err != nil {
		return d, domain.Validation("invalid_date", field, field+" must be YYYY-MM-DD")
	}
	return d, nil
}

// decode reads and validates a required JSON body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, domain.Validation("invalid_body", "", "invalid request body: "+err.Error()))
		return false
	}
	return h.check(w, r, dst)
}

// decodeOptional accepts an empty body.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return h.decode(w, r, dst)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		h.writeError(w, r, domain.Validation("invalid_input", fe.Field(), fe.Field()+" failed "+fe.Tag()+" validation"))
		return false
	}
	h.writeError(w, r, domain.Validation("invalid_input", "", err.Error()))
	return false
}

// writeError maps the error taxonomy onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := ErrorDTO{Error: err.Error(), Code: domain.CodeOf(err)}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Error = de.Message
		body.Field = de.Field
	}

	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.ErrValidation:
		status = http.StatusBadRequest
	case domain.ErrForbidden:
		status = http.StatusForbidden
	case domain.ErrNotFound:
		status = http.StatusNotFound
	case domain.ErrConflict:
		status = http.StatusConflict
	case domain.ErrInsufficientBalance:
		status = http.StatusUnprocessableEntity
	}

	var ib *domain.InsufficientBalanceError
	if errors.As(err, &ib) {
		body.Details = map[string]any{
			"available": ib.Available,
			"requested": ib.Requested,
			"shortfall": ib.Shortfall,
		}
	}
	var inel *encashment.IneligibleError
	if errors.As(err, &inel) {
		body.Details = map[string]any{"calculation": inel.Calculation}
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
