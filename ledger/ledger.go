/*
Package ledger implements the append-only leave balance ledger.

PURPOSE:
  The ledger is the source of truth for every balance change of one
  employee's leave type. Usage, restoration, allocation, carry-forward,
  encashment, expiry and adjustments are all entries here. The
  EmployeeLeaveBalance projection is a cache rebuilt from it.

CRITICAL INVARIANTS (per BalanceKey, ordered by Sequence):
  1. APPEND-ONLY: no update, no delete
  2. ARITHMETIC:  BalanceAfter == BalanceBefore + Amount
  3. CHAIN:       BalanceBefore[i] == BalanceAfter[i-1], first entry starts at 0
  4. IDEMPOTENT:  one entry per business event key (used:<request>, ...)

LINEARIZATION:
  Every write reads the latest entry, computes the new balance and appends
  inside one store transaction while holding the key's lock. Lock order is
  always store transaction first, key lock second.

OPENING:
  A key's first write seeds an 'opening' entry from the projection's
  balance, or from the resolved annual quota when no projection exists.

EXAMPLE FLOW:
  projection {total:10, used:2, balance:8}
  1. approve 3 days:  opening +8 (0 -> 8), used -3 (8 -> 5)
  2. cancel it:       restored +3 (5 -> 8)

SEE ALSO:
  - chain.go: VerifyChain and Reconcile
  - summary.go: per-employee balance summary
  - domain/store.go: LedgerStore contract
*/
package ledger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/domain"
)

// QuotaResolver returns the effective annual quota for a key, reading
// custom policies through the given store so transactional views see
// their own writes.
type QuotaResolver interface {
	ResolveQuotaIn(ctx context.Context, policies domain.PolicyStore, key domain.BalanceKey) (domain.QuotaResolution, error)
}

// Engine records ledger entries. An Engine bound to a transactional store
// (see In) joins that transaction.
type Engine struct {
	store   domain.Store
	quotas  QuotaResolver
	catalog domain.LeaveTypeCatalog
	fiscal  domain.FiscalCalendar
	clock   domain.Clock
	locks   *keyLocks
	newID   func() string
	logger  *zap.Logger
}

type Option func(*Engine)

func WithQuotaResolver(r QuotaResolver) Option           { return func(e *Engine) { e.quotas = r } }
func WithCatalog(c domain.LeaveTypeCatalog) Option       { return func(e *Engine) { e.catalog = c } }
func WithFiscalCalendar(fc domain.FiscalCalendar) Option { return func(e *Engine) { e.fiscal = fc } }
func WithClock(c domain.Clock) Option                    { return func(e *Engine) { e.clock = c } }
func WithIDGenerator(f func() string) Option             { return func(e *Engine) { e.newID = f } }
func WithLogger(l *zap.Logger) Option                    { return func(e *Engine) { e.logger = l } }

func NewEngine(store domain.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		fiscal: domain.FiscalCalendar{StartMonth: 4},
		clock:  domain.SystemClock,
		locks:  newKeyLocks(),
		newID:  uuid.NewString,
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("ledger.engine")
	return e
}

// In returns a copy of the engine bound to s, typically the view passed to
// a WithTx callback. The copy shares the key locks.
func (e *Engine) In(s domain.Store) *Engine {
	bound := *e
	bound.store = s
	return &bound
}

func (e *Engine) Fiscal() domain.FiscalCalendar { return e.fiscal }
func (e *Engine) Clock() domain.Clock           { return e.clock }

// =============================================================================
// READS
// =============================================================================

// GetLatestBalance returns the BalanceAfter of the most recent entry for key,
// or fallback when the key has no entries.
func (e *Engine) GetLatestBalance(ctx context.Context, key domain.BalanceKey, fallback domain.Amount) (domain.Amount, error) {
	latest, err := e.store.LatestEntry(ctx, key)
	if err != nil {
		return domain.Amount{}, err
	}
	if latest == nil {
		return fallback, nil
	}
	return latest.BalanceAfter, nil
}

// CurrentBalance is the authoritative balance: the latest entry when one
// exists, otherwise the opening balance the next write would seed.
func (e *Engine) CurrentBalance(ctx context.Context, key domain.BalanceKey) (domain.Amount, error) {
	latest, err := e.store.LatestEntry(ctx, key)
	if err != nil {
		return domain.Amount{}, err
	}
	if latest != nil {
		return latest.BalanceAfter, nil
	}
	return e.openingBalance(ctx, e.store, key, true)
}

// History returns entries matching filter, ordered by key then sequence.
func (e *Engine) History(ctx context.Context, filter domain.EntryFilter) ([]domain.LedgerEntry, error) {
	return e.store.ListEntries(ctx, filter)
}

func (e *Engine) openingBalance(ctx context.Context, s domain.Store, key domain.BalanceKey, fromQuota bool) (domain.Amount, error) {
	projection, err := s.GetProjection(ctx, key)
	if err != nil {
		return domain.Amount{}, err
	}
	if projection != nil {
		return projection.Balance, nil
	}
	if !fromQuota || e.quotas == nil {
		return domain.ZeroDays(), nil
	}
	res, err := e.quotas.ResolveQuotaIn(ctx, s, key)
	if err != nil {
		return domain.Amount{}, err
	}
	return res.Quota, nil
}

// =============================================================================
// RECORDING OPERATIONS
// =============================================================================

// UsageInput debits approved leave.
type UsageInput struct {
	Key         domain.BalanceKey
	Days        domain.Amount // positive
	RequestID   domain.RequestID
	Period      domain.Period
	Reason      string
	Description string
	Actor       string

	// AllowNegative skips the insufficient-balance check.
	AllowNegative bool
}

// RecordUsage appends a 'used' entry of -Days. Fails with
// *domain.InsufficientBalanceError when the balance would go negative.
func (e *Engine) RecordUsage(ctx context.Context, in UsageInput) (*domain.LedgerEntry, error) {
	if err := requirePositive(in.Days); err != nil {
		return nil, err
	}
	return e.post(ctx, posting{
		key:            in.Key,
		txType:         domain.TxUsed,
		amount:         in.Days.Neg(),
		requestID:      in.RequestID,
		description:    orDefault(in.Description, "leave approved"),
		details:        periodDetails(in.Period, in.Days, in.Reason),
		idempotencyKey: requestKey(domain.TxUsed, in.RequestID),
		actor:          in.Actor,
		checkFloor:     !in.AllowNegative,
		seedFromQuota:  true,
	})
}

// RestorationInput credits back cancelled approved leave.
type RestorationInput struct {
	Key         domain.BalanceKey
	Days        domain.Amount // positive
	RequestID   domain.RequestID
	Period      domain.Period
	Reason      string
	Description string
	Actor       string
}

// RecordRestoration appends a 'restored' entry. It has no balance floor.
func (e *Engine) RecordRestoration(ctx context.Context, in RestorationInput) (*domain.LedgerEntry, error) {
	if err := requirePositive(in.Days); err != nil {
		return nil, err
	}
	return e.post(ctx, posting{
		key:            in.Key,
		txType:         domain.TxRestored,
		amount:         in.Days,
		requestID:      in.RequestID,
		description:    orDefault(in.Description, "leave cancelled"),
		details:        periodDetails(in.Period, in.Days, in.Reason),
		idempotencyKey: requestKey(domain.TxRestored, in.RequestID),
		actor:          in.Actor,
		seedFromQuota:  true,
	})
}

// AllocationInput grants days for a financial year.
type AllocationInput struct {
	Key           domain.BalanceKey
	Days          domain.Amount
	FinancialYear string // defaults to the current year's label
	Description   string
	Actor         string
}

// RecordAllocation appends an 'allocated' entry, at most once per key and
// financial year. Opening seeding for allocations ignores the quota so a
// first grant is not counted twice.
func (e *Engine) RecordAllocation(ctx context.Context, in AllocationInput) (*domain.LedgerEntry, error) {
	if err := requirePositive(in.Days); err != nil {
		return nil, err
	}
	fy := orDefault(in.FinancialYear, e.fiscal.LabelFor(e.clock.Today()))
	return e.post(ctx, posting{
		key:            in.Key,
		txType:         domain.TxAllocated,
		amount:         in.Days,
		financialYear:  fy,
		description:    orDefault(in.Description, "annual allocation "+fy),
		idempotencyKey: eventKey(domain.TxAllocated, in.Key, fy),
		actor:          in.Actor,
	})
}

// CarryForwardInput rolls over days into the destination financial year.
type CarryForwardInput struct {
	Key        domain.BalanceKey
	Days       domain.Amount
	FromYear   string
	ToYear     string
	ExpiryDate *domain.TimePoint
	Actor      string
}

// RecordCarryForward appends a 'carry_forward' entry tagged with ToYear.
func (e *Engine) RecordCarryForward(ctx context.Context, in CarryForwardInput) (*domain.LedgerEntry, error) {
	if err := requirePositive(in.Days); err != nil {
		return nil, err
	}
	days := in.Days
	return e.post(ctx, posting{
		key:           in.Key,
		txType:        domain.TxCarryForward,
		amount:        in.Days,
		financialYear: in.ToYear,
		description:   "carry forward from " + in.FromYear,
		details: &domain.EntryDetails{
			Duration:   &days,
			FromYear:   in.FromYear,
			ExpiryDate: in.ExpiryDate,
		},
		idempotencyKey: eventKey(domain.TxCarryForward, in.Key, in.ToYear),
		actor:          in.Actor,
	})
}

// EncashmentInput converts days to payout. Eligibility is checked by the caller.
type EncashmentInput struct {
	Key            domain.BalanceKey
	Days           domain.Amount
	Description    string
	IdempotencyKey string
	Actor          string
}

// RecordEncashment appends an 'encashed' entry of -Days.
func (e *Engine) RecordEncashment(ctx context.Context, in EncashmentInput) (*domain.LedgerEntry, error) {
	if err := requirePositive(in.Days); err != nil {
		return nil, err
	}
	days := in.Days
	return e.post(ctx, posting{
		key:            in.Key,
		txType:         domain.TxEncashed,
		amount:         in.Days.Neg(),
		description:    orDefault(in.Description, "leave encashment"),
		details:        &domain.EntryDetails{Duration: &days},
		idempotencyKey: in.IdempotencyKey,
		actor:          in.Actor,
		checkFloor:     true,
		seedFromQuota:  true,
	})
}

// PolicyRef identifies the custom policy behind an adjustment.
type PolicyRef struct {
	ID   domain.PolicyID
	Name string
}

// RecordCustomPolicyAdjustment appends a 'custom_adjustment' of delta, the
// effective quota after the policy change minus the quota before it.
// A zero delta records nothing and returns nil.
func (e *Engine) RecordCustomPolicyAdjustment(ctx context.Context, key domain.BalanceKey, delta domain.Amount, policy PolicyRef, actor string) (*domain.LedgerEntry, error) {
	return e.customAdjustment(ctx, key, delta, policy, actor, "custom policy applied: "+policy.Name)
}

// RecordCustomPolicyReversal is RecordCustomPolicyAdjustment for a policy
// that stopped covering the employee. The delta is not clamped; a negative
// resulting balance is logged.
func (e *Engine) RecordCustomPolicyReversal(ctx context.Context, key domain.BalanceKey, delta domain.Amount, policy PolicyRef, actor string) (*domain.LedgerEntry, error) {
	entry, err := e.customAdjustment(ctx, key, delta, policy, actor, "custom policy removed: "+policy.Name)
	if err == nil && entry != nil && entry.BalanceAfter.IsNegative() {
		e.logger.Warn("custom policy reversal left negative balance",
			zap.String("key", key.String()),
			zap.String("policy_id", string(policy.ID)),
			zap.String("balance", entry.BalanceAfter.String()),
		)
	}
	return entry, err
}

func (e *Engine) customAdjustment(ctx context.Context, key domain.BalanceKey, delta domain.Amount, policy PolicyRef, actor, description string) (*domain.LedgerEntry, error) {
	if delta.IsZero() {
		return nil, nil
	}
	return e.post(ctx, posting{
		key:           key,
		txType:        domain.TxCustomAdjustment,
		amount:        delta,
		policyID:      policy.ID,
		description:   description,
		actor:         actor,
		seedFromQuota: true,
	})
}

// AdjustmentInput is a manual signed correction.
type AdjustmentInput struct {
	Key    domain.BalanceKey
	Days   domain.Amount // signed
	Reason string
	Actor  string
}

// RecordAdjustment appends an 'adjustment' entry. Negative results are allowed.
func (e *Engine) RecordAdjustment(ctx context.Context, in AdjustmentInput) (*domain.LedgerEntry, error) {
	if in.Days.IsZero() {
		return nil, domain.Validation("invalid_amount", "days", "adjustment must be non-zero")
	}
	if in.Reason == "" {
		return nil, domain.Validation("reason_required", "reason", "adjustment requires a reason")
	}
	return e.post(ctx, posting{
		key:           in.Key,
		txType:        domain.TxAdjustment,
		amount:        in.Days,
		description:   in.Reason,
		details:       &domain.EntryDetails{Reason: in.Reason},
		actor:         in.Actor,
		seedFromQuota: true,
	})
}

// ExpiryInput lapses the whole positive balance at period close.
type ExpiryInput struct {
	Key           domain.BalanceKey
	FinancialYear string
	Actor         string
}

// RecordExpiry appends an 'expired' entry for the full positive balance,
// closing the period: the projection's total becomes the remaining balance
// and used resets to zero.
func (e *Engine) RecordExpiry(ctx context.Context, in ExpiryInput) (*domain.LedgerEntry, error) {
	fy := orDefault(in.FinancialYear, e.fiscal.LabelFor(e.clock.Today()))
	return e.post(ctx, posting{
		key:            in.Key,
		txType:         domain.TxExpired,
		expireAll:      true,
		financialYear:  fy,
		description:    "balance expired at close of " + fy,
		idempotencyKey: eventKey(domain.TxExpired, in.Key, fy),
		actor:          in.Actor,
		seedFromQuota:  true,
	})
}

// Seed writes the opening entry for key if it has none yet. Callers that
// are about to change what the quota resolves to seed first so the opening
// reflects the old quota.
func (e *Engine) Seed(ctx context.Context, key domain.BalanceKey, actor string) error {
	return e.store.WithTx(ctx, func(s domain.Store) error {
		unlock := e.locks.lock(key)
		defer unlock()

		latest, err := s.LatestEntry(ctx, key)
		if err != nil || latest != nil {
			return err
		}
		_, err = e.seedOpening(ctx, s, key, actor, true)
		return err
	})
}

// =============================================================================
// POSTING
// =============================================================================

type posting struct {
	key            domain.BalanceKey
	txType         domain.TransactionType
	amount         domain.Amount
	expireAll      bool
	requestID      domain.RequestID
	policyID       domain.PolicyID
	financialYear  string
	description    string
	details        *domain.EntryDetails
	idempotencyKey string
	actor          string
	checkFloor     bool
	seedFromQuota  bool
}

// post runs the linearized read-latest, compute, append, project sequence.
func (e *Engine) post(ctx context.Context, p posting) (*domain.LedgerEntry, error) {
	var recorded *domain.LedgerEntry
	err := e.store.WithTx(ctx, func(s domain.Store) error {
		unlock := e.locks.lock(p.key)
		defer unlock()

		latest, err := s.LatestEntry(ctx, p.key)
		if err != nil {
			return err
		}
		if latest == nil {
			if latest, err = e.seedOpening(ctx, s, p.key, p.actor, p.seedFromQuota); err != nil {
				return err
			}
		}

		before := domain.ZeroDays()
		if latest != nil {
			before = latest.BalanceAfter
		}
		amount := p.amount
		if p.expireAll {
			amount = before.Max(domain.ZeroDays()).Neg()
		}
		after := before.Add(amount)

		if p.checkFloor && after.IsNegative() {
			e.logger.Warn("insufficient balance",
				zap.String("key", p.key.String()),
				zap.String("available", before.String()),
				zap.String("requested", amount.Abs().String()),
			)
			return &domain.InsufficientBalanceError{
				Key:       p.key,
				Available: before,
				Requested: amount.Abs(),
				Shortfall: after.Neg(),
			}
		}

		entry := e.newEntry(p, before, amount)
		if err := s.AppendEntry(ctx, &entry); err != nil {
			return err
		}
		if err := e.project(ctx, s, entry); err != nil {
			return err
		}
		recorded = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("ledger entry recorded",
		zap.String("key", p.key.String()),
		zap.String("type", string(recorded.TransactionType)),
		zap.String("amount", recorded.Amount.String()),
		zap.String("balance_after", recorded.BalanceAfter.String()),
		zap.Int64("sequence", recorded.Sequence),
	)
	return recorded, nil
}

// seedOpening appends the opening entry. It returns nil when the opening
// balance is zero; the chain then starts at the first real entry.
func (e *Engine) seedOpening(ctx context.Context, s domain.Store, key domain.BalanceKey, actor string, fromQuota bool) (*domain.LedgerEntry, error) {
	opening, err := e.openingBalance(ctx, s, key, fromQuota)
	if err != nil {
		return nil, err
	}
	if opening.IsZero() {
		return nil, nil
	}

	entry := e.newEntry(posting{
		key:            key,
		txType:         domain.TxOpening,
		amount:         opening,
		description:    "opening balance",
		idempotencyKey: "opening:" + string(key.EmployeeID) + ":" + string(key.LeaveType),
		actor:          actor,
	}, domain.ZeroDays(), opening)
	if err := s.AppendEntry(ctx, &entry); err != nil {
		return nil, err
	}
	if err := e.project(ctx, s, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (e *Engine) newEntry(p posting, before, amount domain.Amount) domain.LedgerEntry {
	now := e.clock.Now()
	fy := p.financialYear
	if fy == "" {
		fy = e.fiscal.LabelFor(domain.DateOf(now))
	}
	return domain.LedgerEntry{
		ID:              domain.EntryID(e.newID()),
		CompanyID:       p.key.CompanyID,
		EmployeeID:      p.key.EmployeeID,
		LeaveType:       p.key.LeaveType,
		TransactionType: p.txType,
		TransactionDate: now,
		Amount:          amount,
		BalanceBefore:   before,
		BalanceAfter:    before.Add(amount),
		LeaveRequestID:  p.requestID,
		PolicyID:        p.policyID,
		FinancialYear:   fy,
		Year:            now.Year(),
		Month:           now.Month(),
		Description:     p.description,
		Details:         p.details,
		IdempotencyKey:  p.idempotencyKey,
		CreatedBy:       p.actor,
		CreatedAt:       now,
	}
}

// project folds entry into the key's projection row.
func (e *Engine) project(ctx context.Context, s domain.Store, entry domain.LedgerEntry) error {
	current, err := s.GetProjection(ctx, entry.Key())
	if err != nil {
		return err
	}
	var p domain.EmployeeLeaveBalance
	if current != nil {
		p = *current
	} else {
		p = domain.EmployeeLeaveBalance{
			CompanyID:  entry.CompanyID,
			EmployeeID: entry.EmployeeID,
			LeaveType:  entry.LeaveType,
		}
	}
	applyEntry(&p, entry, current != nil)
	p.UpdatedAt = entry.CreatedAt
	return s.SaveProjection(ctx, p)
}

// applyEntry updates total/used for one entry. Balance always follows the
// ledger. An opening entry onto an existing projection keeps its totals.
func applyEntry(p *domain.EmployeeLeaveBalance, entry domain.LedgerEntry, hadProjection bool) {
	switch entry.TransactionType {
	case domain.TxOpening:
		if !hadProjection {
			p.Total = entry.Amount
			p.Used = domain.ZeroDays()
		}
	case domain.TxUsed, domain.TxEncashed:
		p.Used = p.Used.Add(entry.Amount.Neg())
	case domain.TxRestored:
		p.Used = p.Used.Sub(entry.Amount).Max(domain.ZeroDays())
	case domain.TxExpired:
		p.Total = entry.BalanceAfter
		p.Used = domain.ZeroDays()
	default:
		p.Total = p.Total.Add(entry.Amount)
	}
	p.Balance = entry.BalanceAfter
}

// =============================================================================
// HELPERS
// =============================================================================

func requirePositive(days domain.Amount) error {
	if !days.IsPositive() {
		return domain.Validation("invalid_amount", "days", "days must be greater than zero")
	}
	return nil
}

func periodDetails(period domain.Period, days domain.Amount, reason string) *domain.EntryDetails {
	d := &domain.EntryDetails{Duration: &days, Reason: reason}
	if !period.Start.IsZero() {
		start, end := period.Start, period.End
		d.StartDate = &start
		d.EndDate = &end
	}
	return d
}

func requestKey(t domain.TransactionType, id domain.RequestID) string {
	if id == "" {
		return ""
	}
	return string(t) + ":" + string(id)
}

func eventKey(t domain.TransactionType, key domain.BalanceKey, fy string) string {
	return string(t) + ":" + string(key.EmployeeID) + ":" + string(key.LeaveType) + ":" + fy
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
