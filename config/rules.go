package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/leave-engine/domain"
)

// CarryForwardRule configures year-end rollover for one leave type.
type CarryForwardRule struct {
	Enabled           bool    `mapstructure:"enabled"`
	MaxDays           float64 `mapstructure:"max_days"`
	ValidityMonths    int     `mapstructure:"validity_months"`
	RequireMinBalance float64 `mapstructure:"require_min_balance"`
	NewAllocation     float64 `mapstructure:"new_allocation"`
}

func (r CarryForwardRule) MaxAmount() domain.Amount        { return domain.Days(r.MaxDays) }
func (r CarryForwardRule) MinBalanceAmount() domain.Amount { return domain.Days(r.RequireMinBalance) }
func (r CarryForwardRule) AllocationAmount() domain.Amount { return domain.Days(r.NewAllocation) }

// EncashmentRule configures leave-to-payout conversion for one leave type.
type EncashmentRule struct {
	Enabled           bool    `mapstructure:"enabled"`
	MinBalance        float64 `mapstructure:"min_balance"`
	MaxEncashmentDays float64 `mapstructure:"max_encashment_days"`
	RequireMinService int     `mapstructure:"require_min_service"` // months
	RateDivisor       int     `mapstructure:"rate_divisor"`        // days per month of basic salary
}

func (r EncashmentRule) MinBalanceAmount() domain.Amount { return domain.Days(r.MinBalance) }
func (r EncashmentRule) MaxAmount() domain.Amount        { return domain.Days(r.MaxEncashmentDays) }

// DailyRate derives the per-day payout from a monthly basic salary.
func (r EncashmentRule) DailyRate(basicSalary decimal.Decimal) decimal.Decimal {
	divisor := r.RateDivisor
	if divisor <= 0 {
		divisor = 30
	}
	return basicSalary.Div(decimal.NewFromInt(int64(divisor)))
}

// Rules is one rule table set.
type Rules struct {
	CarryForward map[string]CarryForwardRule `mapstructure:"carry_forward"`
	Encashment   map[string]EncashmentRule   `mapstructure:"encashment"`
}

// RuleBook resolves rules per tenant. A company table replaces the default
// entry for the leave types it names and inherits the rest.
type RuleBook struct {
	defaults  Rules
	companies map[string]Rules
}

// DefaultRules is the built-in table.
func DefaultRules() Rules {
	return Rules{
		CarryForward: map[string]CarryForwardRule{
			string(domain.LeaveEarned): {Enabled: true, MaxDays: 15, ValidityMonths: 12, RequireMinBalance: 1, NewAllocation: 18},
			string(domain.LeaveSick):   {Enabled: true, MaxDays: 5, ValidityMonths: 6, RequireMinBalance: 1, NewAllocation: 12},
			string(domain.LeaveCasual): {Enabled: false},
		},
		Encashment: map[string]EncashmentRule{
			string(domain.LeaveEarned): {Enabled: true, MinBalance: 5, MaxEncashmentDays: 15, RequireMinService: 12, RateDivisor: 30},
			string(domain.LeaveSick):   {Enabled: false},
			string(domain.LeaveCasual): {Enabled: false},
		},
	}
}

// NewRuleBook builds a RuleBook. Nil maps fall back to DefaultRules.
func NewRuleBook(defaults Rules, companies map[string]Rules) *RuleBook {
	base := DefaultRules()
	if defaults.CarryForward == nil {
		defaults.CarryForward = base.CarryForward
	}
	if defaults.Encashment == nil {
		defaults.Encashment = base.Encashment
	}
	normalized := make(map[string]Rules, len(companies))
	for id, r := range companies {
		normalized[strings.ToLower(id)] = r
	}
	return &RuleBook{defaults: defaults, companies: normalized}
}

// LoadRules reads the carry_forward, encashment and companies trees.
func LoadRules(v *viper.Viper) (*RuleBook, error) {
	var defaults Rules
	if err := v.UnmarshalKey("carry_forward", &defaults.CarryForward); err != nil {
		return nil, fmt.Errorf("carry_forward rules: %w", err)
	}
	if err := v.UnmarshalKey("encashment", &defaults.Encashment); err != nil {
		return nil, fmt.Errorf("encashment rules: %w", err)
	}
	var companies map[string]Rules
	if err := v.UnmarshalKey("companies", &companies); err != nil {
		return nil, fmt.Errorf("company rules: %w", err)
	}
	return NewRuleBook(defaults, companies), nil
}

// CarryForward returns the rule for a leave type; ok is false when the type
// has no rule or the rule is disabled.
func (b *RuleBook) CarryForward(companyID domain.CompanyID, leaveType domain.LeaveTypeCode) (CarryForwardRule, bool) {
	code := string(leaveType)
	if c, ok := b.companies[strings.ToLower(string(companyID))]; ok {
		if r, ok := c.CarryForward[code]; ok {
			return r, r.Enabled
		}
	}
	r, ok := b.defaults.CarryForward[code]
	return r, ok && r.Enabled
}

// Encashment mirrors CarryForward for encashment rules.
func (b *RuleBook) Encashment(companyID domain.CompanyID, leaveType domain.LeaveTypeCode) (EncashmentRule, bool) {
	code := string(leaveType)
	if c, ok := b.companies[strings.ToLower(string(companyID))]; ok {
		if r, ok := c.Encashment[code]; ok {
			return r, r.Enabled
		}
	}
	r, ok := b.defaults.Encashment[code]
	return r, ok && r.Enabled
}

// CarryForwardTypes lists leave types with an enabled carry-forward rule, sorted.
func (b *RuleBook) CarryForwardTypes(companyID domain.CompanyID) []domain.LeaveTypeCode {
	return b.enabled(companyID, func(r Rules) []string { return keys(r.CarryForward) }, func(code domain.LeaveTypeCode) bool {
		_, ok := b.CarryForward(companyID, code)
		return ok
	})
}

// EncashmentTypes lists leave types with an enabled encashment rule, sorted.
func (b *RuleBook) EncashmentTypes(companyID domain.CompanyID) []domain.LeaveTypeCode {
	return b.enabled(companyID, func(r Rules) []string { return keys(r.Encashment) }, func(code domain.LeaveTypeCode) bool {
		_, ok := b.Encashment(companyID, code)
		return ok
	})
}

func (b *RuleBook) enabled(companyID domain.CompanyID, codes func(Rules) []string, on func(domain.LeaveTypeCode) bool) []domain.LeaveTypeCode {
	seen := make(map[string]bool)
	candidates := codes(b.defaults)
	if c, ok := b.companies[strings.ToLower(string(companyID))]; ok {
		candidates = append(candidates, codes(c)...)
	}
	var out []domain.LeaveTypeCode
	for _, code := range candidates {
		if seen[code] {
			continue
		}
		seen[code] = true
		if on(domain.LeaveTypeCode(code)) {
			out = append(out, domain.LeaveTypeCode(code))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
