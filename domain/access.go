package domain

// Capability is one permission an actor may hold. Guards ask for
// capabilities; only CapabilitiesFor knows about roles.
type Capability uint32

const (
	CapApproveAsManager Capability = 1 << iota // approve requests routed to oneself
	CapApproveAsHR                             // approve HR-fallback requests
	CapApproveAny                              // approve regardless of routing
	CapBypassOwnership                         // cancel, edit or delete another employee's request
	CapSkipOverlapCheck                        // file requests without the overlap guard
	CapViewAll                                 // read any employee's requests, balances and ledger
	CapManagePolicies                          // custom policy CRUD
	CapManageBalances                          // adjustments, carry-forward and encashment runs
)

// Capabilities is a set of Capability bits.
type Capabilities uint32

func (c Capabilities) Has(want Capability) bool { return uint32(c)&uint32(want) != 0 }

func capabilities(caps ...Capability) Capabilities {
	var set Capabilities
	for _, c := range caps {
		set |= Capabilities(c)
	}
	return set
}

var (
	hrCapabilities = capabilities(
		CapApproveAsManager, CapApproveAsHR, CapBypassOwnership, CapSkipOverlapCheck,
		CapViewAll, CapManagePolicies, CapManageBalances,
	)
	roleCapabilities = map[Role]Capabilities{
		RoleEmployee:   0,
		RoleManager:    capabilities(CapApproveAsManager, CapSkipOverlapCheck),
		RoleHR:         hrCapabilities,
		RoleAdmin:      hrCapabilities | capabilities(CapApproveAny),
		RoleSuperAdmin: hrCapabilities | capabilities(CapApproveAny),
	}
)

// CapabilitiesFor resolves a role once per request. Unknown roles get none.
func CapabilitiesFor(role Role) Capabilities {
	return roleCapabilities[role]
}

// Can reports whether the actor's role grants the capability.
func (a Actor) Can(want Capability) bool {
	return CapabilitiesFor(a.Role).Has(want)
}
