package policy

import (
	"time"
)

// Built-in policy names.
const (
	BuiltinPreferExistingStores = "prefer-existing-stores"
	BuiltinUnreadStores         = "unread-stores"
	BuiltinUnresolvedParticles  = "unresolved-particles"
	BuiltinSlotCoverage         = "slot-coverage"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		preferExistingStoresPolicy(),
		unreadStoresPolicy(),
		unresolvedParticlesPolicy(),
		slotCoveragePolicy(),
	}
}

// preferExistingStoresPolicy favors recipes that bind existing stores over
// recipes that create fresh ones.
func preferExistingStoresPolicy() Policy {
	return Policy{
		Name:        BuiltinPreferExistingStores,
		Description: "Rates recipes by the share of views bound to existing stores",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"stores", "fitness"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package arcs.policies.stores

import rego.v1

bound contains view.index if {
	some view in input.recipe.views
	view.fate in {"use", "map", "copy"}
}

fitness := count(bound) / count(input.recipe.views) if {
	count(input.recipe.views) > 0
}
`,
	}
}

// unreadStoresPolicy warns about created stores nobody reads.
func unreadStoresPolicy() Policy {
	return Policy{
		Name:        BuiltinUnreadStores,
		Description: "Warns about created stores that are written but never read",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"stores", "dataflow"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package arcs.policies.dataflow

import rego.v1

deny contains violation if {
	some view in input.recipe.views
	view.fate == "create"
	view.writers > 0
	view.readers == 0
	violation := {
		"message": sprintf("view%d is written but never read", [view.index]),
		"severity": "warning",
		"view": view.index,
	}
}
`,
	}
}

// unresolvedParticlesPolicy reports particles still missing a specification
// or a connection.
func unresolvedParticlesPolicy() Policy {
	return Policy{
		Name:        BuiltinUnresolvedParticles,
		Description: "Reports particles that are not resolved",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"particles"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package arcs.policies.particles

import rego.v1

deny contains violation if {
	some particle in input.recipe.particles
	not particle.resolved
	violation := {
		"message": sprintf("particle %s is not resolved", [particle.name]),
		"severity": "info",
		"particle": particle.name,
	}
}
`,
	}
}

// slotCoveragePolicy rates recipes by the share of slot connections that
// found a slot. Disabled by default.
func slotCoveragePolicy() Policy {
	return Policy{
		Name:        BuiltinSlotCoverage,
		Description: "Rates recipes by the share of consumed slots that are targeted",
		Severity:    SeverityInfo,
		Enabled:     false,
		Tags:        []string{"slots", "fitness"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package arcs.policies.slots

import rego.v1

consumes := [c | some p in input.recipe.particles; some c in p.consumes]

targeted := [c | some c in consumes; c.slot >= 0]

fitness := count(targeted) / count(consumes) if {
	count(consumes) > 0
}
`,
	}
}
