// Package policy judges candidate recipes with Open Policy Agent (OPA) Rego
// policies.
//
// The Engine is a strategizer.Evaluator: during planning it turns each
// policy's verdict into a fitness opinion. It also judges single recipes for
// the validate command.
//
// # Writing Policies
//
// A policy is one Rego module. It sees the candidate as input.recipe (see
// recipe.Document) and may define two rules:
//
//	package custom.policies.shared
//
//	import rego.v1
//
//	# Prefer recipes that map remote stores.
//	fitness := count(mapped) / count(input.recipe.views) if {
//	    count(input.recipe.views) > 0
//	}
//
//	mapped contains view.index if {
//	    some view in input.recipe.views
//	    view.fate == "map"
//	}
//
//	deny contains violation if {
//	    some view in input.recipe.views
//	    view.fate == "copy"
//	    violation := {"message": "copies are not allowed", "severity": "error"}
//	}
//
// fitness must be a number; it is clamped to [0, 1]. deny members are
// strings or objects with "message" and "severity" keys; other keys end up
// in Violation.Details.
//
// # Merging
//
// A blocking violation (error or critical) sets the candidate's fitness to
// 0. Otherwise each policy with a fitness rule, or with warnings, contributes
// its fitness minus WarningPenalty per warning, and the contributions are
// averaged by Policy.Weight. A candidate no policy has an opinion on is not
// applicable. Info violations are reported only.
//
// # Built-in Policies
//
//  1. prefer-existing-stores - share of views bound to existing stores
//  2. unread-stores - warns about created stores nobody reads
//  3. unresolved-particles - reports unresolved particles
//  4. slot-coverage - share of consumed slots that are targeted (disabled)
//
// # Loading and Hot Reload
//
// LoadPolicies reads .rego files and JSON policy definitions from files or
// directories. A JSON file with a "policies" array is a Bundle; its policies
// carry the bundle name and version in their metadata. Watch keeps them
// current with fsnotify; a reload that fails to compile leaves the previous
// set active.
package policy
