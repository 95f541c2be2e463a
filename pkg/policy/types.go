package policy

import (
	"time"

	"github.com/smalls/arcs/pkg/recipe"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is reported but does not affect fitness.
	SeverityInfo Severity = "info"

	// SeverityWarning lowers a candidate's fitness.
	SeverityWarning Severity = "warning"

	// SeverityError rejects a candidate: its fitness becomes 0.
	SeverityError Severity = "error"

	// SeverityCritical rejects a candidate like SeverityError.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity rejects a candidate.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a Rego module judging candidate recipes. A policy may define a
// numeric `fitness` rule in [0, 1] and a `deny` set of violations. Each deny
// member is a string or an object with "message" and "severity" keys.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Weight scales the policy's fitness in the merged opinion. Zero means 1.
	Weight float64 `json:"weight,omitempty"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Policy) weight() float64 {
	if p.Weight <= 0 {
		return 1
	}
	return p.Weight
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Recipe is the canonical hash of the offending recipe.
	Recipe string `json:"recipe,omitempty"`

	Message  string   `json:"message"`
	Severity Severity `json:"severity"`

	// Details holds any other keys of the deny member.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Result represents the result of evaluating every policy against one
// recipe.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// Fitness is the weighted mean of the policies' opinions. It is only
	// meaningful when Applicable is set.
	Fitness float64 `json:"fitness"`

	// Applicable is false when no policy had an opinion on the recipe.
	Applicable bool `json:"applicable"`

	// Errors lists policies whose evaluation failed and were skipped.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as `input`.
type Input struct {
	// Recipe is the candidate being judged.
	Recipe recipe.Document `json:"recipe"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Generation is the planning round that produced the candidate. It is
	// zero outside of planning.
	Generation int `json:"generation"`

	// Score is the candidate's inherited strategy score.
	Score float64 `json:"score"`

	// Operation is "plan" during planning and "validate" otherwise.
	Operation string `json:"operation"`

	// Environment is the deployment environment, if configured.
	Environment string `json:"environment,omitempty"`
}

// Bundle represents a collection of related policies.
type Bundle struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Policies    []Policy  `json:"policies"`
	CreatedAt   time.Time `json:"created_at"`
}
