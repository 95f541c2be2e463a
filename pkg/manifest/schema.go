package manifest

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// schemaSource constrains the shape of a manifest beyond what struct tags
// express: identifier syntax, type literals and constraint syntax.
const schemaSource = `
#Identifier: =~"^[A-Za-z_][A-Za-z0-9_]*$"

#TypeLiteral: =~"^\\[*[A-Za-z_][A-Za-z0-9_]*\\]*$"

#Constraint: =~"^[A-Za-z_][A-Za-z0-9_]*\\.[A-Za-z_][A-Za-z0-9_]* -> [A-Za-z_][A-Za-z0-9_]*\\.[A-Za-z_][A-Za-z0-9_]*$"

#Manifest: {
	name:          string & != ""
	particles?:    [...#Particle]
	stores?:       [...#Store]
	remote_slots?: [...#RemoteSlot]
	recipes?:      [...#Recipe]
}

#Particle: {
	name:         #Identifier
	description?: string
	verbs?:       [...string]
	connections?: [...#Connection]
	slots?:       [...#Slot]
}

#Connection: {
	name:      #Identifier
	direction: "in" | "out" | "inout"
	type:      #TypeLiteral
	tags?:     [...string]
	optional?: bool
}

#Slot: {
	name:         #Identifier
	required?:    bool
	form_factor?: string
	provides?: [...{
		name:         #Identifier
		form_factor?: string
		views?:       [...#Identifier]
	}]
}

#Store: {
	id:           string & != ""
	name?:        string
	type:         #TypeLiteral
	tags?:        [...string]
	description?: string
	remote?:      bool
}

#RemoteSlot: {
	id:           string & != ""
	name:         #Identifier
	form_factor?: string
}

#Recipe: {
	name:         string & != ""
	views?:       [...#View]
	particles?:   [...#RecipeParticle]
	slots?:       [...#RecipeSlot]
	constraints?: [...#Constraint]
}

#View: {
	name:  #Identifier
	id?:   string
	fate?: "?" | "map" | "use" | "copy" | "create"
	type?: #TypeLiteral
	tags?: [...string]
}

#RecipeParticle: {
	name: #Identifier
	connections?: [...{
		name:       #Identifier
		direction?: "in" | "out" | "inout"
		view?:      #Identifier
	}]
	consumes?: [...{
		name:  #Identifier
		slot?: #Identifier
	}]
}

#RecipeSlot: {
	name:         #Identifier
	id?:          string
	form_factor?: string
}
`

// Schema validates manifests against the CUE definition #Manifest.
type Schema struct {
	ctx      *cue.Context
	manifest cue.Value
}

// NewSchema compiles the manifest schema.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(schemaSource, cue.Filename("manifest.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}

	def := val.LookupPath(cue.ParsePath("#Manifest"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("failed to look up #Manifest: %w", err)
	}

	return &Schema{ctx: ctx, manifest: def}, nil
}

// Validate checks m against the schema and returns every problem found.
func (s *Schema) Validate(m *Manifest) []Problem {
	data := s.ctx.Encode(m)
	if err := data.Err(); err != nil {
		return []Problem{{Message: fmt.Sprintf("failed to encode manifest: %v", err)}}
	}

	unified := s.manifest.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// convertCUEErrors converts CUE errors to problems located by path.
func convertCUEErrors(err error) []Problem {
	var problems []Problem
	for _, e := range errors.Errors(err) {
		p := Problem{
			Path:    strings.Join(e.Path(), "."),
			Message: errors.Details(e, nil),
		}
		problems = append(problems, p)
	}
	return problems
}
