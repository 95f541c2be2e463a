package manifest

import (
	"fmt"
	"strings"
)

// Manifest describes everything a planning run starts from: the particle
// catalog, the stores and remote slots already available, and the seed
// recipes.
type Manifest struct {
	// Name identifies the manifest in logs and archived runs.
	Name string `yaml:"name" json:"name" validate:"required"`

	Particles   []Particle   `yaml:"particles,omitempty" json:"particles,omitempty" validate:"unique=Name,dive"`
	Stores      []Store      `yaml:"stores,omitempty" json:"stores,omitempty" validate:"unique=ID,dive"`
	RemoteSlots []RemoteSlot `yaml:"remote_slots,omitempty" json:"remote_slots,omitempty" validate:"unique=ID,dive"`
	Recipes     []Recipe     `yaml:"recipes,omitempty" json:"recipes,omitempty" validate:"unique=Name,dive"`

	// Sources lists the files the manifest was loaded from.
	Sources []string `yaml:"-" json:"-"`
}

// Particle declares a particle specification.
type Particle struct {
	Name        string       `yaml:"name" json:"name" validate:"required"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Verbs       []string     `yaml:"verbs,omitempty" json:"verbs,omitempty"`
	Connections []Connection `yaml:"connections,omitempty" json:"connections,omitempty" validate:"unique=Name,dive"`
	Slots       []Slot       `yaml:"slots,omitempty" json:"slots,omitempty" validate:"unique=Name,dive"`
}

// Connection declares a view connection of a particle. Type is a type
// literal such as Product or [Product].
type Connection struct {
	Name      string   `yaml:"name" json:"name" validate:"required"`
	Direction string   `yaml:"direction" json:"direction" validate:"required,oneof=in out inout"`
	Type      string   `yaml:"type" json:"type" validate:"required"`
	Tags      []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Optional  bool     `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Slot declares a slot a particle consumes.
type Slot struct {
	Name       string         `yaml:"name" json:"name" validate:"required"`
	Required   bool           `yaml:"required,omitempty" json:"required,omitempty"`
	FormFactor string         `yaml:"form_factor,omitempty" json:"form_factor,omitempty"`
	Provides   []ProvidedSlot `yaml:"provides,omitempty" json:"provides,omitempty" validate:"dive"`
}

// ProvidedSlot declares a slot a particle provides while consuming another.
type ProvidedSlot struct {
	Name       string   `yaml:"name" json:"name" validate:"required"`
	FormFactor string   `yaml:"form_factor,omitempty" json:"form_factor,omitempty"`
	Views      []string `yaml:"views,omitempty" json:"views,omitempty"`
}

// Store declares an existing store.
type Store struct {
	ID          string   `yaml:"id" json:"id" validate:"required"`
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Type        string   `yaml:"type" json:"type" validate:"required"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Remote      bool     `yaml:"remote,omitempty" json:"remote,omitempty"`
}

// RemoteSlot declares a slot advertised by another arc.
type RemoteSlot struct {
	ID         string `yaml:"id" json:"id" validate:"required"`
	Name       string `yaml:"name" json:"name" validate:"required"`
	FormFactor string `yaml:"form_factor,omitempty" json:"form_factor,omitempty"`
}

// Recipe declares a seed recipe. Particles refer to views and slots by their
// local names.
type Recipe struct {
	Name        string           `yaml:"name" json:"name" validate:"required"`
	Views       []View           `yaml:"views,omitempty" json:"views,omitempty" validate:"unique=Name,dive"`
	Particles   []RecipeParticle `yaml:"particles,omitempty" json:"particles,omitempty" validate:"dive"`
	Slots       []RecipeSlot     `yaml:"slots,omitempty" json:"slots,omitempty" validate:"unique=Name,dive"`
	Constraints []string         `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// View declares a recipe view.
type View struct {
	Name string   `yaml:"name" json:"name" validate:"required"`
	ID   string   `yaml:"id,omitempty" json:"id,omitempty"`
	Fate string   `yaml:"fate,omitempty" json:"fate,omitempty" validate:"omitempty,oneof=? map use copy create"`
	Type string   `yaml:"type,omitempty" json:"type,omitempty"`
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// RecipeParticle places a particle in a seed recipe.
type RecipeParticle struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Connections []RecipeConnection `yaml:"connections,omitempty" json:"connections,omitempty" validate:"unique=Name,dive"`
	Consumes    []RecipeConsume    `yaml:"consumes,omitempty" json:"consumes,omitempty" validate:"unique=Name,dive"`
}

// RecipeConnection is a particle connection, optionally bound to a view.
type RecipeConnection struct {
	Name      string `yaml:"name" json:"name" validate:"required"`
	Direction string `yaml:"direction,omitempty" json:"direction,omitempty" validate:"omitempty,oneof=in out inout"`
	View      string `yaml:"view,omitempty" json:"view,omitempty"`
}

// RecipeConsume is a consumed slot, optionally targeting a recipe slot.
type RecipeConsume struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Slot string `yaml:"slot,omitempty" json:"slot,omitempty"`
}

// RecipeSlot declares a recipe slot.
type RecipeSlot struct {
	Name       string `yaml:"name" json:"name" validate:"required"`
	ID         string `yaml:"id,omitempty" json:"id,omitempty"`
	FormFactor string `yaml:"form_factor,omitempty" json:"form_factor,omitempty"`
}

// Problem is one validation finding with its location, when known.
type Problem struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	var loc string
	switch {
	case p.File != "" && p.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", p.File, p.Line, p.Column)
	case p.Path != "":
		loc = p.Path + ": "
	}
	return loc + p.Message
}

// ValidationError collects every problem found in a manifest.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return fmt.Sprintf("invalid manifest: %s", strings.Join(msgs, "; "))
}
