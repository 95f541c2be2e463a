package types

import (
	"encoding/json"
	"fmt"
)

// Direction is the data flow of a particle connection relative to its view.
type Direction string

const (
	// DirectionIn reads from the view.
	DirectionIn Direction = "in"

	// DirectionOut writes to the view.
	DirectionOut Direction = "out"

	// DirectionInOut reads and writes the view.
	DirectionInOut Direction = "inout"

	// DirectionUnknown has not been declared yet.
	DirectionUnknown Direction = "unknown"
)

// Validate checks if the direction is valid.
func (d Direction) Validate() error {
	switch d {
	case DirectionIn, DirectionOut, DirectionInOut, DirectionUnknown:
		return nil
	default:
		return fmt.Errorf("invalid direction: %s", d)
	}
}

// Writes reports whether the direction writes to its view.
func (d Direction) Writes() bool {
	return d == DirectionOut || d == DirectionInOut
}

// Reads reports whether the direction reads from its view.
func (d Direction) Reads() bool {
	return d == DirectionIn || d == DirectionInOut
}

// Arrow returns the arrow used in recipe renderings.
func (d Direction) Arrow() string {
	switch d {
	case DirectionIn:
		return "<-"
	case DirectionOut:
		return "->"
	case DirectionInOut:
		return "="
	default:
		return "?"
	}
}

// UnmarshalJSON implements json.Unmarshaler with validation.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = DirectionUnknown
		return nil
	}
	dir := Direction(s)
	if err := dir.Validate(); err != nil {
		return err
	}
	*d = dir
	return nil
}
