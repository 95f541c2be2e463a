package recipe

import (
	"encoding/json"
	"fmt"
)

// Fate is how a view's backing store will be obtained at instantiation.
type Fate string

const (
	// FateUnknown has not been decided yet.
	FateUnknown Fate = "?"

	// FateMap binds a remote store read-only.
	FateMap Fate = "map"

	// FateUse binds an existing local store.
	FateUse Fate = "use"

	// FateCopy copies an existing store into a new one.
	FateCopy Fate = "copy"

	// FateCreate creates a fresh store.
	FateCreate Fate = "create"
)

// Validate checks if the fate is valid.
func (f Fate) Validate() error {
	switch f {
	case FateUnknown, FateMap, FateUse, FateCopy, FateCreate:
		return nil
	default:
		return fmt.Errorf("invalid fate: %s", f)
	}
}

// NeedsID reports whether the fate binds an existing store and therefore requires an id.
func (f Fate) NeedsID() bool {
	return f == FateMap || f == FateUse || f == FateCopy
}

// UnmarshalJSON implements json.Unmarshaler with validation.
func (f *Fate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = FateUnknown
		return nil
	}
	fate := Fate(s)
	if err := fate.Validate(); err != nil {
		return err
	}
	*f = fate
	return nil
}
