package strategizer

import "time"

// Record is the diagnostic summary of one round.
type Record struct {
	// Generation is the round number.
	Generation int `json:"generation"`

	// SizeOfLastGeneration is how many individuals the strategies received.
	SizeOfLastGeneration int `json:"size_of_last_generation"`

	// OutputSizesOfStrategies counts raw candidates per strategy.
	OutputSizesOfStrategies map[string]int `json:"output_sizes_of_strategies"`

	// RawGenerated counts every candidate before deduplication.
	RawGenerated int `json:"raw_generated"`

	NullDerivations      int `json:"null_derivations"`
	DuplicateDerivations int `json:"duplicate_derivations"`
	InvalidDerivations   int `json:"invalid_derivations"`

	NullDerivationsByStrategy      map[string]int `json:"null_derivations_by_strategy"`
	DuplicateDerivationsByStrategy map[string]int `json:"duplicate_derivations_by_strategy"`
	InvalidDerivationsByStrategy   map[string]int `json:"invalid_derivations_by_strategy"`

	// AttachedDerivations counts candidates folded into an existing
	// representative as an extra provenance edge.
	AttachedDerivations int `json:"attached_derivations"`

	// TotalGenerated counts survivors of deduplication and validity checks.
	TotalGenerated int `json:"total_generated"`

	// PopulationSize is the retained population after selection.
	PopulationSize int `json:"population_size"`

	// Discarded counts individuals dropped from or refused by the population.
	Discarded int `json:"discarded"`

	Duration time.Duration `json:"duration"`
}

func newRecord(generation, lastSize int) *Record {
	return &Record{
		Generation:                     generation,
		SizeOfLastGeneration:           lastSize,
		OutputSizesOfStrategies:        make(map[string]int),
		NullDerivationsByStrategy:      make(map[string]int),
		DuplicateDerivationsByStrategy: make(map[string]int),
		InvalidDerivationsByStrategy:   make(map[string]int),
	}
}

// Dropped returns the number of candidates removed by deduplication and
// validity checks.
func (r *Record) Dropped() int {
	return r.NullDerivations + r.DuplicateDerivations + r.InvalidDerivations + r.AttachedDerivations
}
