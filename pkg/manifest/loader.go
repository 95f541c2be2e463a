package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader reads, merges and validates YAML manifests.
type Loader struct {
	logger   zerolog.Logger
	validate *validator.Validate
	schema   *Schema
}

// NewLoader creates a manifest loader.
func NewLoader(logger zerolog.Logger) (*Loader, error) {
	schema, err := NewSchema()
	if err != nil {
		return nil, err
	}
	return &Loader{
		logger:   logger.With().Str("component", "manifest-loader").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		schema:   schema,
	}, nil
}

// Load reads the given files and directories, merges them into one manifest
// and validates the result. Directories contribute their .yaml and .yml
// files in lexical order.
func (l *Loader) Load(paths ...string) (*Manifest, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no manifest paths provided")
	}

	files, err := expand(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no manifest files found in %v", paths)
	}

	merged := &Manifest{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest %s: %w", file, err)
		}
		m, err := decode(data, file)
		if err != nil {
			return nil, err
		}
		merged.merge(m)
	}

	if err := l.Validate(merged); err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("manifest", merged.Name).
		Strs("sources", merged.Sources).
		Int("particles", len(merged.Particles)).
		Int("stores", len(merged.Stores)).
		Int("recipes", len(merged.Recipes)).
		Msg("Manifest loaded")

	return merged, nil
}

// Parse decodes and validates a single manifest document.
func (l *Loader) Parse(data []byte, source string) (*Manifest, error) {
	m, err := decode(data, source)
	if err != nil {
		return nil, err
	}
	if err := l.Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate runs the struct-tag checks, then the CUE schema, then the
// cross-reference checks. It returns a *ValidationError listing every
// problem of the first failing stage.
func (l *Loader) Validate(m *Manifest) error {
	if err := l.validate.Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate manifest: %w", err)
		}
		problems := make([]Problem, len(fieldErrs))
		for i, fe := range fieldErrs {
			problems[i] = Problem{
				Path:    fe.Namespace(),
				Message: fmt.Sprintf("failed on the %q rule", fe.Tag()),
			}
		}
		return &ValidationError{Problems: problems}
	}

	if problems := l.schema.Validate(m); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	if problems := m.checkReferences(); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func decode(data []byte, source string) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest %s is empty", source)
		}
		return nil, fmt.Errorf("failed to parse manifest %s: %w", source, err)
	}
	m.Sources = []string{source}
	return &m, nil
}

func expand(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat manifest path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		var found []string
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isManifestFile(p) {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", path, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

func isManifestFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

// merge appends other's declarations. The first non-empty name wins.
func (m *Manifest) merge(other *Manifest) {
	if m.Name == "" {
		m.Name = other.Name
	}
	m.Particles = append(m.Particles, other.Particles...)
	m.Stores = append(m.Stores, other.Stores...)
	m.RemoteSlots = append(m.RemoteSlots, other.RemoteSlots...)
	m.Recipes = append(m.Recipes, other.Recipes...)
	m.Sources = append(m.Sources, other.Sources...)
}
