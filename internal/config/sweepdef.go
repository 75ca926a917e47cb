package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/seqsweep/internal/fsutil"
	"github.com/banshee-data/seqsweep/internal/readout"
	"github.com/banshee-data/seqsweep/internal/rtprog"
	"github.com/banshee-data/seqsweep/internal/sequence"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

// ExampleConfigPath is the square pulse example shipped with the repository.
const ExampleConfigPath = "config/square_pulse.sweep.json"

// MaxFileSize caps the size of a sweep definition file.
const MaxFileSize = 1 * 1024 * 1024 // 1MB

// SweepDefinition is the JSON description of a sequence, its sweep axes and
// the gettables retrieved per sweep.
type SweepDefinition struct {
	Sequence    string                     `json:"sequence"`
	Element     string                     `json:"element"`
	StreamMode  string                     `json:"stream_mode,omitempty"`
	RegisterAll bool                       `json:"register_all,omitempty"`
	Parameters  map[string]ParameterConfig `json:"parameters,omitempty"`
	Macros      []string                   `json:"macros,omitempty"`

	SubSequences []SubSequenceConfig `json:"sub_sequences,omitempty"`
	Readouts     []ReadoutConfig     `json:"readouts,omitempty"`

	// Sweeps holds one axis per entry. Parameters are addressed by dotted
	// path relative to the root sequence, e.g. "square.amplitude".
	Sweeps    []AxisConfig `json:"sweeps,omitempty"`
	Gettables []string     `json:"gettables,omitempty"`
}

// ParameterConfig declares a sequence parameter. Omitted fields keep their
// defaults.
type ParameterConfig struct {
	Type  string   `json:"type,omitempty"`
	Value *float64 `json:"value,omitempty"`
	Unit  string   `json:"unit,omitempty"`
	Scale *float64 `json:"scale,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// GetScale returns the scale or the default of 1.
func (p ParameterConfig) GetScale() float64 {
	if p.Scale == nil {
		return 1
	}
	return *p.Scale
}

// Options converts the declaration into parameter options.
func (p ParameterConfig) Options() ([]sweep.ParameterOption, error) {
	kind, err := rtprog.ParseVarType(p.Type)
	if err != nil {
		return nil, err
	}
	opts := []sweep.ParameterOption{
		sweep.WithKind(kind),
		sweep.WithScale(p.GetScale()),
		sweep.WithUnit(p.Unit),
	}
	if p.Min != nil || p.Max != nil {
		c := sweep.ScalarRange{Min: -1e308, Max: 1e308}
		if p.Min != nil {
			c.Min = *p.Min
		}
		if p.Max != nil {
			c.Max = *p.Max
		}
		opts = append(opts, sweep.WithConstraint(c))
	}
	return opts, nil
}

// SubSequenceConfig declares a child sequence.
type SubSequenceConfig struct {
	Name       string                     `json:"name"`
	Element    string                     `json:"element,omitempty"`
	Parameters map[string]ParameterConfig `json:"parameters,omitempty"`
	Macros     []string                   `json:"macros,omitempty"`
}

// ReadoutConfig declares the readout points of one signal.
type ReadoutConfig struct {
	Signal   string                `json:"signal"`
	Elements []string              `json:"elements"`
	Points   []readout.PointConfig `json:"points"`
}

// AxisEntry is one parameter of an axis.
type AxisEntry struct {
	Param     string `json:"param"`
	Setpoints any    `json:"setpoints"`
}

// AxisConfig is the ordered declaration of one axis. In JSON it is either an
// object mapping parameter paths to setpoints, decoded in key order, or an
// array of {"param", "setpoints"} entries.
type AxisConfig []AxisEntry

// UnmarshalJSON decodes an axis preserving parameter order.
func (a *AxisConfig) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []AxisEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return fmt.Errorf("%w: axis entries: %v", sweep.ErrInvalidType, err)
		}
		*a = entries
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: axis: %v", sweep.ErrInvalidType, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: sweep axis must be an object mapping parameters to setpoints, got %s",
			sweep.ErrInvalidType, trimmed)
	}

	var entries []AxisEntry
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: axis key: %v", sweep.ErrInvalidType, err)
		}
		key := tok.(string)
		if seen[key] {
			return fmt.Errorf("%w: parameter %s appears twice on one axis", sweep.ErrInvalidValue, key)
		}
		seen[key] = true
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("%w: setpoints of %s: %v", sweep.ErrInvalidType, key, err)
		}
		entries = append(entries, AxisEntry{Param: key, Setpoints: v})
	}
	*a = entries
	return nil
}

// MarshalJSON encodes the axis as an object in declaration order.
func (a AxisConfig) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Param)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Setpoints)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse decodes and validates a sweep definition.
func Parse(data []byte) (*SweepDefinition, error) {
	def := &SweepDefinition{}
	if err := json.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("failed to parse sweep definition JSON: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep definition: %w", err)
	}
	return def, nil
}

// Load reads a sweep definition from fsys. The file must have a .json
// extension and be at most MaxFileSize bytes.
func Load(fsys fsutil.FileSystem, path string) (*SweepDefinition, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// MustLoadExample loads ExampleConfigPath from the working directory or one
// of its parents. Panics if the file cannot be loaded, intended for tests.
func MustLoadExample() *SweepDefinition {
	candidates := []string{
		ExampleConfigPath,
		"../" + ExampleConfigPath,
		"../../" + ExampleConfigPath,
		"../../../" + ExampleConfigPath,
	}
	for _, path := range candidates {
		if def, err := Load(fsutil.OSFileSystem{}, path); err == nil {
			return def
		}
	}
	panic("cannot find " + ExampleConfigPath + " - run tests from repository root")
}

// Validate checks names, types and modes without building anything.
func (d *SweepDefinition) Validate() error {
	if strings.TrimSpace(d.Sequence) == "" {
		return fmt.Errorf("%w: sequence name is required", sweep.ErrInvalidValue)
	}
	if _, err := sequence.ParseStreamMode(d.StreamMode); err != nil {
		return err
	}
	if err := validateParameters(d.Sequence, d.Parameters); err != nil {
		return err
	}
	names := make(map[string]bool)
	for _, sub := range d.SubSequences {
		if sub.Name == "" || strings.Contains(sub.Name, ".") {
			return fmt.Errorf("%w: sub-sequence name %q", sweep.ErrInvalidValue, sub.Name)
		}
		if names[sub.Name] {
			return fmt.Errorf("%w: sub-sequence %s declared twice", sweep.ErrInvalidValue, sub.Name)
		}
		names[sub.Name] = true
		if err := validateParameters(sub.Name, sub.Parameters); err != nil {
			return err
		}
	}
	for i, r := range d.Readouts {
		if r.Signal == "" || len(r.Elements) == 0 {
			return fmt.Errorf("%w: readout %d needs a signal and elements", sweep.ErrInvalidValue, i)
		}
	}
	for i, axis := range d.Sweeps {
		if len(axis) == 0 {
			return fmt.Errorf("%w: sweep axis %d declares no parameters", sweep.ErrInvalidValue, i)
		}
		for _, e := range axis {
			if e.Param == "" {
				return fmt.Errorf("%w: sweep axis %d has an unnamed parameter", sweep.ErrInvalidType, i)
			}
		}
	}
	for _, g := range d.Gettables {
		if g == "" {
			return fmt.Errorf("%w: empty gettable name", sweep.ErrInvalidValue)
		}
	}
	return nil
}

func validateParameters(owner string, params map[string]ParameterConfig) error {
	for name, p := range params {
		if name == "" || strings.Contains(name, ".") {
			return fmt.Errorf("%w: parameter name %q in %s", sweep.ErrInvalidValue, name, owner)
		}
		if _, err := rtprog.ParseVarType(p.Type); err != nil {
			return fmt.Errorf("parameter %s.%s: %w", owner, name, err)
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("%w: parameter %s.%s has min > max", sweep.ErrInvalidValue, owner, name)
		}
		if p.Scale != nil && *p.Scale == 0 {
			return fmt.Errorf("%w: parameter %s.%s has zero scale", sweep.ErrInvalidValue, owner, name)
		}
	}
	return nil
}
