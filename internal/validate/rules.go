// Package validate applies declarative per-dataset rule sets to raw record
// batches and scores the result. Rules are data, loaded once at startup,
// never mutated during a run.
package validate

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FieldType is a declared record field type.
type FieldType string

const (
	TypeTimestamp FieldType = "timestamp"
	TypeNumber    FieldType = "number"
	TypeString    FieldType = "string"
)

// Strictness controls whether range violations escalate to hard errors.
type Strictness string

const (
	StrictnessLenient Strictness = "lenient"
	StrictnessStrict  Strictness = "strict"
)

// DefaultPassThreshold is the aggregate score a batch needs to pass when a
// rule set does not override it.
const DefaultPassThreshold = 0.95

// Duration wraps time.Duration with YAML support ("2h", "30m", ...).
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Range bounds a numeric field.
type Range struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// Temporal holds the temporal-consistency parameters of a time-indexed
// dataset.
type Temporal struct {
	ExpectedInterval   Duration `yaml:"expected_interval"`
	MaxGap             Duration `yaml:"max_gap"`
	DuplicateTolerance int      `yaml:"duplicate_tolerance"`
}

// Weights are the quality dimension weights. They must sum to 1.0.
type Weights struct {
	Completeness float64 `yaml:"completeness"`
	Validity     float64 `yaml:"validity"`
	Consistency  float64 `yaml:"consistency"`
	Timeliness   float64 `yaml:"timeliness"`
}

// RuleSet is the validation contract for one (source, data_type) dataset.
type RuleSet struct {
	Source         string               `yaml:"source"`
	DataType       string               `yaml:"data_type"`
	Strictness     Strictness           `yaml:"strictness"`
	TimeIndexed    bool                 `yaml:"time_indexed"`
	TimestampField string               `yaml:"timestamp_field"`
	PassThreshold  float64              `yaml:"pass_threshold"`
	RequiredFields []string             `yaml:"required_fields"`
	FieldTypes     map[string]FieldType `yaml:"field_types"`
	Ranges         map[string]Range     `yaml:"ranges"`
	Temporal       Temporal             `yaml:"temporal"`
	FreshnessBound Duration             `yaml:"freshness_bound"`
	Weights        Weights              `yaml:"weights"`
}

// Key identifies the dataset a rule set governs.
func (rs *RuleSet) Key() string {
	return rs.Source + "/" + rs.DataType
}

// Threshold returns the pass threshold, applying the default when unset.
func (rs *RuleSet) Threshold() float64 {
	if rs.PassThreshold == 0 {
		return DefaultPassThreshold
	}
	return rs.PassThreshold
}

// validate checks rule set invariants at load time.
func (rs *RuleSet) validate() error {
	if rs.Source == "" || rs.DataType == "" {
		return fmt.Errorf("source and data_type are required")
	}

	switch rs.Strictness {
	case "", StrictnessLenient, StrictnessStrict:
	default:
		return fmt.Errorf("unknown strictness %q", rs.Strictness)
	}

	sum := rs.Weights.Completeness + rs.Weights.Validity + rs.Weights.Consistency + rs.Weights.Timeliness
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("dimension weights sum to %.4f, want 1.0", sum)
	}

	for _, field := range rs.RequiredFields {
		if _, ok := rs.FieldTypes[field]; !ok {
			return fmt.Errorf("required field %q has no declared type", field)
		}
	}

	for field := range rs.Ranges {
		if rs.FieldTypes[field] != TypeNumber {
			return fmt.Errorf("range constraint on non-numeric field %q", field)
		}
	}

	if rs.TimeIndexed {
		if rs.TimestampField == "" {
			return fmt.Errorf("time-indexed dataset needs a timestamp_field")
		}
		if rs.FieldTypes[rs.TimestampField] != TypeTimestamp {
			return fmt.Errorf("timestamp_field %q must be declared as timestamp", rs.TimestampField)
		}
	}

	return nil
}

// Registry holds the loaded rule sets, keyed by source/data_type.
// Read-only after Load.
type Registry struct {
	rules map[string]*RuleSet
}

// Load reads every *.yaml rule set in dir. Unknown YAML fields fail fast.
func Load(dir string) (*Registry, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan rules dir: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no rule sets found in %s", dir)
	}

	reg := &Registry{rules: make(map[string]*RuleSet, len(entries))}
	for _, path := range entries {
		rs, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
		}
		if _, exists := reg.rules[rs.Key()]; exists {
			return nil, fmt.Errorf("duplicate rule set for %s", rs.Key())
		}
		reg.rules[rs.Key()] = rs
	}

	return reg, nil
}

// LoadFile reads and validates a single rule set file.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rs RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}

	if err := rs.validate(); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}

	return &rs, nil
}

// Get returns the rule set for a dataset.
func (r *Registry) Get(source, dataType string) (*RuleSet, error) {
	rs, ok := r.rules[source+"/"+dataType]
	if !ok {
		return nil, fmt.Errorf("no rule set for %s/%s", source, dataType)
	}
	return rs, nil
}

// Keys lists the governed datasets, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.rules))
	for k := range r.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
