package strategy

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
)

// Kind is the declared type of a strategy variable.
type Kind string

const (
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindDuration Kind = "duration"
	KindString   Kind = "string"
)

func (k Kind) validate(raw string) error {
	var err error
	switch k {
	case KindInt:
		_, err = strconv.Atoi(raw)
	case KindFloat:
		_, err = strconv.ParseFloat(raw, 64)
	case KindDuration:
		_, err = time.ParseDuration(raw)
	case KindString:
	default:
		err = fmt.Errorf("unknown kind %q", k)
	}
	return err
}

// Variable is one named, typed, default-valued tunable.
type Variable struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Default     string `json:"default"`
	Description string `json:"description,omitempty"`
}

// Values holds resolved variable values. Accessors fall back to the zero
// value for names that were never declared.
type Values struct {
	kinds  map[string]Kind
	values map[string]string
}

// NewValues returns the defaults of variables.
func NewValues(variables []Variable) Values {
	v := Values{
		kinds:  make(map[string]Kind, len(variables)),
		values: make(map[string]string, len(variables)),
	}
	for _, variable := range variables {
		v.kinds[variable.Name] = variable.Kind
		v.values[variable.Name] = variable.Default
	}
	return v
}

// With returns a copy with overrides applied. Unknown names are ignored; a
// value that does not parse as the declared kind is an error.
func (v Values) With(overrides map[string]string) (Values, error) {
	out := Values{kinds: v.kinds, values: maps.Clone(v.values)}
	if out.values == nil {
		out.values = make(map[string]string)
	}
	for name, raw := range overrides {
		kind, ok := v.kinds[name]
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if err := kind.validate(raw); err != nil {
			return Values{}, apperrors.WithMetadata(apperrors.CodeStrategyVariableInvalid, "invalid strategy variable", map[string]string{
				"Name":  name,
				"Value": raw,
				"Kind":  string(kind),
			})
		}
		out.values[name] = raw
	}
	return out, nil
}

// Int returns an int variable.
func (v Values) Int(name string) int {
	n, _ := strconv.Atoi(v.values[name])
	return n
}

// Float returns a float variable.
func (v Values) Float(name string) float64 {
	f, _ := strconv.ParseFloat(v.values[name], 64)
	return f
}

// Duration returns a duration variable.
func (v Values) Duration(name string) time.Duration {
	d, _ := time.ParseDuration(v.values[name])
	return d
}

// String returns a string variable.
func (v Values) String(name string) string {
	return v.values[name]
}

// Map returns the resolved values keyed by name.
func (v Values) Map() map[string]string {
	return maps.Clone(v.values)
}

// MergeOverrides layers override maps, later maps winning.
func MergeOverrides(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		maps.Copy(out, layer)
	}
	return out
}
