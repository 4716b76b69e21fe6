package params

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrConfiguration is matched by every settings validation failure.
var ErrConfiguration = errors.New("configuration error")

// ConfigError reports a single invalid or missing settings key.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "params: " + e.Reason
	}
	return fmt.Sprintf("params: %q: %s", e.Path, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// Schema is the default tree of a component plus the dotted paths that
// must be supplied because no sensible default exists.
type Schema struct {
	Defaults *Parameters
	Required []string
}

// MustSchema builds a schema from a JSON literal.
func MustSchema(defaults string, required ...string) Schema {
	return Schema{Defaults: MustParse(defaults), Required: required}
}

// Extend returns s with every default of base that s does not override.
// Required paths are united.
func (s Schema) Extend(base Schema) Schema {
	defaults := s.Defaults.Clone()
	defaults.AddMissing(base.Defaults)

	seen := make(map[string]bool)
	var required []string
	for _, r := range append(append([]string{}, base.Required...), s.Required...) {
		if !seen[r] {
			seen[r] = true
			required = append(required, r)
		}
	}
	return Schema{Defaults: defaults, Required: required}
}

// Resolve merges user settings with the schema defaults and validates the
// result. The user tree is not modified; the merged tree is a fresh copy.
func Resolve(user *Parameters, schema Schema) (*Parameters, error) {
	out := user.Clone()

	var errs []error
	if schema.Defaults != nil {
		errs = merge(out.values, schema.Defaults.values, "")
	}

	for _, path := range schema.Required {
		if _, ok := out.Lookup(path); !ok {
			errs = append(errs, &ConfigError{Path: path, Reason: "required key is missing"})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func merge(dst, defaults map[string]any, prefix string) []error {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		dv := defaults[k]
		path := join(prefix, k)

		uv, ok := dst[k]
		if !ok {
			dst[k] = deepCopy(dv)
			continue
		}

		if dm, isTree := dv.(map[string]any); isTree {
			um, ok := uv.(map[string]any)
			if !ok {
				errs = append(errs, mismatch(path, dv, uv))
				continue
			}
			errs = append(errs, merge(um, dm, path)...)
			continue
		}

		cv, err := coerce(path, uv, dv)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dst[k] = cv
	}
	return errs
}

func coerce(path string, user, def any) (any, error) {
	switch def.(type) {
	case nil:
		return user, nil
	case bool:
		if _, ok := user.(bool); ok {
			return user, nil
		}
	case int64:
		switch u := user.(type) {
		case int64:
			return u, nil
		case float64:
			if u == math.Trunc(u) && u >= minInt64 && u < maxInt64 {
				return int64(u), nil
			}
		}
	case float64:
		switch u := user.(type) {
		case int64:
			return float64(u), nil
		case float64:
			return u, nil
		}
	case string:
		if _, ok := user.(string); ok {
			return user, nil
		}
	case []any:
		if _, ok := user.([]any); ok {
			return user, nil
		}
	}
	return nil, mismatch(path, def, user)
}

// Reals in [minInt64, maxInt64) convert to int64 exactly.
const (
	minInt64 = -9.223372036854775808e18
	maxInt64 = 9.223372036854775808e18
)

func mismatch(path string, def, user any) error {
	return &ConfigError{
		Path:   path,
		Reason: fmt.Sprintf("expected %s, got %s (%v)", kindOf(def), kindOf(user), user),
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.Join([]string{prefix, key}, ".")
}
