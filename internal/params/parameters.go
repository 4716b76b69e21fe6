package params

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Parameters is a settings tree. Values are nil, bool, int64, float64,
// string, []any or map[string]any.
//
// A tree returned by Sub shares storage with its parent.
type Parameters struct {
	values map[string]any
}

// New returns an empty tree.
func New() *Parameters {
	return &Parameters{values: make(map[string]any)}
}

// FromMap builds a tree from a generic map, normalizing numeric types.
func FromMap(m map[string]any) (*Parameters, error) {
	v, err := normalize(m)
	if err != nil {
		return nil, err
	}
	return &Parameters{values: v.(map[string]any)}, nil
}

func (p *Parameters) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p.values[key]
	return ok
}

// Get returns the raw value stored under key.
func (p *Parameters) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Lookup resolves a dotted path such as "solver_settings.echo_level".
func (p *Parameters) Lookup(path string) (any, bool) {
	cur := p
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := cur.Get(part)
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = &Parameters{values: m}
	}
	return nil, false
}

func (p *Parameters) Int(key string) int {
	v, _ := p.Get(key)
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func (p *Parameters) Float(key string) float64 {
	v, _ := p.Get(key)
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func (p *Parameters) Bool(key string) bool {
	v, _ := p.Get(key)
	b, _ := v.(bool)
	return b
}

func (p *Parameters) String(key string) string {
	v, _ := p.Get(key)
	s, _ := v.(string)
	return s
}

// Strings returns the string elements of an array value.
func (p *Parameters) Strings(key string) []string {
	v, _ := p.Get(key)
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Floats returns the numeric elements of an array value.
func (p *Parameters) Floats(key string) []float64 {
	v, _ := p.Get(key)
	arr, _ := v.([]any)
	out := make([]float64, 0, len(arr))
	for _, e := range arr {
		switch n := e.(type) {
		case int64:
			out = append(out, float64(n))
		case float64:
			out = append(out, n)
		}
	}
	return out
}

// Sub returns the nested tree under key, or an empty detached tree when the
// key is absent or not a tree.
func (p *Parameters) Sub(key string) *Parameters {
	v, _ := p.Get(key)
	if m, ok := v.(map[string]any); ok {
		return &Parameters{values: m}
	}
	return New()
}

// Array returns the tree elements of an array value.
func (p *Parameters) Array(key string) []*Parameters {
	v, _ := p.Get(key)
	arr, _ := v.([]any)
	out := make([]*Parameters, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]any); ok {
			out = append(out, &Parameters{values: m})
		}
	}
	return out
}

// Keys returns the keys in sorted order.
func (p *Parameters) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Parameters) Len() int {
	if p == nil {
		return 0
	}
	return len(p.values)
}

// Set stores value under key. Go ints, float32, string slices and nested
// *Parameters are converted to tree values.
func (p *Parameters) Set(key string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("params: set %q: %w", key, err)
	}
	if p.values == nil {
		p.values = make(map[string]any)
	}
	p.values[key] = v
	return nil
}

// SetString stores a string value. Strings need no normalization, so it
// cannot fail.
func (p *Parameters) SetString(key, value string) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	p.values[key] = value
}

func (p *Parameters) Remove(key string) {
	delete(p.values, key)
}

// Clone returns a deep copy.
func (p *Parameters) Clone() *Parameters {
	if p == nil {
		return New()
	}
	return &Parameters{values: deepCopy(p.values).(map[string]any)}
}

func (p *Parameters) Equal(other *Parameters) bool {
	return reflect.DeepEqual(p.Clone().values, other.Clone().values)
}

// AddMissing recursively copies into p every key of other that p lacks.
func (p *Parameters) AddMissing(other *Parameters) {
	if other == nil {
		return
	}
	addMissing(p.values, other.values)
}

func addMissing(dst, src map[string]any) {
	for k, sv := range src {
		dv, ok := dst[k]
		if !ok {
			dst[k] = deepCopy(sv)
			continue
		}
		dm, dok := dv.(map[string]any)
		sm, sok := sv.(map[string]any)
		if dok && sok {
			addMissing(dm, sm)
		}
	}
}

// Map returns a deep copy of the tree as a plain map.
func (p *Parameters) Map() map[string]any {
	return p.Clone().values
}

func (p *Parameters) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(encodable(p.values))
}

// PrettyJSON renders the tree with sorted keys and four-space indentation.
func (p *Parameters) PrettyJSON() string {
	data, err := json.MarshalIndent(encodable(p.values), "", "    ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// real marshals whole numbers with a trailing ".0" so that the
// integer/real distinction survives a round trip.
type real float64

func (r real) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("params: cannot encode %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

func encodable(v any) any {
	switch t := v.(type) {
	case float64:
		return real(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = encodable(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = encodable(e)
		}
		return out
	}
	return v
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	}
	return v
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, int64, float64, string:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	case float32:
		return float64(t), nil
	case json.Number:
		return parseNumber(string(t))
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, nil
	case *Parameters:
		return deepCopy(t.values), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ks, err)
			}
			out[ks] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func parseNumber(s string) (any, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "integer"
	case float64:
		return "real"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "tree"
	}
	return fmt.Sprintf("%T", v)
}
