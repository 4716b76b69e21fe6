package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// Parse reads a JSON document. It is the literal form used for defaults
// embedded in Go source.
func Parse(text string) (*Parameters, error) {
	return ParseJSON([]byte(text))
}

// MustParse is Parse for compile-time literals; it panics on malformed input.
func MustParse(text string) *Parameters {
	p, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return p
}

func ParseJSON(data []byte) (*Parameters, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &ConfigError{Path: "", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Path: "", Reason: "invalid JSON: trailing data after document"}
	}
	if raw == nil {
		return New(), nil
	}
	return FromMap(raw)
}

func ParseYAML(data []byte) (*Parameters, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Path: "", Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if raw == nil {
		return New(), nil
	}
	return FromMap(raw)
}

// ParseHCL reads top-level attributes of an HCL body. Nested settings are
// written as object expressions: solver_settings = { echo_level = 1 }.
func ParseHCL(data []byte, filename string) (*Parameters, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, &ConfigError{Path: "", Reason: fmt.Sprintf("invalid HCL: %v", diags)}
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, &ConfigError{Path: "", Reason: fmt.Sprintf("invalid HCL: %v", diags)}
	}

	p := New()
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, &ConfigError{Path: name, Reason: fmt.Sprintf("cannot evaluate: %v", diags)}
		}
		v, err := fromCty(val)
		if err != nil {
			return nil, &ConfigError{Path: name, Reason: err.Error()}
		}
		p.values[name] = v
	}
	return p, nil
}

// Load reads a settings file, choosing the format from its extension.
func Load(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".hcl":
		return ParseHCL(data, path)
	default:
		return ParseJSON(data)
	}
}

// Save writes the tree as indented JSON.
func Save(path string, p *Parameters) error {
	return os.WriteFile(path, []byte(p.PrettyJSON()+"\n"), 0644)
}

func fromCty(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, errors.New("value is not known")
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			v, err := fromCty(ev)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.AsString(), err)
			}
			out[k.AsString()] = v
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			v, err := fromCty(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported HCL type %s", ty.FriendlyName())
}
