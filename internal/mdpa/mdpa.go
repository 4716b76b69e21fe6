// Package mdpa reads the block-structured model part text format:
//
//	Begin Nodes
//	  1  0.0  0.0  0.0
//	End Nodes
//	Begin Elements Element2D3N
//	  1  0  1 2 3
//	End Elements
//	Begin SubModelPart Parts_Fluid
//	  Begin SubModelPartNodes
//	    1
//	  End SubModelPartNodes
//	End SubModelPart
//
// Parsing yields a Document; Populate copies it into a model part.
package mdpa

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/femstage/internal/kernel"
)

var ErrSyntax = errors.New("mdpa: syntax error")

type NodeData struct {
	ID      int
	X, Y, Z float64
}

// EntityData describes an element or a condition.
type EntityData struct {
	ID           int
	Name         string
	PropertiesID int
	Nodes        []int
}

type NodalValue struct {
	NodeID int
	Fixed  bool
	Value  float64
}

type PropertiesData struct {
	ID     int
	Values map[string]float64
}

type SubPart struct {
	Name       string
	Nodes      []int
	Elements   []int
	Conditions []int
	Subs       []*SubPart
}

// Document is the parsed content of one file.
type Document struct {
	Properties []PropertiesData
	Nodes      []NodeData
	Elements   []EntityData
	Conditions []EntityData
	NodalData  map[kernel.Variable][]NodalValue
	Subs       []*SubPart
}

// ReadFile parses the file at path. A missing ".mdpa" suffix is added.
func ReadFile(path string) (*Document, error) {
	if !strings.HasSuffix(path, ".mdpa") {
		path += ".mdpa"
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

type parser struct {
	sc   *bufio.Scanner
	line int
	doc  *Document
}

// Parse reads a document from r.
func Parse(r io.Reader) (*Document, error) {
	p := &parser{
		sc:  bufio.NewScanner(r),
		doc: &Document{NodalData: make(map[kernel.Variable][]NodalValue)},
	}
	p.sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fields, ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return p.doc, nil
		}
		if fields[0] != "Begin" || len(fields) < 2 {
			return nil, p.errorf("expected Begin, got %q", strings.Join(fields, " "))
		}
		if err := p.block(fields[1], fields[2:]); err != nil {
			return nil, err
		}
	}
}

func (p *parser) next() ([]string, bool, error) {
	for p.sc.Scan() {
		p.line++
		text := p.sc.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) > 0 {
			return fields, true, nil
		}
	}
	return nil, false, p.sc.Err()
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, p.line, fmt.Sprintf(format, args...))
}

// rows calls fn for each line until "End <name>".
func (p *parser) rows(name string, fn func(fields []string) error) error {
	for {
		fields, ok, err := p.next()
		if err != nil {
			return err
		}
		if !ok {
			return p.errorf("unterminated %s block", name)
		}
		if fields[0] == "End" {
			if len(fields) < 2 || fields[1] != name {
				return p.errorf("expected End %s", name)
			}
			return nil
		}
		if err := fn(fields); err != nil {
			return err
		}
	}
}

func (p *parser) block(name string, args []string) error {
	switch name {
	case "ModelPartData", "Table", "ElementalData", "ConditionalData", "Geometries", "Mesh":
		return p.rows(name, func([]string) error { return nil })
	case "Properties":
		id, err := p.argInt(args)
		if err != nil {
			return err
		}
		props := PropertiesData{ID: id, Values: make(map[string]float64)}
		err = p.rows(name, func(f []string) error {
			if len(f) < 2 {
				return p.errorf("property needs a name and a value")
			}
			v, err := strconv.ParseFloat(f[1], 64)
			if err != nil {
				// non-scalar properties (constitutive laws, tables) are skipped
				return nil
			}
			props.Values[f[0]] = v
			return nil
		})
		p.doc.Properties = append(p.doc.Properties, props)
		return err
	case "Nodes":
		return p.rows(name, func(f []string) error {
			if len(f) != 4 {
				return p.errorf("node needs id and three coordinates")
			}
			id, err := p.atoi(f[0])
			if err != nil {
				return err
			}
			var c [3]float64
			for i := range c {
				if c[i], err = p.atof(f[i+1]); err != nil {
					return err
				}
			}
			p.doc.Nodes = append(p.doc.Nodes, NodeData{ID: id, X: c[0], Y: c[1], Z: c[2]})
			return nil
		})
	case "Elements", "Conditions":
		if len(args) < 1 {
			return p.errorf("%s block needs an entity name", name)
		}
		var entities []EntityData
		err := p.rows(name, func(f []string) error {
			ints, err := p.ints(f)
			if err != nil {
				return err
			}
			if len(ints) < 3 {
				return p.errorf("entity needs id, properties id and nodes")
			}
			entities = append(entities, EntityData{ID: ints[0], Name: args[0], PropertiesID: ints[1], Nodes: ints[2:]})
			return nil
		})
		if name == "Elements" {
			p.doc.Elements = append(p.doc.Elements, entities...)
		} else {
			p.doc.Conditions = append(p.doc.Conditions, entities...)
		}
		return err
	case "NodalData":
		if len(args) < 1 {
			return p.errorf("NodalData block needs a variable name")
		}
		v := kernel.Variable(args[0])
		return p.rows(name, func(f []string) error {
			if len(f) != 3 {
				return p.errorf("nodal data needs node id, fixity and value")
			}
			id, err := p.atoi(f[0])
			if err != nil {
				return err
			}
			fixed, err := p.atoi(f[1])
			if err != nil {
				return err
			}
			val, err := p.atof(f[2])
			if err != nil {
				return err
			}
			p.doc.NodalData[v] = append(p.doc.NodalData[v], NodalValue{NodeID: id, Fixed: fixed != 0, Value: val})
			return nil
		})
	case "SubModelPart":
		if len(args) < 1 {
			return p.errorf("SubModelPart needs a name")
		}
		sub, err := p.subPart(args[0])
		if err != nil {
			return err
		}
		p.doc.Subs = append(p.doc.Subs, sub)
		return nil
	}
	return p.errorf("unknown block %q", name)
}

func (p *parser) subPart(name string) (*SubPart, error) {
	sub := &SubPart{Name: name}
	for {
		fields, ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, p.errorf("unterminated SubModelPart %s", name)
		}
		if fields[0] == "End" && len(fields) > 1 && fields[1] == "SubModelPart" {
			return sub, nil
		}
		if fields[0] != "Begin" || len(fields) < 2 {
			return nil, p.errorf("unexpected %q in SubModelPart %s", strings.Join(fields, " "), name)
		}

		var dst *[]int
		switch fields[1] {
		case "SubModelPartNodes":
			dst = &sub.Nodes
		case "SubModelPartElements":
			dst = &sub.Elements
		case "SubModelPartConditions":
			dst = &sub.Conditions
		case "SubModelPartData", "SubModelPartTables", "SubModelPartProperties", "SubModelPartGeometries":
			if err := p.rows(fields[1], func([]string) error { return nil }); err != nil {
				return nil, err
			}
			continue
		case "SubModelPart":
			if len(fields) < 3 {
				return nil, p.errorf("SubModelPart needs a name")
			}
			nested, err := p.subPart(fields[2])
			if err != nil {
				return nil, err
			}
			sub.Subs = append(sub.Subs, nested)
			continue
		default:
			return nil, p.errorf("unknown block %q in SubModelPart %s", fields[1], name)
		}

		err = p.rows(fields[1], func(f []string) error {
			ids, err := p.ints(f)
			if err != nil {
				return err
			}
			*dst = append(*dst, ids...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) argInt(args []string) (int, error) {
	if len(args) < 1 {
		return 0, p.errorf("missing id")
	}
	return p.atoi(args[0])
}

func (p *parser) atoi(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, p.errorf("invalid integer %q", s)
	}
	return v, nil
}

func (p *parser) atof(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, p.errorf("invalid number %q", s)
	}
	return v, nil
}

func (p *parser) ints(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := p.atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
