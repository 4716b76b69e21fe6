package kernel

import (
	"fmt"
	"strings"
)

// Model owns the root model parts of a simulation.
type Model struct {
	parts map[string]*ModelPart
	order []string
}

func NewModel() *Model {
	return &Model{parts: make(map[string]*ModelPart)}
}

// CreateModelPart creates a root model part with the given buffer size.
func (m *Model) CreateModelPart(name string, bufferSize int) (*ModelPart, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, Fail("CreateModelPart", fmt.Errorf("invalid model part name %q", name))
	}
	if _, ok := m.parts[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrModelPartExists, name)
	}
	mp := newRootModelPart(name, bufferSize)
	m.parts[name] = mp
	m.order = append(m.order, name)
	return mp, nil
}

// GetModelPart resolves a dotted name such as "Structure.Parts_Solid".
func (m *Model) GetModelPart(fullName string) (*ModelPart, error) {
	names := strings.Split(fullName, ".")
	mp, ok := m.parts[names[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelPartNotFound, fullName)
	}
	for _, name := range names[1:] {
		mp, ok = mp.SubModelPart(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrModelPartNotFound, fullName)
		}
	}
	return mp, nil
}

func (m *Model) HasModelPart(fullName string) bool {
	_, err := m.GetModelPart(fullName)
	return err == nil
}

// DeleteModelPart removes a root or sub model part.
func (m *Model) DeleteModelPart(fullName string) error {
	idx := strings.LastIndex(fullName, ".")
	if idx >= 0 {
		parent, err := m.GetModelPart(fullName[:idx])
		if err != nil {
			return err
		}
		return parent.RemoveSubModelPart(fullName[idx+1:])
	}

	if _, ok := m.parts[fullName]; !ok {
		return fmt.Errorf("%w: %s", ErrModelPartNotFound, fullName)
	}
	delete(m.parts, fullName)
	for i, n := range m.order {
		if n == fullName {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// ModelPartNames lists root model parts in creation order.
func (m *Model) ModelPartNames() []string {
	return append([]string(nil), m.order...)
}
