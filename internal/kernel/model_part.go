package kernel

import (
	"fmt"
	"sort"
)

// Element is a finite element referencing its nodes by id.
type Element struct {
	ID           int
	Name         string
	PropertiesID int
	NodeIDs      []int
}

// Condition is a boundary entity referencing its nodes by id.
type Condition struct {
	ID           int
	Name         string
	PropertiesID int
	NodeIDs      []int
}

// Properties holds named material values.
type Properties struct {
	ID     int
	values map[string]float64
}

func (p *Properties) Value(key string) float64 { return p.values[key] }

func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func (p *Properties) SetValue(key string, v float64) { p.values[key] = v }

// store is the data shared by a root model part and its sub model parts.
type store struct {
	nodes      map[int]*Node
	elements   map[int]*Element
	conditions map[int]*Condition
	properties map[int]*Properties
	info       *ProcessInfo
	variables  []Variable
	dofs       []Dof
	bufferSize int
}

// ModelPart is a named view over mesh entities. A root model part owns the
// store; sub model parts record membership only.
type ModelPart struct {
	name   string
	parent *ModelPart
	s      *store

	nodes      []int
	nodeSet    map[int]bool
	elements   []int
	elementSet map[int]bool
	conds      []int
	condSet    map[int]bool

	subs     map[string]*ModelPart
	subOrder []string
}

func newRootModelPart(name string, bufferSize int) *ModelPart {
	if bufferSize < 1 {
		bufferSize = 1
	}
	s := &store{
		nodes:      make(map[int]*Node),
		elements:   make(map[int]*Element),
		conditions: make(map[int]*Condition),
		properties: make(map[int]*Properties),
		info:       NewProcessInfo(),
		bufferSize: bufferSize,
	}
	return newModelPart(name, nil, s)
}

func newModelPart(name string, parent *ModelPart, s *store) *ModelPart {
	return &ModelPart{
		name:       name,
		parent:     parent,
		s:          s,
		nodeSet:    make(map[int]bool),
		elementSet: make(map[int]bool),
		condSet:    make(map[int]bool),
		subs:       make(map[string]*ModelPart),
	}
}

func (mp *ModelPart) Name() string { return mp.name }

// FullName is the dotted path from the root, e.g. "Structure.Parts_Solid".
func (mp *ModelPart) FullName() string {
	if mp.parent == nil {
		return mp.name
	}
	return mp.parent.FullName() + "." + mp.name
}

func (mp *ModelPart) IsSubModelPart() bool { return mp.parent != nil }

func (mp *ModelPart) Root() *ModelPart {
	if mp.parent == nil {
		return mp
	}
	return mp.parent.Root()
}

func (mp *ModelPart) ProcessInfo() *ProcessInfo { return mp.s.info }
func (mp *ModelPart) BufferSize() int           { return mp.s.bufferSize }

// SetBufferSize resizes the solution-step buffer of every node.
func (mp *ModelPart) SetBufferSize(size int) {
	if size < 1 {
		size = 1
	}
	mp.s.bufferSize = size
	for _, n := range mp.s.nodes {
		n.resizeBuffer(size)
	}
}

func (mp *ModelPart) AddNodalSolutionStepVariable(v Variable) {
	if mp.HasNodalSolutionStepVariable(v) {
		return
	}
	mp.s.variables = append(mp.s.variables, v)
}

func (mp *ModelPart) HasNodalSolutionStepVariable(v Variable) bool {
	for _, have := range mp.s.variables {
		if have == v {
			return true
		}
	}
	return false
}

func (mp *ModelPart) SolutionStepVariables() []Variable {
	return append([]Variable(nil), mp.s.variables...)
}

// AddDof registers a degree of freedom. The variable must already be a
// solution-step variable.
func (mp *ModelPart) AddDof(v, reaction Variable) error {
	if !mp.HasNodalSolutionStepVariable(v) {
		return Fail("AddDof", fmt.Errorf("%w: %s", ErrUnknownVariable, v))
	}
	for _, d := range mp.s.dofs {
		if d.Variable == v {
			return nil
		}
	}
	mp.s.dofs = append(mp.s.dofs, Dof{Variable: v, Reaction: reaction})
	return nil
}

func (mp *ModelPart) Dofs() []Dof { return append([]Dof(nil), mp.s.dofs...) }

// CreateNode adds a node to the store and to this part and its parents.
func (mp *ModelPart) CreateNode(id int, x, y, z float64) (*Node, error) {
	if n, ok := mp.s.nodes[id]; ok {
		if n.X0 != x || n.Y0 != y || n.Z0 != z {
			return nil, Fail("CreateNode", fmt.Errorf("node %d exists with different coordinates", id))
		}
		mp.addNodeID(id)
		return n, nil
	}
	n := newNode(id, x, y, z, mp.s.bufferSize)
	mp.s.nodes[id] = n
	mp.addNodeID(id)
	return n, nil
}

// AddNodes adds existing nodes of the root store to this part.
func (mp *ModelPart) AddNodes(ids []int) error {
	for _, id := range ids {
		if _, ok := mp.s.nodes[id]; !ok {
			return Fail("AddNodes", fmt.Errorf("node %d does not exist in %s", id, mp.Root().name))
		}
	}
	for _, id := range ids {
		mp.addNodeID(id)
	}
	return nil
}

func (mp *ModelPart) addNodeID(id int) {
	for p := mp; p != nil; p = p.parent {
		if !p.nodeSet[id] {
			p.nodeSet[id] = true
			p.nodes = append(p.nodes, id)
		}
	}
}

func (mp *ModelPart) Node(id int) (*Node, bool) {
	if !mp.nodeSet[id] {
		return nil, false
	}
	return mp.s.nodes[id], true
}

// Nodes returns the nodes in insertion order.
func (mp *ModelPart) Nodes() []*Node {
	out := make([]*Node, len(mp.nodes))
	for i, id := range mp.nodes {
		out[i] = mp.s.nodes[id]
	}
	return out
}

func (mp *ModelPart) NumberOfNodes() int { return len(mp.nodes) }

// CreateElement adds an element whose nodes already exist.
func (mp *ModelPart) CreateElement(id int, name string, propertiesID int, nodeIDs []int) (*Element, error) {
	if _, ok := mp.s.elements[id]; ok {
		return nil, Fail("CreateElement", fmt.Errorf("element %d already exists", id))
	}
	for _, nid := range nodeIDs {
		if _, ok := mp.s.nodes[nid]; !ok {
			return nil, Fail("CreateElement", fmt.Errorf("element %d references missing node %d", id, nid))
		}
	}
	e := &Element{ID: id, Name: name, PropertiesID: propertiesID, NodeIDs: append([]int(nil), nodeIDs...)}
	mp.s.elements[id] = e
	mp.Properties(propertiesID)
	mp.addElementID(id)
	return e, nil
}

func (mp *ModelPart) AddElements(ids []int) error {
	for _, id := range ids {
		if _, ok := mp.s.elements[id]; !ok {
			return Fail("AddElements", fmt.Errorf("element %d does not exist", id))
		}
	}
	for _, id := range ids {
		mp.addElementID(id)
	}
	return nil
}

func (mp *ModelPart) addElementID(id int) {
	for p := mp; p != nil; p = p.parent {
		if !p.elementSet[id] {
			p.elementSet[id] = true
			p.elements = append(p.elements, id)
		}
	}
}

func (mp *ModelPart) Elements() []*Element {
	out := make([]*Element, len(mp.elements))
	for i, id := range mp.elements {
		out[i] = mp.s.elements[id]
	}
	return out
}

func (mp *ModelPart) NumberOfElements() int { return len(mp.elements) }

// MaxElementID returns the largest element id in the root store.
func (mp *ModelPart) MaxElementID() int {
	max := 0
	for id := range mp.s.elements {
		if id > max {
			max = id
		}
	}
	return max
}

func (mp *ModelPart) CreateCondition(id int, name string, propertiesID int, nodeIDs []int) (*Condition, error) {
	if _, ok := mp.s.conditions[id]; ok {
		return nil, Fail("CreateCondition", fmt.Errorf("condition %d already exists", id))
	}
	for _, nid := range nodeIDs {
		if _, ok := mp.s.nodes[nid]; !ok {
			return nil, Fail("CreateCondition", fmt.Errorf("condition %d references missing node %d", id, nid))
		}
	}
	c := &Condition{ID: id, Name: name, PropertiesID: propertiesID, NodeIDs: append([]int(nil), nodeIDs...)}
	mp.s.conditions[id] = c
	mp.Properties(propertiesID)
	mp.addConditionID(id)
	return c, nil
}

func (mp *ModelPart) AddConditions(ids []int) error {
	for _, id := range ids {
		if _, ok := mp.s.conditions[id]; !ok {
			return Fail("AddConditions", fmt.Errorf("condition %d does not exist", id))
		}
	}
	for _, id := range ids {
		mp.addConditionID(id)
	}
	return nil
}

func (mp *ModelPart) addConditionID(id int) {
	for p := mp; p != nil; p = p.parent {
		if !p.condSet[id] {
			p.condSet[id] = true
			p.conds = append(p.conds, id)
		}
	}
}

func (mp *ModelPart) Conditions() []*Condition {
	out := make([]*Condition, len(mp.conds))
	for i, id := range mp.conds {
		out[i] = mp.s.conditions[id]
	}
	return out
}

func (mp *ModelPart) NumberOfConditions() int { return len(mp.conds) }

// Properties returns the properties with id, creating them on first use.
func (mp *ModelPart) Properties(id int) *Properties {
	p, ok := mp.s.properties[id]
	if !ok {
		p = &Properties{ID: id, values: make(map[string]float64)}
		mp.s.properties[id] = p
	}
	return p
}

func (mp *ModelPart) CreateSubModelPart(name string) (*ModelPart, error) {
	if _, ok := mp.subs[name]; ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrModelPartExists, mp.FullName(), name)
	}
	sub := newModelPart(name, mp, mp.s)
	mp.subs[name] = sub
	mp.subOrder = append(mp.subOrder, name)
	return sub, nil
}

func (mp *ModelPart) SubModelPart(name string) (*ModelPart, bool) {
	sub, ok := mp.subs[name]
	return sub, ok
}

func (mp *ModelPart) HasSubModelPart(name string) bool {
	_, ok := mp.subs[name]
	return ok
}

func (mp *ModelPart) SubModelParts() []*ModelPart {
	out := make([]*ModelPart, len(mp.subOrder))
	for i, name := range mp.subOrder {
		out[i] = mp.subs[name]
	}
	return out
}

// RemoveSubModelPart drops a sub model part. Its entities stay in the root.
func (mp *ModelPart) RemoveSubModelPart(name string) error {
	if _, ok := mp.subs[name]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrModelPartNotFound, mp.FullName(), name)
	}
	delete(mp.subs, name)
	for i, n := range mp.subOrder {
		if n == name {
			mp.subOrder = append(mp.subOrder[:i], mp.subOrder[i+1:]...)
			break
		}
	}
	return nil
}

// CloneTimeStep moves the clock to time and shifts every nodal buffer.
func (mp *ModelPart) CloneTimeStep(time float64) {
	info := mp.s.info
	info.SetDeltaTime(time - info.Time())
	info.SetTime(time)

	ids := make([]int, 0, len(mp.s.nodes))
	for id := range mp.s.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		mp.s.nodes[id].cloneStep()
	}
}
