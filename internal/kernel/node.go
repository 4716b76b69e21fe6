package kernel

// Node is a mesh point with its solution-step buffers. Index 0 of the
// buffer is the current step.
type Node struct {
	ID         int
	X, Y, Z    float64
	X0, Y0, Z0 float64

	steps []map[Variable]float64
	fixed map[Variable]bool
}

func newNode(id int, x, y, z float64, bufferSize int) *Node {
	if bufferSize < 1 {
		bufferSize = 1
	}
	n := &Node{
		ID: id,
		X:  x, Y: y, Z: z,
		X0: x, Y0: y, Z0: z,
		steps: make([]map[Variable]float64, bufferSize),
		fixed: make(map[Variable]bool),
	}
	for i := range n.steps {
		n.steps[i] = make(map[Variable]float64)
	}
	return n
}

// Value returns the current-step value of v.
func (n *Node) Value(v Variable) float64 {
	return n.steps[0][v]
}

func (n *Node) SetValue(v Variable, x float64) {
	n.steps[0][v] = x
}

// PreviousValue returns the value of v back steps ago. Steps beyond the
// buffer read as zero.
func (n *Node) PreviousValue(v Variable, back int) float64 {
	if back < 0 || back >= len(n.steps) {
		return 0
	}
	return n.steps[back][v]
}

func (n *Node) Fix(v Variable)          { n.fixed[v] = true }
func (n *Node) Free(v Variable)         { delete(n.fixed, v) }
func (n *Node) IsFixed(v Variable) bool { return n.fixed[v] }

func (n *Node) Coordinates() [3]float64        { return [3]float64{n.X, n.Y, n.Z} }
func (n *Node) InitialCoordinates() [3]float64 { return [3]float64{n.X0, n.Y0, n.Z0} }

func (n *Node) SetCoordinates(c [3]float64) {
	n.X, n.Y, n.Z = c[0], c[1], c[2]
}

// BufferSize is the number of stored steps.
func (n *Node) BufferSize() int { return len(n.steps) }

func (n *Node) resizeBuffer(size int) {
	if size < 1 || size == len(n.steps) {
		return
	}
	steps := make([]map[Variable]float64, size)
	for i := range steps {
		if i < len(n.steps) {
			steps[i] = n.steps[i]
		} else {
			steps[i] = make(map[Variable]float64)
		}
	}
	n.steps = steps
}

// cloneStep shifts the buffer by one and seeds the new current step with
// a copy of the previous one.
func (n *Node) cloneStep() {
	last := len(n.steps) - 1
	if last == 0 {
		return
	}
	recycled := n.steps[last]
	copy(n.steps[1:], n.steps[:last])
	clear(recycled)
	for k, v := range n.steps[1] {
		recycled[k] = v
	}
	n.steps[0] = recycled
}
