package kernel

// Strategy performs the solution of one step on a computing model part.
type Strategy interface {
	Initialize() error
	InitializeSolutionStep() error
	Predict() error
	Solve() (converged bool, err error)
	FinalizeSolutionStep() error
	Finalize() error
	Clear()
	SetEchoLevel(level int)
}

// Importer fills a model part from an external source.
type Importer interface {
	Import(mp *ModelPart) error
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(mp *ModelPart) error

func (f ImporterFunc) Import(mp *ModelPart) error { return f(mp) }
