package kernel

// Variable names a nodal solution-step quantity.
type Variable string

const (
	DisplacementX Variable = "DISPLACEMENT_X"
	DisplacementY Variable = "DISPLACEMENT_Y"
	DisplacementZ Variable = "DISPLACEMENT_Z"
	ReactionX     Variable = "REACTION_X"
	ReactionY     Variable = "REACTION_Y"
	ReactionZ     Variable = "REACTION_Z"
	PointLoadX    Variable = "POINT_LOAD_X"
	PointLoadY    Variable = "POINT_LOAD_Y"
	PointLoadZ    Variable = "POINT_LOAD_Z"

	VelocityX        Variable = "VELOCITY_X"
	VelocityY        Variable = "VELOCITY_Y"
	VelocityZ        Variable = "VELOCITY_Z"
	FractionalVelX   Variable = "FRACT_VEL_X"
	FractionalVelY   Variable = "FRACT_VEL_Y"
	FractionalVelZ   Variable = "FRACT_VEL_Z"
	Pressure         Variable = "PRESSURE"
	ReactionWater    Variable = "REACTION_WATER_PRESSURE"
	Density          Variable = "DENSITY"
	Viscosity        Variable = "VISCOSITY"
	BodyForceX       Variable = "BODY_FORCE_X"
	BodyForceY       Variable = "BODY_FORCE_Y"
	BodyForceZ       Variable = "BODY_FORCE_Z"
	NodalArea        Variable = "NODAL_AREA"
	MeshDisplacement Variable = "MESH_DISPLACEMENT"

	MeshDisplacementX Variable = "MESH_DISPLACEMENT_X"
	MeshDisplacementY Variable = "MESH_DISPLACEMENT_Y"
	MeshDisplacementZ Variable = "MESH_DISPLACEMENT_Z"
	MeshVelocityX     Variable = "MESH_VELOCITY_X"
	MeshVelocityY     Variable = "MESH_VELOCITY_Y"
	MeshVelocityZ     Variable = "MESH_VELOCITY_Z"
	MeshReactionX     Variable = "MESH_REACTION_X"
	MeshReactionY     Variable = "MESH_REACTION_Y"
	MeshReactionZ     Variable = "MESH_REACTION_Z"

	PartitionIndex Variable = "PARTITION_INDEX"
)

// Vector groups the three components of a vector variable.
type Vector [3]Variable

var (
	Displacement  = Vector{DisplacementX, DisplacementY, DisplacementZ}
	Reaction      = Vector{ReactionX, ReactionY, ReactionZ}
	PointLoad     = Vector{PointLoadX, PointLoadY, PointLoadZ}
	Velocity      = Vector{VelocityX, VelocityY, VelocityZ}
	FractionalVel = Vector{FractionalVelX, FractionalVelY, FractionalVelZ}
	BodyForce     = Vector{BodyForceX, BodyForceY, BodyForceZ}
	MeshDisp      = Vector{MeshDisplacementX, MeshDisplacementY, MeshDisplacementZ}
	MeshVelocity  = Vector{MeshVelocityX, MeshVelocityY, MeshVelocityZ}
	MeshReaction  = Vector{MeshReactionX, MeshReactionY, MeshReactionZ}
)

// Components returns the first dim components.
func (v Vector) Components(dim int) []Variable {
	if dim < 1 || dim > 3 {
		dim = 3
	}
	return v[:dim]
}

// Process info keys.
const (
	DomainSize   = "DOMAIN_SIZE"
	OSSSwitch    = "OSS_SWITCH"
	DynamicTau   = "DYNAMIC_TAU"
	BDFCoeff0    = "BDF_COEFFICIENTS_0"
	BDFCoeff1    = "BDF_COEFFICIENTS_1"
	BDFCoeff2    = "BDF_COEFFICIENTS_2"
	TimeOrderKey = "TIME_INTEGRATION_ORDER"
)

// Dof pairs a solved variable with its reaction.
type Dof struct {
	Variable Variable
	Reaction Variable
}

var vectors = map[string]Vector{
	"DISPLACEMENT":      Displacement,
	"REACTION":          Reaction,
	"POINT_LOAD":        PointLoad,
	"VELOCITY":          Velocity,
	"FRACT_VEL":         FractionalVel,
	"BODY_FORCE":        BodyForce,
	"MESH_DISPLACEMENT": MeshDisp,
	"MESH_VELOCITY":     MeshVelocity,
	"MESH_REACTION":     MeshReaction,
}

var scalars = map[Variable]bool{
	Pressure: true, ReactionWater: true, Density: true, Viscosity: true,
	NodalArea: true, PartitionIndex: true,
}

// VectorByName looks up a vector variable such as "VELOCITY".
func VectorByName(name string) (Vector, bool) {
	v, ok := vectors[name]
	return v, ok
}

// VariableByName looks up a scalar variable or a vector component.
func VariableByName(name string) (Variable, bool) {
	v := Variable(name)
	if scalars[v] {
		return v, true
	}
	for _, vec := range vectors {
		for _, c := range vec {
			if c == v {
				return v, true
			}
		}
	}
	return "", false
}
