package mdpa

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/femstage/internal/kernel"
)

const square = `
Begin ModelPartData
//  VARIABLE_NAME value
End ModelPartData

Begin Properties 1
    DENSITY   1000.0
    VISCOSITY 1e-3
End Properties

Begin Nodes
    1   0.0   0.0   0.0
    2   1.0   0.0   0.0
    3   1.0   1.0   0.0
    4   0.0   1.0   0.0
End Nodes

Begin Elements Element2D3N
    1   1   1 2 3
    2   1   1 3 4
End Elements

Begin Conditions WallCondition2D2N
    1   1   1 2
End Conditions

Begin NodalData VELOCITY_X
    1   1   0.0
    4   1   2.5
End NodalData

Begin SubModelPart Parts_Fluid
    Begin SubModelPartNodes
        1 2 3 4
    End SubModelPartNodes
    Begin SubModelPartElements
        1
        2
    End SubModelPartElements
    Begin SubModelPart Inlet
        Begin SubModelPartNodes
            1
            4
        End SubModelPartNodes
    End SubModelPart
End SubModelPart
`

func TestParseDocument(t *testing.T) {
	doc, err := Parse(strings.NewReader(square))
	require.NoError(t, err)

	assert.Len(t, doc.Nodes, 4)
	assert.Len(t, doc.Elements, 2)
	assert.Equal(t, "Element2D3N", doc.Elements[0].Name)
	assert.Equal(t, []int{1, 3, 4}, doc.Elements[1].Nodes)
	assert.Len(t, doc.Conditions, 1)
	assert.Equal(t, 1000.0, doc.Properties[0].Values["DENSITY"])
	require.Len(t, doc.Subs, 1)
	assert.Equal(t, []int{1, 2}, doc.Subs[0].Elements)
	require.Len(t, doc.Subs[0].Subs, 1)
	assert.Equal(t, "Inlet", doc.Subs[0].Subs[0].Name)
}

func TestPopulate(t *testing.T) {
	doc, err := Parse(strings.NewReader(square))
	require.NoError(t, err)

	model := kernel.NewModel()
	mp, _ := model.CreateModelPart("FluidModelPart", 3)
	mp.AddNodalSolutionStepVariable(kernel.VelocityX)
	require.NoError(t, doc.Populate(mp))

	assert.Equal(t, 4, mp.NumberOfNodes())
	assert.Equal(t, 2, mp.NumberOfElements())
	n, ok := mp.Node(4)
	require.True(t, ok)
	assert.Equal(t, 2.5, n.Value(kernel.VelocityX))
	assert.True(t, n.IsFixed(kernel.VelocityX))
	assert.Equal(t, 1e-3, mp.Properties(1).Value("VISCOSITY"))

	inlet, err := model.GetModelPart("FluidModelPart.Parts_Fluid.Inlet")
	require.NoError(t, err)
	assert.Equal(t, 2, inlet.NumberOfNodes())
}

func TestPopulateRequiresVariables(t *testing.T) {
	doc, err := Parse(strings.NewReader(square))
	require.NoError(t, err)

	mp, _ := kernel.NewModel().CreateModelPart("FluidModelPart", 3)
	err = doc.Populate(mp)
	assert.True(t, errors.Is(err, kernel.ErrUnknownVariable))
	assert.True(t, errors.Is(err, kernel.ErrEngine))
}

func TestPopulateNodesSubset(t *testing.T) {
	doc, err := Parse(strings.NewReader(square))
	require.NoError(t, err)

	mp, _ := kernel.NewModel().CreateModelPart("FluidModelPart", 3)
	mp.AddNodalSolutionStepVariable(kernel.VelocityX)
	require.NoError(t, doc.PopulateNodes(mp, map[int]bool{1: true, 2: true, 3: true}))

	assert.Equal(t, 3, mp.NumberOfNodes())
	assert.Equal(t, 1, mp.NumberOfElements())
	assert.Equal(t, 1, mp.NumberOfConditions())
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"unterminated": "Begin Nodes\n 1 0 0 0\n",
		"bad node":     "Begin Nodes\n 1 0 0\nEnd Nodes\n",
		"bad number":   "Begin Nodes\n 1 0 x 0\nEnd Nodes\n",
		"wrong end":    "Begin Nodes\nEnd Elements\n",
		"unknown":      "Begin Foo\nEnd Foo\n",
		"no begin":     "Nodes\n",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(text))
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}
