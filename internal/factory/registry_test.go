package factory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/femstage/internal/params"
)

type widget struct {
	kind string
	size int
}

type buildArgs struct {
	owner string
}

func newTestRegistry(calls *int) *Registry[*widget, buildArgs] {
	r := NewRegistry[*widget, buildArgs]("widget", "widget_type")
	schema := params.MustSchema(`{"widget_type": "round", "size": 1}`)

	r.Register("round", schema, func(s *params.Parameters, a buildArgs) (*widget, error) {
		*calls++
		return &widget{kind: "round", size: s.Int("size")}, nil
	})
	r.Register("square", schema, func(s *params.Parameters, a buildArgs) (*widget, error) {
		*calls++
		return nil, errors.New("square widgets are out of stock")
	})
	r.Alias("circle", "round")
	return r
}

func TestCreateDispatchesOnDiscriminator(t *testing.T) {
	var calls int
	r := newTestRegistry(&calls)

	w, err := r.Create(params.MustParse(`{"widget_type": "round", "size": 4}`), buildArgs{owner: "test"})
	require.NoError(t, err)
	assert.Equal(t, "round", w.kind)
	assert.Equal(t, 4, w.size)

	w, err = r.Create(params.MustParse(`{"widget_type": "circle"}`), buildArgs{})
	require.NoError(t, err)
	assert.Equal(t, "round", w.kind)
	assert.Equal(t, 2, calls)
}

func TestCreateUnknownKind(t *testing.T) {
	var calls int
	r := newTestRegistry(&calls)

	w, err := r.Create(params.MustParse(`{"widget_type": "hexagon"}`), buildArgs{})
	assert.Nil(t, w)
	assert.Zero(t, calls)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.ErrorIs(t, err, params.ErrConfiguration)
	assert.Contains(t, err.Error(), `"hexagon"`)

	var kindErr *KindError
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, []Kind{"round", "square"}, kindErr.Known)
}

func TestCreateMissingDiscriminator(t *testing.T) {
	var calls int
	r := newTestRegistry(&calls)

	_, err := r.Create(params.New(), buildArgs{})
	assert.ErrorIs(t, err, params.ErrConfiguration)

	_, err = r.Create(params.MustParse(`{"widget_type": 3}`), buildArgs{})
	assert.ErrorIs(t, err, params.ErrConfiguration)
	assert.Zero(t, calls)
}

func TestCreatePropagatesConstructorError(t *testing.T) {
	var calls int
	r := newTestRegistry(&calls)

	w, err := r.Create(params.MustParse(`{"widget_type": "square"}`), buildArgs{})
	assert.Nil(t, w)
	assert.ErrorContains(t, err, "out of stock")
	assert.ErrorContains(t, err, `create widget "square"`)
}

func TestRegisterTwicePanics(t *testing.T) {
	var calls int
	r := newTestRegistry(&calls)

	assert.Panics(t, func() {
		r.Register("round", params.Schema{}, nil)
	})
	assert.Panics(t, func() {
		r.Alias("ghost", "missing")
	})
}

func TestDefaults(t *testing.T) {
	var calls int
	r := newTestRegistry(&calls)

	s, err := r.Defaults("circle")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Defaults.Int("size"))

	_, err = r.Defaults("hexagon")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
