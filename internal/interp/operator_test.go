package interp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func buildLine(t *testing.T, projection []int, cancel float64, bad []bool) *Operator {
	t.Helper()
	field, err := BuildDistanceField(context.Background(), lineSurface(), projection, cancel)
	require.NoError(t, err)
	op, err := BuildOperator(field, KernelLinear, bad)
	require.NoError(t, err)
	return op
}

func TestOperatorSingleSensorFullWeight(t *testing.T) {
	op := buildLine(t, []int{0}, 10, nil)

	r, c := op.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 1, c)
	for v := 0; v < 4; v++ {
		assert.Equal(t, 1.0, op.At(v, 0), "vertex %d", v)
	}
}

func TestOperatorNoCrossContamination(t *testing.T) {
	op := buildLine(t, []int{0, 3}, 1.5, nil)

	want := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
	})
	assert.True(t, mat.Equal(want, op.Dense()), "got\n%v", mat.Formatted(op.Dense()))
	assert.Equal(t, 4, op.NNZ())
}

func TestOperatorRowsNormalised(t *testing.T) {
	surface := gridSurface(15, 15, 0.005, 11)
	projection := []int{0, 14, 112, 210, 224, 60}
	field, err := BuildDistanceField(context.Background(), surface, projection, 0.03)
	require.NoError(t, err)

	for _, k := range []Kernel{KernelLinear, KernelSquare, KernelCubic, KernelGaussian} {
		op, err := BuildOperator(field, k, nil)
		require.NoError(t, err)
		for v := 0; v < surface.NumVertices(); v++ {
			_, w := op.Row(v)
			if len(field.At(v)) == 0 {
				assert.True(t, op.EmptyRow(v), "kernel %s vertex %d should be empty", k, v)
				continue
			}
			assert.InDelta(t, 1.0, floats.Sum(w), 1e-12, "kernel %s vertex %d", k, v)
			for _, x := range w {
				assert.True(t, x > 0 && !math.IsInf(x, 0), "kernel %s vertex %d weight %v", k, v, x)
			}
		}
	}
}

func TestOperatorCloserSensorWeighsMore(t *testing.T) {
	// Vertex 1 is 1 from sensor 0 and 2 from sensor 1.
	field, err := BuildDistanceField(context.Background(), lineSurface(), []int{0, 3}, 3)
	require.NoError(t, err)
	op, err := BuildOperator(field, KernelLinear, nil)
	require.NoError(t, err)

	assert.Greater(t, op.At(1, 0), op.At(1, 1))
	assert.Greater(t, op.At(2, 1), op.At(2, 0))
	assert.Equal(t, 1.0, op.At(0, 0))
	assert.Equal(t, 0.0, op.At(0, 1))
}

func TestOperatorBadChannelsRenormalise(t *testing.T) {
	field, err := BuildDistanceField(context.Background(), lineSurface(), []int{0, 3}, 3)
	require.NoError(t, err)

	op, err := BuildOperator(field, KernelLinear, []bool{false, true})
	require.NoError(t, err)
	for v := 0; v < 4; v++ {
		assert.Equal(t, 1.0, op.At(v, 0), "vertex %d", v)
		assert.Equal(t, 0.0, op.At(v, 1), "vertex %d", v)
	}

	// All sensors bad: every row is empty.
	op, err = BuildOperator(field, KernelLinear, []bool{true, true})
	require.NoError(t, err)
	for v := 0; v < 4; v++ {
		assert.True(t, op.EmptyRow(v))
	}
	_, c := op.Dims()
	assert.Equal(t, 2, c, "bad channels keep their column")
}

func TestOperatorColocatedSensorsShareWeight(t *testing.T) {
	op := buildLine(t, []int{1, 1, 3}, 10, nil)
	assert.InDelta(t, 0.5, op.At(1, 0), 1e-15)
	assert.InDelta(t, 0.5, op.At(1, 1), 1e-15)
	assert.Equal(t, 0.0, op.At(1, 2))
}

func TestOperatorIdempotent(t *testing.T) {
	surface := gridSurface(8, 8, 0.01, 5)
	field, err := BuildDistanceField(context.Background(), surface, []int{0, 9, 40, 63}, 0.05)
	require.NoError(t, err)

	a, err := BuildOperator(field, KernelGaussian, []bool{false, false, true})
	require.NoError(t, err)
	b, err := BuildOperator(field, KernelGaussian, []bool{false, false, true})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, mat.Equal(a.Dense(), b.Dense()))
}

func TestOperatorApply(t *testing.T) {
	op := buildLine(t, []int{0, 3}, 1.5, nil)

	out, err := op.Apply(mat.NewVecDense(2, []float64{2, -4}))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, -4, -4}, out.RawVector().Data)

	_, err = op.Apply(mat.NewVecDense(3, nil))
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	err = op.MulVecTo(make([]float64, 3), []float64{1, 2})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	// The operator satisfies mat.Matrix, so gonum products work directly.
	var prod mat.Dense
	prod.Mul(op, mat.NewDense(2, 1, []float64{1, 1}))
	assert.Equal(t, 1.0, prod.At(3, 0))
	assert.Equal(t, 4, op.T().(mat.Transpose).Matrix.(*Operator).rows)
}

func TestBuildOperatorRejectsUnknownKernel(t *testing.T) {
	field, err := BuildDistanceField(context.Background(), lineSurface(), []int{0}, 1)
	require.NoError(t, err)
	_, err = BuildOperator(field, Kernel(42), nil)
	assert.ErrorIs(t, err, ErrUnknownKernel)
	_, err = BuildOperator(nil, KernelLinear, nil)
	assert.Error(t, err)
}
