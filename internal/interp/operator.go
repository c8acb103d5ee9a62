package interp

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned when a vector does not match the operator.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Operator is an immutable sparse (vertices x sensors) weight matrix stored in
// compressed row form. Each row sums to one, or is empty when no good sensor
// reaches that vertex. It satisfies mat.Matrix.
type Operator struct {
	ID             uuid.UUID
	Kernel         Kernel
	CancelDistance float64
	BadChannels    []string

	rows, cols int
	rowPtr     []int
	colIdx     []int
	values     []float64
}

var _ mat.Matrix = (*Operator)(nil)

// Dims returns the number of vertices and sensors.
func (o *Operator) Dims() (r, c int) { return o.rows, o.cols }

// At returns the weight of sensor j at vertex i.
func (o *Operator) At(i, j int) float64 {
	if i < 0 || i >= o.rows || j < 0 || j >= o.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	for k := o.rowPtr[i]; k < o.rowPtr[i+1]; k++ {
		if o.colIdx[k] == j {
			return o.values[k]
		}
	}
	return 0
}

// T returns the implicit transpose.
func (o *Operator) T() mat.Matrix { return mat.Transpose{Matrix: o} }

// NNZ returns the number of stored weights.
func (o *Operator) NNZ() int { return len(o.values) }

// Row returns the sensor indices and weights of row i. The slices alias the
// operator's storage and must not be modified.
func (o *Operator) Row(i int) (cols []int, weights []float64) {
	lo, hi := o.rowPtr[i], o.rowPtr[i+1]
	return o.colIdx[lo:hi], o.values[lo:hi]
}

// EmptyRow reports whether vertex i receives no contribution.
func (o *Operator) EmptyRow(i int) bool { return o.rowPtr[i] == o.rowPtr[i+1] }

// MulVecTo writes o*x into dst. dst must have one element per vertex and x one
// element per sensor.
func (o *Operator) MulVecTo(dst, x []float64) error {
	if len(x) != o.cols {
		return fmt.Errorf("%w: frame has %d channels, operator expects %d", ErrDimensionMismatch, len(x), o.cols)
	}
	if len(dst) != o.rows {
		return fmt.Errorf("%w: output has %d vertices, operator produces %d", ErrDimensionMismatch, len(dst), o.rows)
	}
	for i := 0; i < o.rows; i++ {
		var sum float64
		for k := o.rowPtr[i]; k < o.rowPtr[i+1]; k++ {
			sum += o.values[k] * x[o.colIdx[k]]
		}
		dst[i] = sum
	}
	return nil
}

// Apply returns o*x as a new vector.
func (o *Operator) Apply(x mat.Vector) (*mat.VecDense, error) {
	if x.Len() != o.cols {
		return nil, fmt.Errorf("%w: frame has %d channels, operator expects %d", ErrDimensionMismatch, x.Len(), o.cols)
	}
	in := make([]float64, x.Len())
	for i := range in {
		in[i] = x.AtVec(i)
	}
	out := make([]float64, o.rows)
	if err := o.MulVecTo(out, in); err != nil {
		return nil, err
	}
	return mat.NewVecDense(o.rows, out), nil
}

// Dense expands the operator, mainly for inspection and tests.
func (o *Operator) Dense() *mat.Dense {
	d := mat.NewDense(o.rows, o.cols, nil)
	for i := 0; i < o.rows; i++ {
		for k := o.rowPtr[i]; k < o.rowPtr[i+1]; k++ {
			d.Set(i, o.colIdx[k], o.values[k])
		}
	}
	return d
}

// BuildOperator converts a distance field into normalised row weights.
// bad[s] excludes sensor s before normalisation; it may be nil or shorter than
// the sensor count, in which case missing entries count as good.
func BuildOperator(field *DistanceField, kernel Kernel, bad []bool) (*Operator, error) {
	if field == nil {
		return nil, errors.New("nil distance field")
	}
	if _, ok := kernelNames[kernel]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKernel, kernel)
	}
	isBad := func(s int) bool { return s < len(bad) && bad[s] }
	w := kernel.Func()

	rows := field.NumVertices()
	op := &Operator{
		ID:             uuid.New(),
		Kernel:         kernel,
		CancelDistance: field.CancelDistance,
		rows:           rows,
		cols:           field.NumSensors(),
		rowPtr:         make([]int, rows+1),
	}

	good := make([]Contribution, 0, 8)
	for v := 0; v < rows; v++ {
		good = good[:0]
		exact := 0
		for _, c := range field.At(v) {
			if isBad(c.Sensor) {
				continue
			}
			if c.Distance == 0 {
				exact++
			}
			good = append(good, c)
		}

		switch {
		case len(good) == 0:
		case exact > 0:
			// Sensors sitting on the vertex take all of the weight.
			for _, c := range good {
				if c.Distance == 0 {
					op.colIdx = append(op.colIdx, c.Sensor)
					op.values = append(op.values, 1/float64(exact))
				}
			}
		default:
			start := len(op.values)
			var sum float64
			for _, c := range good {
				r := 0.0
				if field.CancelDistance > 0 {
					r = c.Distance / field.CancelDistance
				}
				wt := w(r)
				op.colIdx = append(op.colIdx, c.Sensor)
				op.values = append(op.values, wt)
				sum += wt
			}
			for k := start; k < len(op.values); k++ {
				op.values[k] /= sum
			}
		}
		op.rowPtr[v+1] = len(op.values)
	}
	sortRows(op)
	return op, nil
}

// sortRows orders each row's entries by sensor index so that At and Row
// iterate in column order.
func sortRows(o *Operator) {
	for i := 0; i < o.rows; i++ {
		lo, hi := o.rowPtr[i], o.rowPtr[i+1]
		for a := lo + 1; a < hi; a++ {
			for b := a; b > lo && o.colIdx[b] < o.colIdx[b-1]; b-- {
				o.colIdx[b], o.colIdx[b-1] = o.colIdx[b-1], o.colIdx[b]
				o.values[b], o.values[b-1] = o.values[b-1], o.values[b]
			}
		}
	}
}
