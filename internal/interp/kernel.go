// Package interp builds the sparse sensor-to-vertex interpolation operator from
// surface-constrained distances.
package interp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownKernel is returned when a kernel name is not recognised.
var ErrUnknownKernel = errors.New("unknown interpolation kernel")

// Kernel selects the weighting function applied to normalised distance.
type Kernel int

// Each kernel is a function of r, the path distance over the cancel distance.
// The inverse kernels fall off steeply; none of them is 1-r.
const (
	KernelLinear   Kernel = iota // 1/(eps+r)
	KernelSquare                 // 1/(eps+r^2)
	KernelCubic                  // 1/(eps+r^3)
	KernelGaussian               // exp(-r^2/(2*sigma^2)), sigma 0.5
)

// DefaultKernel is used when no kernel has been configured.
const DefaultKernel = KernelLinear

const (
	// kernelEpsilon keeps the inverse kernels finite at distance zero.
	kernelEpsilon = 1e-2
	gaussianSigma = 0.5
)

var kernelNames = map[Kernel]string{
	KernelLinear:   "linear",
	KernelSquare:   "square",
	KernelCubic:    "cubic",
	KernelGaussian: "gaussian",
}

// ParseKernel resolves a kernel name. Matching is case-insensitive.
func ParseKernel(name string) (Kernel, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k, kn := range kernelNames {
		if kn == n {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownKernel, name, strings.Join(Kernels(), ", "))
}

func (k Kernel) String() string {
	if n, ok := kernelNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kernel(%d)", int(k))
}

// Func returns the weight function for k. The argument is the path distance
// divided by the cancel distance, so it lies in [0, 1] for any vertex the
// distance field reports.
func (k Kernel) Func() func(r float64) float64 {
	switch k {
	case KernelSquare:
		return func(r float64) float64 { return 1 / (kernelEpsilon + r*r) }
	case KernelCubic:
		return func(r float64) float64 { return 1 / (kernelEpsilon + r*r*r) }
	case KernelGaussian:
		return func(r float64) float64 { return math.Exp(-r * r / (2 * gaussianSigma * gaussianSigma)) }
	default:
		return func(r float64) float64 { return 1 / (kernelEpsilon + r) }
	}
}

// Kernels lists every supported kernel name.
func Kernels() []string {
	return []string{"linear", "square", "cubic", "gaussian"}
}
