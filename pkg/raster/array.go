package raster

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDeferred is returned when materialised values are requested from a deferred array.
	ErrDeferred = errors.New("array is deferred; call Compute first")

	// ErrShape is returned when arrays that must line up do not share a shape.
	ErrShape = errors.New("array shapes do not match")
)

// Shape is the (time, y, x) extent of an array.
type Shape struct {
	T, Y, X int
}

// Frame returns the number of pixels in one time step.
func (s Shape) Frame() int { return s.Y * s.X }

// Len returns the total number of elements.
func (s Shape) Len() int { return s.T * s.Y * s.X }

func (s Shape) String() string { return fmt.Sprintf("(%d, %d, %d)", s.T, s.Y, s.X) }

// Array is a time-major (t, y, x) grid of values that is either materialised or deferred.
// A deferred array holds a thunk; operations on it build a new thunk and nothing runs until
// Compute is called. Operations on a materialised array run immediately. A thunk runs at
// most once; arrays derived from the same deferred input share its result.
type Array[T any] struct {
	shape Shape
	data  []T
	thunk func() ([]T, error)

	once sync.Once
	memo []T
	err  error
}

// Mask is a boolean array; true marks a usable pixel.
type Mask = Array[bool]

// NewArray wraps materialised values. len(data) must equal shape.Len().
func NewArray[T any](shape Shape, data []T) (*Array[T], error) {
	if len(data) != shape.Len() {
		return nil, fmt.Errorf("%w: %d values for shape %s", ErrShape, len(data), shape)
	}
	return &Array[T]{shape: shape, data: data}, nil
}

// Full returns a materialised array with every element set to v.
func Full[T any](shape Shape, v T) *Array[T] {
	data := make([]T, shape.Len())
	for i := range data {
		data[i] = v
	}
	return &Array[T]{shape: shape, data: data}
}

// DeferredArray returns an array whose values are produced by fn on Compute.
func DeferredArray[T any](shape Shape, fn func() ([]T, error)) *Array[T] {
	return &Array[T]{shape: shape, thunk: fn}
}

// Shape returns the array extent.
func (a *Array[T]) Shape() Shape { return a.shape }

// Deferred reports whether the array still has to be computed.
func (a *Array[T]) Deferred() bool { return a.thunk != nil }

// Values returns the materialised values. It fails with ErrDeferred on a deferred array.
func (a *Array[T]) Values() ([]T, error) {
	if a.Deferred() {
		return nil, ErrDeferred
	}
	return a.data, nil
}

// Compute evaluates a deferred array. A materialised array is returned as is.
func (a *Array[T]) Compute() (*Array[T], error) {
	if !a.Deferred() {
		return a, nil
	}
	data, err := a.evaluate()
	if err != nil {
		return nil, err
	}
	return &Array[T]{shape: a.shape, data: data}, nil
}

func (a *Array[T]) evaluate() ([]T, error) {
	if !a.Deferred() {
		return a.data, nil
	}
	a.once.Do(func() {
		data, err := a.thunk()
		switch {
		case err != nil:
			a.err = err
		case len(data) != a.shape.Len():
			a.err = fmt.Errorf("%w: computed %d values for shape %s", ErrShape, len(data), a.shape)
		default:
			a.memo = data
		}
	})
	return a.memo, a.err
}

// Map applies fn element-wise.
func Map[T, U any](a *Array[T], fn func(T) U) *Array[U] {
	run := func() ([]U, error) {
		in, err := a.evaluate()
		if err != nil {
			return nil, err
		}
		out := make([]U, len(in))
		for i, v := range in {
			out[i] = fn(v)
		}
		return out, nil
	}
	if a.Deferred() {
		return DeferredArray(a.shape, run)
	}
	out, _ := run()
	return &Array[U]{shape: a.shape, data: out}
}

// Zip combines two arrays of the same shape element-wise. The result is deferred when
// either input is.
func Zip[A, B, U any](a *Array[A], b *Array[B], fn func(A, B) U) (*Array[U], error) {
	if a.shape != b.shape {
		return nil, fmt.Errorf("%w: %s vs %s", ErrShape, a.shape, b.shape)
	}
	run := func() ([]U, error) {
		av, err := a.evaluate()
		if err != nil {
			return nil, err
		}
		bv, err := b.evaluate()
		if err != nil {
			return nil, err
		}
		out := make([]U, len(av))
		for i := range av {
			out[i] = fn(av[i], bv[i])
		}
		return out, nil
	}
	if a.Deferred() || b.Deferred() {
		return DeferredArray(a.shape, run), nil
	}
	out, err := run()
	if err != nil {
		return nil, err
	}
	return &Array[U]{shape: a.shape, data: out}, nil
}

// Frames selects time steps by index, in the given order.
func (a *Array[T]) Frames(idx []int) (*Array[T], error) {
	for _, i := range idx {
		if i < 0 || i >= a.shape.T {
			return nil, fmt.Errorf("time index %d out of range [0, %d)", i, a.shape.T)
		}
	}
	shape := Shape{T: len(idx), Y: a.shape.Y, X: a.shape.X}
	frame := a.shape.Frame()
	run := func() ([]T, error) {
		in, err := a.evaluate()
		if err != nil {
			return nil, err
		}
		out := make([]T, 0, shape.Len())
		for _, i := range idx {
			out = append(out, in[i*frame:(i+1)*frame]...)
		}
		return out, nil
	}
	if a.Deferred() {
		return DeferredArray(shape, run), nil
	}
	out, _ := run()
	return &Array[T]{shape: shape, data: out}, nil
}

// ConcatArrays joins arrays along the time axis in argument order.
func ConcatArrays[T any](arrays ...*Array[T]) (*Array[T], error) {
	if len(arrays) == 0 {
		return nil, errors.New("nothing to concatenate")
	}
	shape := arrays[0].shape
	shape.T = 0
	deferred := false
	for _, a := range arrays {
		if a.shape.Y != shape.Y || a.shape.X != shape.X {
			return nil, fmt.Errorf("%w: %s vs %s", ErrShape, arrays[0].shape, a.shape)
		}
		shape.T += a.shape.T
		deferred = deferred || a.Deferred()
	}
	run := func() ([]T, error) {
		out := make([]T, 0, shape.Len())
		for _, a := range arrays {
			v, err := a.evaluate()
			if err != nil {
				return nil, err
			}
			out = append(out, v...)
		}
		return out, nil
	}
	if deferred {
		return DeferredArray(shape, run), nil
	}
	out, err := run()
	if err != nil {
		return nil, err
	}
	return &Array[T]{shape: shape, data: out}, nil
}

// MaskAnd returns a mask that is true only where both inputs are true.
func MaskAnd(a, b *Mask) (*Mask, error) {
	return Zip(a, b, func(x, y bool) bool { return x && y })
}

// FrameCounts returns the number of true pixels in each time step of a materialised mask.
func FrameCounts(m *Mask) ([]int, error) {
	v, err := m.Values()
	if err != nil {
		return nil, err
	}
	frame := m.shape.Frame()
	counts := make([]int, m.shape.T)
	for t := range counts {
		for _, ok := range v[t*frame : (t+1)*frame] {
			if ok {
				counts[t]++
			}
		}
	}
	return counts, nil
}
