// Package raster holds the in-memory data model for time series of multi-band raster
// observations: lazily evaluated arrays, named variables and the Stack that ties them to a
// shared (time, y, x) coordinate system.
package raster

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

var (
	// ErrNoVariables is returned for a stack that carries no data variables.
	ErrNoVariables = errors.New("stack has no data variables")

	// ErrGridMismatch is returned when stacks with different spatial grids or variable
	// sets are combined.
	ErrGridMismatch = errors.New("stacks do not share a grid")
)

// Mode is the execution mode of a stack.
type Mode int

const (
	// Eager stacks hold materialised values.
	Eager Mode = iota
	// Deferred stacks hold computation graphs; nothing is read until Compute.
	Deferred
)

func (m Mode) String() string {
	if m == Deferred {
		return "deferred"
	}
	return "eager"
}

// Stack is a time series of co-registered raster variables. All variables share the
// stack's Times, Y and X coordinates. The mode is fixed when the stack is built and carried
// to every stack derived from it until Compute.
type Stack struct {
	Times []time.Time
	Y     []float64
	X     []float64
	Attrs Attrs

	mode Mode
	vars []*Variable
}

// NewStack builds a stack and checks every variable against the coordinates. An eager stack
// may not contain deferred variables.
func NewStack(mode Mode, times []time.Time, y, x []float64, attrs Attrs, vars ...*Variable) (*Stack, error) {
	s := &Stack{Times: times, Y: y, X: x, Attrs: attrs, mode: mode}
	for _, v := range vars {
		if err := s.check(v); err != nil {
			return nil, err
		}
		if s.index(v.Name) >= 0 {
			return nil, fmt.Errorf("duplicate variable %q", v.Name)
		}
		s.vars = append(s.vars, v)
	}
	return s, nil
}

func (s *Stack) check(v *Variable) error {
	if v.DType == String {
		if len(v.Labels) != len(s.Times) {
			return fmt.Errorf("%w: variable %s has %d labels for %d time steps", ErrShape, v.Name, len(v.Labels), len(s.Times))
		}
		return nil
	}
	if v.Data == nil {
		return fmt.Errorf("variable %s has no data", v.Name)
	}
	if v.Data.Shape() != s.Shape() {
		return fmt.Errorf("%w: variable %s is %s, stack is %s", ErrShape, v.Name, v.Data.Shape(), s.Shape())
	}
	if s.mode == Eager && v.Deferred() {
		return fmt.Errorf("variable %s is deferred in an eager stack", v.Name)
	}
	return nil
}

func (s *Stack) index(name string) int {
	for i, v := range s.vars {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// Mode returns the stack's execution mode.
func (s *Stack) Mode() Mode { return s.mode }

// Len returns the number of time steps.
func (s *Stack) Len() int { return len(s.Times) }

// Shape returns the (time, y, x) extent shared by every numeric variable.
func (s *Stack) Shape() Shape {
	return Shape{T: len(s.Times), Y: len(s.Y), X: len(s.X)}
}

// Vars returns the variables in insertion order.
func (s *Stack) Vars() []*Variable {
	return slices.Clone(s.vars)
}

// Names returns variable names in insertion order.
func (s *Stack) Names() []string {
	names := make([]string, len(s.vars))
	for i, v := range s.vars {
		names[i] = v.Name
	}
	return names
}

// Var looks a variable up by name.
func (s *Stack) Var(name string) (*Variable, bool) {
	i := s.index(name)
	if i < 0 {
		return nil, false
	}
	return s.vars[i], true
}

// Validate fails with ErrNoVariables when the stack has no data variables.
func (s *Stack) Validate() error {
	if len(s.vars) == 0 {
		return ErrNoVariables
	}
	return nil
}

// Empty reports whether the stack has nothing usable: no variables, no time steps or no
// spatial extent.
func (s *Stack) Empty() bool {
	return len(s.vars) == 0 || len(s.Times) == 0 || len(s.Y) == 0 || len(s.X) == 0
}

// WithVariable returns a copy of the stack with v added, or replacing the variable of the
// same name in place.
func (s *Stack) WithVariable(v *Variable) (*Stack, error) {
	if err := s.check(v); err != nil {
		return nil, err
	}
	out := s.shallow()
	if i := out.index(v.Name); i >= 0 {
		out.vars[i] = v
	} else {
		out.vars = append(out.vars, v)
	}
	return out, nil
}

// MapVariables returns a copy of the stack with fn applied to every variable.
func (s *Stack) MapVariables(fn func(*Variable) (*Variable, error)) (*Stack, error) {
	out := s.shallow()
	for i, v := range out.vars {
		nv, err := fn(v)
		if err != nil {
			return nil, err
		}
		if err := out.check(nv); err != nil {
			return nil, err
		}
		out.vars[i] = nv
	}
	return out, nil
}

func (s *Stack) shallow() *Stack {
	out := *s
	out.vars = slices.Clone(s.vars)
	return &out
}

// Isel selects time steps by index, in the given order.
func (s *Stack) Isel(idx []int) (*Stack, error) {
	out := s.shallow()
	out.Times = make([]time.Time, len(idx))
	for i, t := range idx {
		if t < 0 || t >= len(s.Times) {
			return nil, fmt.Errorf("time index %d out of range [0, %d)", t, len(s.Times))
		}
		out.Times[i] = s.Times[t]
	}
	for i, v := range s.vars {
		nv, err := v.frames(idx)
		if err != nil {
			return nil, err
		}
		out.vars[i] = nv
	}
	return out, nil
}

// SortByTime returns the stack ordered by ascending time. The sort is stable, so equal
// timestamps keep their relative order.
func (s *Stack) SortByTime() (*Stack, error) {
	idx := make([]int, len(s.Times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.Times[idx[a]].Before(s.Times[idx[b]])
	})
	return s.Isel(idx)
}

// Compute evaluates every deferred variable and returns an eager stack.
func (s *Stack) Compute() (*Stack, error) {
	out := s.shallow()
	out.mode = Eager
	for i, v := range s.vars {
		nv, err := v.compute()
		if err != nil {
			return nil, err
		}
		out.vars[i] = nv
	}
	return out, nil
}

// Concat joins stacks along the time axis in argument order. Every stack must share the
// spatial grid and variable set of the first. Variables whose dtypes differ are promoted to
// a common dtype. The result is deferred if any input is deferred.
func Concat(stacks ...*Stack) (*Stack, error) {
	if len(stacks) == 0 {
		return nil, errors.New("nothing to concatenate")
	}
	first := stacks[0]
	mode := Eager
	var times []time.Time
	for _, st := range stacks {
		if !slices.Equal(st.Y, first.Y) || !slices.Equal(st.X, first.X) {
			return nil, fmt.Errorf("%w: spatial coordinates differ", ErrGridMismatch)
		}
		if len(st.vars) != len(first.vars) {
			return nil, fmt.Errorf("%w: variables %v vs %v", ErrGridMismatch, first.Names(), st.Names())
		}
		if st.mode == Deferred {
			mode = Deferred
		}
		times = append(times, st.Times...)
	}

	vars := make([]*Variable, 0, len(first.vars))
	for _, fv := range first.vars {
		parts := make([]*Variable, len(stacks))
		dtype := fv.DType
		for i, st := range stacks {
			v, ok := st.Var(fv.Name)
			if !ok {
				return nil, fmt.Errorf("%w: variable %s missing", ErrGridMismatch, fv.Name)
			}
			parts[i] = v
			dtype = Promote(dtype, v.DType)
		}
		v, err := concatVariable(fv, parts, dtype)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return NewStack(mode, times, first.Y, first.X, first.Attrs.Clone(), vars...)
}

func concatVariable(proto *Variable, parts []*Variable, dtype DType) (*Variable, error) {
	out := &Variable{Name: proto.Name, DType: dtype, Attrs: proto.Attrs.Clone()}
	if dtype == String {
		for _, p := range parts {
			if p.DType != String {
				return nil, fmt.Errorf("%w: variable %s mixes string and numeric data", ErrGridMismatch, proto.Name)
			}
			out.Labels = append(out.Labels, p.Labels...)
		}
		return out, nil
	}
	arrays := make([]*Array[float64], len(parts))
	for i, p := range parts {
		cast, err := p.AsType(dtype)
		if err != nil {
			return nil, err
		}
		arrays[i] = cast.Data
	}
	data, err := ConcatArrays(arrays...)
	if err != nil {
		return nil, fmt.Errorf("concatenating %s: %w", proto.Name, err)
	}
	out.Data = data
	return out, nil
}
