package raster

import (
	"fmt"
	"math"
)

// Attrs is the metadata attached to a variable or stack (units, nodata, labels, crs).
type Attrs map[string]any

// Clone returns a shallow copy. A nil receiver yields nil.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Nodata returns the declared nodata sentinel, if any.
func (a Attrs) Nodata() (float64, bool) {
	switch v := a["nodata"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	}
	return 0, false
}

// Units returns the "units" attribute or an empty string.
func (a Attrs) Units() string {
	s, _ := a["units"].(string)
	return s
}

// Variable is one named measurement of a stack. Numeric variables hold (time, y, x) data;
// String variables hold one label per time step.
type Variable struct {
	Name   string
	DType  DType
	Attrs  Attrs
	Data   *Array[float64]
	Labels []string
}

// NewVariable builds a numeric variable. Values are not converted; callers supply data that
// already fits dtype.
func NewVariable(name string, dtype DType, data *Array[float64], attrs Attrs) *Variable {
	return &Variable{Name: name, DType: dtype, Attrs: attrs, Data: data}
}

// NewLabelVariable builds a String variable with one label per time step.
func NewLabelVariable(name string, labels []string, attrs Attrs) *Variable {
	return &Variable{Name: name, DType: String, Attrs: attrs, Labels: labels}
}

// Len returns the number of time steps.
func (v *Variable) Len() int {
	if v.DType == String {
		return len(v.Labels)
	}
	return v.Data.Shape().T
}

// Deferred reports whether the variable's data is still a computation graph.
func (v *Variable) Deferred() bool {
	return v.Data != nil && v.Data.Deferred()
}

// AsType converts the variable's values to dtype. It is the bare cast primitive: the
// returned variable carries no attributes.
func (v *Variable) AsType(dtype DType) (*Variable, error) {
	if !v.DType.IsNumeric() || !dtype.IsNumeric() {
		if v.DType == dtype {
			return &Variable{Name: v.Name, DType: v.DType, Labels: v.Labels}, nil
		}
		return nil, fmt.Errorf("%w: %s %s -> %s", ErrUncastable, v.Name, v.DType, dtype)
	}
	if v.DType == dtype {
		return &Variable{Name: v.Name, DType: dtype, Data: v.Data}, nil
	}
	return &Variable{Name: v.Name, DType: dtype, Data: Map(v.Data, dtype.Convert)}, nil
}

// Where keeps pixels where m is true and replaces the rest with NaN. Integer variables are
// widened to Float64 to make room for NaN. String variables are returned unchanged.
func (v *Variable) Where(m *Mask) (*Variable, error) {
	if v.DType == String {
		return v, nil
	}
	data, err := Zip(v.Data, m, func(x float64, ok bool) float64 {
		if ok {
			return x
		}
		return math.NaN()
	})
	if err != nil {
		return nil, fmt.Errorf("masking %s: %w", v.Name, err)
	}
	dtype := v.DType
	if !dtype.IsFloat() {
		dtype = Float64
	}
	return &Variable{Name: v.Name, DType: dtype, Attrs: v.Attrs.Clone(), Data: data}, nil
}

func (v *Variable) frames(idx []int) (*Variable, error) {
	out := *v
	if v.DType == String {
		out.Labels = make([]string, len(idx))
		for i, t := range idx {
			if t < 0 || t >= len(v.Labels) {
				return nil, fmt.Errorf("time index %d out of range [0, %d)", t, len(v.Labels))
			}
			out.Labels[i] = v.Labels[t]
		}
		return &out, nil
	}
	data, err := v.Data.Frames(idx)
	if err != nil {
		return nil, err
	}
	out.Data = data
	return &out, nil
}

func (v *Variable) compute() (*Variable, error) {
	if !v.Deferred() {
		return v, nil
	}
	data, err := v.Data.Compute()
	if err != nil {
		return nil, fmt.Errorf("computing %s: %w", v.Name, err)
	}
	out := *v
	out.Data = data
	return &out, nil
}
