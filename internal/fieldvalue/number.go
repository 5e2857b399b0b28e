// Package fieldvalue binds form values to record attributes.
package fieldvalue

import (
	"math"
	"strconv"
	"strings"
)

// Attribute reads and writes one attribute of a record. Get reports false
// when the record or the attribute is absent; Set(nil) clears the attribute.
// A nil Set makes the attribute read-only.
type Attribute[T any] struct {
	Get func() (T, bool)
	Set func(v *T)
}

func (a *Attribute[T]) get() (T, bool) {
	if a == nil || a.Get == nil {
		var zero T
		return zero, false
	}
	return a.Get()
}

func (a *Attribute[T]) set(v *T) {
	if a == nil || a.Set == nil {
		return
	}
	a.Set(v)
}

// NumberField exposes a stored number scaled by a precision.
//
// With a precision attribute the stored value is an integer and the precision
// says how many places to shift it: value 123 with precision 2 reads as 1.23.
// Writing 1.2 stores value 12 and precision 1. Without one, the fixed
// Precision (default 0) is used both ways and never changes.
type NumberField struct {
	Value         Attribute[float64]
	PrecisionAttr *Attribute[int]
	Precision     *int
	Manual        *Attribute[bool]
	// Places is the number of decimal places the field should offer.
	Places *int
}

func (f *NumberField) currentPrecision() int {
	if f.Precision != nil {
		return *f.Precision
	}
	if p, ok := f.PrecisionAttr.get(); ok {
		return p
	}
	return 0
}

// Get returns the scaled value, or nil when nothing is stored.
func (f *NumberField) Get() *float64 {
	raw, ok := f.Value.get()
	if !ok {
		return nil
	}
	v := clean(raw / math.Pow10(f.currentPrecision()))
	return &v
}

// Set stores v and marks the value as entered manually. A nil v clears it.
func (f *NumberField) Set(v *float64) {
	var multiplier float64

	if f.PrecisionAttr != nil {
		if v == nil {
			f.PrecisionAttr.set(nil)
			multiplier = 1
		} else {
			p := Precision(*v)
			f.PrecisionAttr.set(&p)
			multiplier = math.Pow10(p)
		}
	} else {
		multiplier = math.Pow10(f.currentPrecision())
	}

	if v == nil {
		f.Value.set(nil)
	} else {
		stored := clean(*v * multiplier)
		f.Value.set(&stored)
	}
	f.SetManual(true)
}

// DecimalPlaces never hides digits the current precision needs.
func (f *NumberField) DecimalPlaces() int {
	p := f.currentPrecision()
	want := p
	if f.Places != nil {
		want = *f.Places
	}
	return max(p, want)
}

func (f *NumberField) IsManual() bool {
	m, ok := f.Manual.get()
	return ok && m
}

func (f *NumberField) SetManual(m bool) {
	f.Manual.set(&m)
}

// Precision returns the number of decimal places needed to write v:
// 1.23 has 2, 1 has 0.
func Precision(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if _, frac, ok := strings.Cut(s, "."); ok {
		return len(frac)
	}
	return 0
}

// clean drops binary floating point noise such as 1.23*100 = 123.00000000000001.
func clean(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	const scale = 1e9
	r := math.Round(v*scale) / scale
	if math.IsInf(r, 0) {
		return v
	}
	return r
}
