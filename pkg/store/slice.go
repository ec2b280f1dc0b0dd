package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a half-open [Start, Stop) along one axis. Stop < 0 means
// "to the end of the axis".
type Range struct {
	Start int
	Stop  int
}

// Slice is one Range per leading axis. Trailing axes it does not name
// are taken whole.
type Slice []Range

// ParseSlice reads "a:b,c:d,..." as one range per axis. Either side of
// a range may be empty: ":" takes the whole axis, "a:" runs to the
// end, ":b" starts at zero.
func ParseSlice(expr string) (Slice, error) {
	if expr == "" {
		return nil, nil
	}

	slice := Slice{}
	for _, part := range strings.Split(expr, ",") {
		lo, hi, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("%w: range %q has no colon", ErrOutOfRange, part)
		}

		r := Range{Start: 0, Stop: -1}
		if lo != "" {
			start, err := strconv.Atoi(lo)
			if err != nil || start < 0 {
				return nil, fmt.Errorf("%w: range %q", ErrOutOfRange, part)
			}
			r.Start = start
		}
		if hi != "" {
			stop, err := strconv.Atoi(hi)
			if err != nil || stop < 0 {
				return nil, fmt.Errorf("%w: range %q", ErrOutOfRange, part)
			}
			r.Stop = stop
		}
		slice = append(slice, r)
	}
	return slice, nil
}

// Cut extracts the slice from row-major data of the given shape,
// reporting the extracted block's shape.
func (s Slice) Cut(data []byte, shape []int) ([]byte, []int, error) {
	if len(shape) < len(s) {
		return nil, nil, fmt.Errorf(
			"%w: %d ranges against rank %d", ErrOutOfRange, len(s), len(shape),
		)
	}

	// normalize to one resolved range per axis
	ranges := make([]Range, len(shape))
	for axis, dim := range shape {
		r := Range{Start: 0, Stop: dim}
		if axis < len(s) {
			r = s[axis]
			if r.Stop < 0 {
				r.Stop = dim
			}
		}
		if r.Stop < r.Start || dim < r.Stop {
			return nil, nil, fmt.Errorf(
				"%w: range %d:%d on axis %d of %d", ErrOutOfRange, r.Start, r.Stop, axis, dim,
			)
		}
		ranges[axis] = r
	}

	outShape := make([]int, len(shape))
	outSize := 1
	for axis, r := range ranges {
		outShape[axis] = r.Stop - r.Start
		outSize *= outShape[axis]
	}

	out := make([]byte, 0, outSize)
	if outSize == 0 {
		return out, outShape, nil
	}

	// strides of the source array, in elements
	strides := make([]int, len(shape))
	strides[len(shape)-1] = 1
	for axis := len(shape) - 2; 0 <= axis; axis-- {
		strides[axis] = strides[axis+1] * shape[axis+1]
	}

	// walk every index combination of the outer axes and copy the
	// contiguous innermost run
	last := len(shape) - 1
	index := make([]int, last)
	for axis := range index {
		index[axis] = ranges[axis].Start
	}
	for {
		base := 0
		for axis, i := range index {
			base += i * strides[axis]
		}
		out = append(out, data[base+ranges[last].Start:base+ranges[last].Stop]...)

		axis := last - 1
		for ; 0 <= axis; axis-- {
			index[axis]++
			if index[axis] < ranges[axis].Stop {
				break
			}
			index[axis] = ranges[axis].Start
		}
		if axis < 0 {
			break
		}
	}
	return out, outShape, nil
}

// FormatShape renders a shape as "a,b,c" for the X-Array-Shape header.
func FormatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// ParseShape reads an X-Array-Shape header back into a shape.
func ParseShape(header string) ([]int, error) {
	if header == "" {
		return nil, fmt.Errorf("%w: empty shape", ErrOutOfRange)
	}
	parts := strings.Split(header, ",")
	shape := make([]int, len(parts))
	for i, part := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%w: shape %q", ErrOutOfRange, header)
		}
		shape[i] = d
	}
	return shape, nil
}
