package faidx

import (
	"fmt"
	"strconv"
	"strings"
)

// CoordinateMode selects how numbers in a region string are read.
type CoordinateMode int

const (
	// ZeroBased reads "name:start-end" as the half-open range [start, end).
	ZeroBased CoordinateMode = iota
	// OneBased reads "name:start-end" as the inclusive range [start, end],
	// as samtools does.
	OneBased
)

func (m CoordinateMode) String() string {
	if m == OneBased {
		return "one-based"
	}
	return "zero-based"
}

// Region is a resolved zero-based, half-open range of a record.
type Region struct {
	Name  string
	Start int64
	End   int64
}

// String formats the region in samtools (one-based, inclusive) notation.
func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Name, r.Start+1, r.End)
}

// Len returns the number of bases in the region.
func (r Region) Len() int64 {
	return max(r.End-r.Start, 0)
}

// SequenceLookup resolves record names to lengths. *Index implements it.
type SequenceLookup interface {
	SequenceLength(name string) (int64, bool)
}

// ParseRegion resolves "name", "name:pos", "name:start-end" or
// "name:start-" against lookup. Numbers may contain ',' separators. A name
// that itself contains ':' is matched whole before the string is split.
// Coordinates are checked for syntax only; bounds are left to the fetch.
func ParseRegion(lookup SequenceLookup, region string, mode CoordinateMode) (Region, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return Region{}, fmt.Errorf("%w: empty region", ErrInvalidRegion)
	}
	if length, ok := lookup.SequenceLength(region); ok {
		return Region{Name: region, Start: 0, End: length}, nil
	}

	i := strings.LastIndexByte(region, ':')
	if i < 0 {
		return Region{}, fmt.Errorf("%w: %w: %q", ErrInvalidRegion, ErrSequenceNotFound, region)
	}
	name, coords := region[:i], region[i+1:]
	length, ok := lookup.SequenceLength(name)
	if !ok {
		return Region{}, fmt.Errorf("%w: %w: %q", ErrInvalidRegion, ErrSequenceNotFound, name)
	}

	r := Region{Name: name}
	startStr, endStr, isRange := strings.Cut(strings.ReplaceAll(coords, ",", ""), "-")
	start, err := parseCoord(startStr)
	if err != nil {
		return Region{}, fmt.Errorf("%w: %q: start %w", ErrInvalidRegion, region, err)
	}

	switch {
	case !isRange:
		r.Start, r.End = start, start+1
	case endStr == "":
		r.Start, r.End = start, length
	default:
		end, err := parseCoord(endStr)
		if err != nil {
			return Region{}, fmt.Errorf("%w: %q: end %w", ErrInvalidRegion, region, err)
		}
		r.Start, r.End = start, end
	}

	if mode == OneBased {
		if start < 1 {
			return Region{}, fmt.Errorf("%w: %q: one-based positions start at 1", ErrInvalidRegion, region)
		}
		r.Start--
		if !isRange {
			r.End--
		}
	}
	return r, nil
}

func parseCoord(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("is missing")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return v, nil
}
