package httpclient

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusCodeRange is an inclusive range of HTTP status codes.
type StatusCodeRange struct {
	Min int
	Max int
}

// Contains reports whether code is within the range.
func (r StatusCodeRange) Contains(code int) bool {
	return code >= r.Min && code <= r.Max
}

// StatusCodeSet is a union of status code ranges, written as a comma list
// of codes and ranges such as "200-299,404". A nil set is empty.
type StatusCodeSet struct {
	ranges []StatusCodeRange
}

// ParseStatusCodes parses a status code list. Blank input yields a nil set.
func ParseStatusCodes(s string) (*StatusCodeSet, error) {
	var set StatusCodeSet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		set.ranges = append(set.ranges, r)
	}
	if len(set.ranges) == 0 {
		return nil, nil
	}
	return &set, nil
}

func parseRange(part string) (StatusCodeRange, error) {
	lo, hi, isRange := strings.Cut(part, "-")
	if !isRange {
		hi = lo
	}
	minCode, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return StatusCodeRange{}, fmt.Errorf("invalid status code %q: %w", part, err)
	}
	maxCode, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return StatusCodeRange{}, fmt.Errorf("invalid status code %q: %w", part, err)
	}
	switch {
	case minCode > maxCode:
		return StatusCodeRange{}, fmt.Errorf("invalid range %q: min > max", part)
	case minCode < 100 || maxCode > 599:
		return StatusCodeRange{}, fmt.Errorf("invalid HTTP status code %q: must be 100-599", part)
	}
	return StatusCodeRange{Min: minCode, Max: maxCode}, nil
}

// MustParseStatusCodes is ParseStatusCodes for constant input; it panics on error.
func MustParseStatusCodes(s string) *StatusCodeSet {
	set, err := ParseStatusCodes(s)
	if err != nil {
		panic(err)
	}
	return set
}

// Contains reports whether code is in the set.
func (s *StatusCodeSet) Contains(code int) bool {
	if s == nil {
		return false
	}
	for _, r := range s.ranges {
		if r.Contains(code) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the set matches nothing.
func (s *StatusCodeSet) IsEmpty() bool {
	return s == nil || len(s.ranges) == 0
}
