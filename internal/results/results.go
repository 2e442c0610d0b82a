// Package results holds the categorized key/value table extracted from exam
// documents.
package results

import "sort"

// Set maps category → test name → value string. The zero value is usable.
type Set map[string]map[string]string

// Clone returns a deep copy. Mutating the copy never affects the receiver.
func (s Set) Clone() Set {
	if s == nil {
		return Set{}
	}
	out := make(Set, len(s))
	for cat, tests := range s {
		c := make(map[string]string, len(tests))
		for k, v := range tests {
			c[k] = v
		}
		out[cat] = c
	}
	return out
}

// Merge folds incoming into the receiver and returns the merged copy.
// Incoming wins on conflicting leaf keys; keys present only in the receiver
// are preserved. Neither input is mutated.
func (s Set) Merge(incoming Set) Set {
	out := s.Clone()
	for cat, tests := range incoming {
		dst, ok := out[cat]
		if !ok {
			dst = make(map[string]string, len(tests))
			out[cat] = dst
		}
		for k, v := range tests {
			dst[k] = v
		}
	}
	return out
}

// SetCell returns a copy with one cell updated (or created).
func (s Set) SetCell(category, test, value string) Set {
	out := s.Clone()
	if _, ok := out[category]; !ok {
		out[category] = make(map[string]string, 1)
	}
	out[category][test] = value
	return out
}

// DeleteCell returns a copy with one cell removed; empty categories are
// dropped so the set never holds hollow groups.
func (s Set) DeleteCell(category, test string) Set {
	out := s.Clone()
	if tests, ok := out[category]; ok {
		delete(tests, test)
		if len(tests) == 0 {
			delete(out, category)
		}
	}
	return out
}

// Empty reports whether the set holds no values at all.
func (s Set) Empty() bool {
	for _, tests := range s {
		if len(tests) > 0 {
			return false
		}
	}
	return true
}

// Len counts leaf values across all categories.
func (s Set) Len() int {
	n := 0
	for _, tests := range s {
		n += len(tests)
	}
	return n
}

// Equal compares two sets by value.
func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for cat, tests := range s {
		ot, ok := other[cat]
		if !ok && len(tests) > 0 {
			return false
		}
		for k, v := range tests {
			if ov, ok := ot[k]; !ok || ov != v {
				return false
			}
		}
	}
	return true
}

// Categories returns the category names in sorted order, for stable rendering
// and export.
func (s Set) Categories() []string {
	out := make([]string, 0, len(s))
	for cat := range s {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Tests returns the test names of one category in sorted order.
func (s Set) Tests(category string) []string {
	tests := s[category]
	out := make([]string, 0, len(tests))
	for k := range tests {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
