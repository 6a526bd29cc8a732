package nodelock

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dotted numeric software version with two to four components
// (major.minor[.build[.revision]]). Components that were not given are
// undefined and compare lower than an explicit zero, so 1.2 < 1.2.0.
type Version struct {
	parts [4]int
	n     int
}

// NewVersion builds a version from two to four non-negative components.
func NewVersion(parts ...int) (Version, error) {
	if len(parts) < 2 || len(parts) > 4 {
		return Version{}, fmt.Errorf("%w: need 2 to 4 components, got %d", ErrInvalidVersion, len(parts))
	}
	var v Version
	for i, p := range parts {
		if p < 0 {
			return Version{}, fmt.Errorf("%w: negative component %d", ErrInvalidVersion, p)
		}
		v.parts[i] = p
	}
	v.n = len(parts)
	return v, nil
}

// ParseVersion parses dotted numeric text such as "1.2" or "3.0.1.7".
func ParseVersion(s string) (Version, error) {
	fields := strings.Split(strings.TrimSpace(s), ".")
	parts := make([]int, 0, len(fields))
	for _, f := range fields {
		if f == "" || strings.TrimLeft(f, "0123456789") != "" {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		p, err := strconv.Atoi(f)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		parts = append(parts, p)
	}
	return NewVersion(parts...)
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the first component.
func (v Version) Major() int { return v.parts[0] }

// Minor returns the second component.
func (v Version) Minor() int { return v.parts[1] }

// Components returns the defined components.
func (v Version) Components() []int {
	out := make([]int, v.n)
	copy(out, v.parts[:v.n])
	return out
}

// Compare returns -1, 0 or +1.
func (v Version) Compare(other Version) int {
	for i := 0; i < 4; i++ {
		a, b := v.component(i), other.component(i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

// String formats the version as dotted text with its defined components.
func (v Version) String() string {
	var sb strings.Builder
	for i := 0; i < v.n; i++ {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(v.parts[i]))
	}
	return sb.String()
}

func (v Version) component(i int) int {
	if i >= v.n {
		return -1
	}
	return v.parts[i]
}
