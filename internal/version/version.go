package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Relation describes how an installed version relates to a required one.
type Relation int

const (
	Older Relation = -1
	Equal Relation = 0
	Newer Relation = 1
)

func (r Relation) String() string {
	switch r {
	case Older:
		return "older"
	case Newer:
		return "newer"
	default:
		return "equal"
	}
}

// Compare reports whether installed is Older, Equal or Newer than required.
func Compare(installed, required string) Relation {
	iv, ierr := parseSemver(installed)
	rv, rerr := parseSemver(required)
	if ierr == nil && rerr == nil {
		return relationOf(iv.Compare(rv))
	}
	return relationOf(compareSegments(installed, required))
}

// Validate reports whether v can be used as a required runtime version:
// either a semantic version or dot-separated numbers such as 22.52.561.4.
func Validate(v string) error {
	if _, err := parseSemver(v); err == nil {
		return nil
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(v), "v")
	if trimmed == "" {
		return fmt.Errorf("empty version")
	}
	for i, seg := range strings.Split(trimmed, ".") {
		if _, err := strconv.ParseUint(seg, 10, 64); err != nil {
			return fmt.Errorf("invalid version %q: segment %d is %q", v, i+1, seg)
		}
	}
	return nil
}

// parseSemver strips a leading "v" and parses the version string.
func parseSemver(version string) (*semver.Version, error) {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	return semver.NewVersion(version)
}

// compareSegments orders dot-separated versions. Numeric segments compare
// numerically, anything else lexically. Missing trailing segments count as "0".
func compareSegments(a, b string) int {
	as := strings.Split(strings.TrimPrefix(strings.TrimSpace(a), "v"), ".")
	bs := strings.Split(strings.TrimPrefix(strings.TrimSpace(b), "v"), ".")

	n := max(len(as), len(bs))
	for i := 0; i < n; i++ {
		x, y := "0", "0"
		if i < len(as) && as[i] != "" {
			x = as[i]
		}
		if i < len(bs) && bs[i] != "" {
			y = bs[i]
		}

		xn, xerr := strconv.ParseUint(x, 10, 64)
		yn, yerr := strconv.ParseUint(y, 10, 64)
		switch {
		case xerr == nil && yerr == nil:
			if xn != yn {
				if xn < yn {
					return -1
				}
				return 1
			}
		default:
			if c := strings.Compare(x, y); c != 0 {
				return c
			}
		}
	}
	return 0
}

func relationOf(c int) Relation {
	switch {
	case c < 0:
		return Older
	case c > 0:
		return Newer
	default:
		return Equal
	}
}
