package versioning

import (
	"fmt"
	"regexp"
	"strconv"
)

// APIVersion is a semantic version of the HTTP API surface.
type APIVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// Current is the version this build serves.
var Current = APIVersion{Major: 1, Minor: 0, Patch: 0}

// MinSupported is the oldest version clients may still request.
var MinSupported = APIVersion{Major: 1, Minor: 0, Patch: 0}

func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 ordering v against other.
func (v APIVersion) Compare(other APIVersion) int {
	pairs := [][2]int{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}

// IsSupported reports whether a requested version falls inside the window
// this build serves: same major as Current and at least MinSupported.
func (v APIVersion) IsSupported() bool {
	return v.Major == Current.Major && v.Compare(MinSupported) >= 0 && v.Compare(Current) <= 0
}

var versionPattern = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?$`)

// Parse reads "1", "1.2", "1.2.3" or a "v"-prefixed form. Omitted parts
// default to zero.
func Parse(raw string) (APIVersion, error) {
	match := versionPattern.FindStringSubmatch(raw)
	if match == nil {
		return APIVersion{}, fmt.Errorf("invalid version %q", raw)
	}

	var v APIVersion
	v.Major, _ = strconv.Atoi(match[1])
	if match[2] != "" {
		v.Minor, _ = strconv.Atoi(match[2])
	}
	if match[3] != "" {
		v.Patch, _ = strconv.Atoi(match[3])
	}
	return v, nil
}
