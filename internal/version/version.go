// Package version models Envoy release families. A family is the major.minor
// pair of a release; point releases within a family are interchangeable for
// compatibility testing and collapse into one entry.
package version

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Version identifies a release family by its major and minor components.
type Version struct {
	Major uint64
	Minor uint64
}

// Parse extracts the release family from a raw catalog tag. Tags that are not
// versions ("latest", "dev") and tags carrying a suffix (v1.21.0-rc1, the
// v1.21-latest convenience tags) are rejected: only final point releases
// define a family.
func Parse(tag string) (Version, error) {
	sv, err := semver.NewVersion(tag)
	if err != nil {
		return Version{}, fmt.Errorf("tag %q is not a release version: %w", tag, err)
	}
	if sv.Prerelease() != "" {
		return Version{}, fmt.Errorf("tag %q carries a pre-release suffix", tag)
	}
	return Version{Major: sv.Major(), Minor: sv.Minor()}, nil
}

// MustParse is Parse for statically known versions, panicking on error.
func MustParse(tag string) Version {
	v, err := Parse(tag)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
}

// Compare orders families numerically on (major, minor): it returns a
// negative value if v is older than o, zero if equal, positive if newer.
// Numeric comparison makes v1.10 newer than v1.9.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		if v.Major < o.Major {
			return -1
		}
		return 1
	}
	if v.Minor != o.Minor {
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	}
	return 0
}

func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

func (v Version) Older(o Version) bool {
	return v.Compare(o) < 0
}

// Families collapses raw catalog tags into a deduplicated list of release
// families ordered newest first. Unparsable and suffixed tags are dropped.
func Families(tags []string) []Version {
	seen := make(map[Version]struct{}, len(tags))
	families := make([]Version, 0, len(tags))

	for _, tag := range tags {
		v, err := Parse(tag)
		if err != nil {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		families = append(families, v)
	}

	sort.Slice(families, func(i, j int) bool {
		return families[i].Compare(families[j]) > 0
	})
	return families
}
