// Package semver layers release-increment rules on top of Masterminds/semver:
// increments touch only the trailing numeric version and keep any tag prefix.
package semver

import (
	"fmt"
	"regexp"
	"strings"

	msemver "github.com/Masterminds/semver/v3"
	"github.com/spf13/cast"
)

// Release keywords accepted as an increment request, in prompt order.
const (
	Patch   = "patch"
	Minor   = "minor"
	Major   = "major"
	Current = "current"
)

// Keywords lists the recognized increment keywords.
var Keywords = []string{Patch, Minor, Major, Current}

var (
	trailingVersion = regexp.MustCompile(`(\d+\.\d+\.\d+)$`)
	coercible       = regexp.MustCompile(`(\d{1,16})(?:\.(\d{1,16}))?(?:\.(\d{1,16}))?`)
)

// Increment is a free-form increment request: a keyword, an explicit version,
// empty (ask or default), or disabled (explicit "no bump").
type Increment struct {
	Value    string
	Disabled bool
}

// ParseIncrement interprets a configuration or flag value. A boolean false and
// the string "false" disable incrementing.
func ParseIncrement(v any) Increment {
	switch val := v.(type) {
	case nil:
		return Increment{}
	case Increment:
		return val
	case bool:
		return Increment{Disabled: !val}
	}
	s := strings.TrimSpace(cast.ToString(v))
	if strings.EqualFold(s, "false") {
		return Increment{Disabled: true}
	}
	return Increment{Value: s}
}

// IsZero reports whether no increment was requested.
func (i Increment) IsZero() bool {
	return !i.Disabled && i.Value == ""
}

// IsKeyword reports whether the request is one of Keywords.
func (i Increment) IsKeyword() bool {
	return !i.Disabled && IsKeyword(i.Value)
}

func (i Increment) String() string {
	if i.Disabled {
		return "false"
	}
	return i.Value
}

// IsKeyword reports whether s is a recognized increment keyword.
func IsKeyword(s string) bool {
	for _, k := range Keywords {
		if s == k {
			return true
		}
	}
	return false
}

// Valid reports whether s is a strict semantic version, allowing a leading "v".
func Valid(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := msemver.StrictNewVersion(strings.TrimPrefix(strings.TrimPrefix(s, "="), "v"))
	return err == nil
}

// GTE reports whether a >= b. Versions that cannot be read are coerced first;
// when b still cannot be read there is nothing to compare against and the
// result is true.
func GTE(a, b string) bool {
	av, ok := parseLoose(a)
	if !ok {
		return false
	}
	bv, ok := parseLoose(b)
	if !ok {
		return true
	}
	return av.Compare(bv) >= 0
}

func parseLoose(s string) (*msemver.Version, bool) {
	if v, err := msemver.NewVersion(strings.TrimSpace(s)); err == nil {
		return v, true
	}
	if coerced, ok := Coerce(s); ok {
		if v, err := msemver.NewVersion(coerced); err == nil {
			return v, true
		}
	}
	return nil, false
}

// Coerce extracts the first run of up to three dot-separated numbers from s and
// returns it as MAJOR.MINOR.PATCH, zero-filling missing parts.
func Coerce(s string) (string, bool) {
	m := coercible.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	parts := []string{m[1], m[2], m[3]}
	for i, p := range parts {
		if p == "" {
			parts[i] = "0"
		}
	}
	v, err := msemver.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return "", false
	}
	return v.String(), true
}

// Inc applies keyword to version. Current returns version unchanged. Other
// keywords increment the trailing MAJOR.MINOR.PATCH and keep the prefix
// verbatim ("v2.3.4" minor is "v2.4.0"). A version without a readable numeric
// part is treated as 1.0.0. Unknown keywords yield "".
func Inc(version, keyword string) string {
	if keyword == Current {
		return version
	}
	if !IsKeyword(keyword) {
		return ""
	}
	if loc := trailingVersion.FindStringSubmatchIndex(version); loc != nil {
		prefix, num := version[:loc[2]], version[loc[2]:loc[3]]
		if next, err := bump(num, keyword); err == nil {
			return prefix + next
		}
	}
	trimmed := strings.TrimPrefix(version, "v")
	if v, err := msemver.StrictNewVersion(trimmed); err == nil {
		next, _ := bumpVersion(v, keyword)
		return strings.TrimSuffix(version, trimmed) + next
	}
	next, _ := bump("1.0.0", keyword)
	return next
}

func bump(num, keyword string) (string, error) {
	v, err := msemver.StrictNewVersion(num)
	if err != nil {
		return "", err
	}
	return bumpVersion(v, keyword)
}

func bumpVersion(v *msemver.Version, keyword string) (string, error) {
	var next msemver.Version
	switch keyword {
	case Major:
		next = v.IncMajor()
	case Minor:
		next = v.IncMinor()
	case Patch:
		next = v.IncPatch()
	default:
		return "", fmt.Errorf("unknown increment %q", keyword)
	}
	return next.String(), nil
}
