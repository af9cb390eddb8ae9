package differ

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/ympact/typesense-sync/internal/model"
)

// VersionComparator orders schema version tags.
type VersionComparator interface {
	// Newer reports whether desired is strictly newer than current. An empty
	// current is older than any tag.
	Newer(desired, current string) bool
}

// Lexical compares tags as plain strings. Tags must sort lexically
// (zero-padded counters, ISO dates); "9" is newer than "10".
type Lexical struct{}

func (Lexical) Newer(desired, current string) bool { return desired > current }

// Semver compares tags as semantic versions ("v2", "1.10.0"). A tag that does
// not parse falls back to lexical ordering for desired, and counts as older
// for current so that switching tag formats forces one rebuild.
type Semver struct{}

func (Semver) Newer(desired, current string) bool {
	dv, err := semver.NewVersion(desired)
	if err != nil {
		return Lexical{}.Newer(desired, current)
	}
	if current == "" {
		return true
	}
	cv, err := semver.NewVersion(current)
	if err != nil {
		return true
	}
	return dv.GreaterThan(cv)
}

// ComparatorFor maps the VERSION_ORDERING setting to a comparator.
func ComparatorFor(name string) (VersionComparator, error) {
	switch name {
	case "", "lexical":
		return Lexical{}, nil
	case "semver":
		return Semver{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown version ordering %q", model.ErrConfiguration, name)
	}
}
