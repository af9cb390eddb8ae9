package differ

import (
	"github.com/ympact/typesense-sync/internal/schema"
	"github.com/ympact/typesense-sync/internal/typesense"
)

// Decision is the outcome of comparing remote and desired schemas.
type Decision int

const (
	Unchanged Decision = iota
	NeedsVersionBump
	NeedsPatch
	NeedsFullCutover
	NeedsCreate
)

func (d Decision) String() string {
	switch d {
	case Unchanged:
		return "unchanged"
	case NeedsVersionBump:
		return "needs-version-bump"
	case NeedsPatch:
		return "needs-patch"
	case NeedsFullCutover:
		return "needs-full-cutover"
	case NeedsCreate:
		return "needs-create"
	default:
		return "unknown"
	}
}

// Skip reports decisions that require no backend work.
func (d Decision) Skip() bool { return d == Unchanged || d == NeedsVersionBump }

// Decide chooses how to bring remote in line with desired. remote is nil
// when no collection exists yet.
//
// Without dual writes the structural diff decides between a skip and an
// in-place patch. With dual writes a version tag, when present, is the only
// signal: a strictly newer tag triggers a cutover, anything else is skipped.
// Untagged descriptors fall back to the structural diff.
func Decide(remote *typesense.Collection, desired *schema.Descriptor, dualWrite bool, cmp VersionComparator) Decision {
	if remote == nil {
		return NeedsCreate
	}
	if cmp == nil {
		cmp = Lexical{}
	}

	if !dualWrite {
		if Diff(remote, desired).Empty() {
			return Unchanged
		}
		return NeedsPatch
	}

	if v := desired.Version(); v != "" {
		if cmp.Newer(v, remote.Version()) {
			return NeedsFullCutover
		}
		return NeedsVersionBump
	}

	if Diff(remote, desired).Empty() {
		return Unchanged
	}
	return NeedsFullCutover
}
