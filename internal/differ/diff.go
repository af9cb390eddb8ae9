package differ

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ympact/typesense-sync/internal/schema"
	"github.com/ympact/typesense-sync/internal/typesense"
)

// ChangeKind classifies one field-level change.
type ChangeKind int

const (
	Add ChangeKind = iota
	Alter
	Drop
)

func (k ChangeKind) String() string {
	switch k {
	case Add:
		return "add"
	case Alter:
		return "alter"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Change is a single field edit. Keys lists the attributes that differ for
// an Alter.
type Change struct {
	Kind  ChangeKind
	Field string
	Keys  []string
	// Desired is the target definition for Add and Alter.
	Desired *typesense.Field
}

// Patch is the structural difference between a remote collection and a
// descriptor. Immutable names collection-level settings that differ and
// cannot be changed in place. Metadata is non-nil when the remote metadata
// must be replaced; the version tag alone never sets it.
type Patch struct {
	Changes   []Change
	Immutable []string
	Metadata  map[string]any
}

func (p Patch) Empty() bool {
	return len(p.Changes) == 0 && len(p.Immutable) == 0 && p.Metadata == nil
}

// Payload renders the field changes as a partial collection update. Typesense
// alters a field by dropping and re-adding it in the same request.
func (p Patch) Payload() typesense.CollectionUpdate {
	drop := true
	var fields []typesense.Field
	for _, c := range p.Changes {
		switch c.Kind {
		case Add:
			fields = append(fields, *c.Desired)
		case Alter:
			fields = append(fields, typesense.Field{Name: c.Field, Drop: &drop}, *c.Desired)
		case Drop:
			fields = append(fields, typesense.Field{Name: c.Field, Drop: &drop})
		}
	}
	return typesense.CollectionUpdate{Fields: fields, Metadata: p.Metadata}
}

func (p Patch) String() string {
	parts := make([]string, 0, len(p.Changes)+len(p.Immutable))
	for _, c := range p.Changes {
		if c.Kind == Alter {
			parts = append(parts, fmt.Sprintf("%s %s(%s)", c.Kind, c.Field, strings.Join(c.Keys, ",")))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", c.Kind, c.Field))
	}
	if p.Metadata != nil {
		parts = append(parts, "alter metadata")
	}
	for _, k := range p.Immutable {
		parts = append(parts, "immutable "+k)
	}
	return strings.Join(parts, "; ")
}

// Diff compares remote against desired, ignoring the collection name and the
// version tag. Fields Typesense derives from object fields are not dropped.
func Diff(remote *typesense.Collection, desired *schema.Descriptor) Patch {
	var p Patch
	if remote == nil {
		return p
	}

	wanted := map[string]bool{}
	var objects []string
	for _, f := range desired.Fields() {
		wanted[f.Name] = true
		if f.Type.IsObject() {
			objects = append(objects, f.Name+".")
		}

		want := f.Payload()
		have, ok := remote.FieldByName(f.Name)
		if !ok {
			p.Changes = append(p.Changes, Change{Kind: Add, Field: f.Name, Desired: &want})
			continue
		}
		if keys := fieldDiff(want, have); len(keys) > 0 {
			p.Changes = append(p.Changes, Change{Kind: Alter, Field: f.Name, Keys: keys, Desired: &want})
		}
	}

	for _, f := range remote.Fields {
		if wanted[f.Name] || f.Name == "id" || derived(f.Name, objects) {
			continue
		}
		p.Changes = append(p.Changes, Change{Kind: Drop, Field: f.Name})
	}

	p.Immutable = collectionDiff(remote, desired)
	if !sameMetadata(desired.Metadata(), remote.Metadata) {
		p.Metadata = patchMetadata(desired.Metadata(), remote.Version())
	}
	return p
}

func derived(name string, objectPrefixes []string) bool {
	for _, prefix := range objectPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// fieldDiff compares every attribute set on want with have. Attributes the
// server left out take their Typesense defaults.
func fieldDiff(want, have typesense.Field) []string {
	var keys []string
	if want.Type != "" && want.Type != have.Type {
		keys = append(keys, "type")
	}
	numeric := have.Type == "int32" || have.Type == "int64" || have.Type == "float"

	boolKeys := []struct {
		name string
		want *bool
		have *bool
		def  bool
	}{
		{"facet", want.Facet, have.Facet, false},
		{"optional", want.Optional, have.Optional, false},
		{"index", want.Index, have.Index, true},
		{"store", want.Store, have.Store, true},
		{"sort", want.Sort, have.Sort, numeric},
		{"infix", want.Infix, have.Infix, false},
		{"range_index", want.RangeIndex, have.RangeIndex, false},
		{"stem", want.Stem, have.Stem, false},
	}
	for _, k := range boolKeys {
		if k.want == nil {
			continue
		}
		got := k.def
		if k.have != nil {
			got = *k.have
		}
		if *k.want != got {
			keys = append(keys, k.name)
		}
	}

	if want.Locale != nil && normLocale(*want.Locale) != normLocale(deref(have.Locale)) {
		keys = append(keys, "locale")
	}
	if want.NumDim != nil && (have.NumDim == nil || *want.NumDim != *have.NumDim) {
		keys = append(keys, "num_dim")
	}
	if want.VecDist != nil && *want.VecDist != orDefault(deref(have.VecDist), "cosine") {
		keys = append(keys, "vec_dist")
	}
	if want.Reference != nil && *want.Reference != deref(have.Reference) {
		keys = append(keys, "reference")
	}
	if want.Embed != nil && !sameEmbed(want.Embed, have.Embed) {
		keys = append(keys, "embed")
	}
	sort.Strings(keys)
	return keys
}

func collectionDiff(remote *typesense.Collection, desired *schema.Descriptor) []string {
	var out []string
	if desired.DefaultSortField() != remote.DefaultSortingField {
		out = append(out, "default_sorting_field")
	}
	if !sameStrings(desired.TokenSeparators(), remote.TokenSeparators) {
		out = append(out, "token_separators")
	}
	if !sameStrings(desired.SymbolsToIndex(), remote.SymbolsToIndex) {
		out = append(out, "symbols_to_index")
	}
	haveNested := remote.EnableNestedFields != nil && *remote.EnableNestedFields
	if desired.EnableNestedFields() != haveNested {
		out = append(out, "enable_nested_fields")
	}
	return out
}

// patchMetadata is the replacement metadata. An untagged descriptor keeps
// the remote version tag.
func patchMetadata(want map[string]any, remoteVersion string) map[string]any {
	out := make(map[string]any, len(want)+1)
	for k, v := range want {
		out[k] = v
	}
	if _, ok := out["version"]; !ok && remoteVersion != "" {
		out["version"] = remoteVersion
	}
	return out
}

func sameMetadata(want, have map[string]any) bool {
	strip := func(m map[string]any) map[string]string {
		out := map[string]string{}
		for k, v := range m {
			if k != "version" {
				out[k] = fmt.Sprint(v)
			}
		}
		return out
	}
	w, h := strip(want), strip(have)
	if len(w) != len(h) {
		return false
	}
	for k, v := range w {
		if hv, ok := h[k]; !ok || hv != v {
			return false
		}
	}
	return true
}

func sameEmbed(want, have *typesense.FieldEmbed) bool {
	if have == nil {
		return false
	}
	if !sameStrings(want.From, have.From) {
		return false
	}
	return fmt.Sprint(want.ModelConfig["model_name"]) == fmt.Sprint(have.ModelConfig["model_name"])
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Typesense treats an empty locale as English.
func normLocale(l string) string { return orDefault(l, "en") }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
