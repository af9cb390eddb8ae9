package schema

import "github.com/ympact/typesense-sync/internal/typesense"

// Descriptor is the desired definition of a collection. It is immutable:
// accessors hand out copies.
type Descriptor struct {
	name            string
	fields          []Field
	defaultSort     string
	version         string
	metadata        map[string]any
	tokenSeparators []string
	symbolsToIndex  []string
	enableNested    bool
}

// Name is the alias the collection is served under.
func (d *Descriptor) Name() string { return d.name }

// Version is the optional schema version tag.
func (d *Descriptor) Version() string { return d.version }

func (d *Descriptor) DefaultSortField() string { return d.defaultSort }

func (d *Descriptor) EnableNestedFields() bool { return d.enableNested }

func (d *Descriptor) TokenSeparators() []string {
	return append([]string(nil), d.tokenSeparators...)
}

func (d *Descriptor) SymbolsToIndex() []string {
	return append([]string(nil), d.symbolsToIndex...)
}

// Fields returns the fields in declaration order.
func (d *Descriptor) Fields() []Field {
	out := make([]Field, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.clone()
	}
	return out
}

func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f.clone(), true
		}
	}
	return Field{}, false
}

// StringFields names the string typed fields, the ones a wildcard query
// can search.
func (d *Descriptor) StringFields() []string {
	var out []string
	for _, f := range d.fields {
		if f.Type == TypeString || f.Type == TypeStringArray {
			out = append(out, f.Name)
		}
	}
	return out
}

// Metadata returns the collection metadata including the version tag.
func (d *Descriptor) Metadata() map[string]any {
	if len(d.metadata) == 0 && d.version == "" {
		return nil
	}
	out := make(map[string]any, len(d.metadata)+1)
	for k, v := range d.metadata {
		out[k] = v
	}
	if d.version != "" {
		out["version"] = d.version
	}
	return out
}

// Payload renders the create request for the physical collection name.
func (d *Descriptor) Payload(collection string) typesense.CollectionSchema {
	if collection == "" {
		collection = d.name
	}
	fields := make([]typesense.Field, 0, len(d.fields))
	for _, f := range d.fields {
		fields = append(fields, f.Payload())
	}
	nested := d.enableNested
	return typesense.CollectionSchema{
		Name:                collection,
		Fields:              fields,
		DefaultSortingField: d.defaultSort,
		Metadata:            d.Metadata(),
		TokenSeparators:     d.TokenSeparators(),
		SymbolsToIndex:      d.SymbolsToIndex(),
		EnableNestedFields:  &nested,
	}
}
