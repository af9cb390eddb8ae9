package schema

import (
	"errors"
	"fmt"

	"github.com/ympact/typesense-sync/internal/model"
)

const (
	defaultCreatedAt  = "created_at"
	defaultUpdatedAt  = "updated_at"
	defaultSoftDelete = "__soft_deleted"
	imageEmbedModel   = "ts/clip-vit-b-p32"
)

// Builder assembles a Descriptor. Invalid modifiers are recorded and
// reported together by Build.
type Builder struct {
	name            string
	locale          string
	fields          []*FieldBuilder
	defaultSort     string
	version         string
	metadata        map[string]any
	tokenSeparators []string
	symbolsToIndex  []string
	enableNested    bool
	createdAt       string
	errs            []error
}

// New starts a descriptor for the alias name.
func New(name string) *Builder {
	return &Builder{name: name, locale: "en", enableNested: true}
}

// DefaultLocale sets the locale given to string fields added afterwards.
func (b *Builder) DefaultLocale(locale string) *Builder {
	if !localePattern.MatchString(locale) {
		b.errs = append(b.errs, fmt.Errorf("default locale %q must be a two letter ISO 639 code", locale))
		return b
	}
	b.locale = locale
	return b
}

func (b *Builder) Version(v string) *Builder {
	b.version = v
	return b
}

// Metadata stores an extra key on the collection. "version" is reserved.
func (b *Builder) Metadata(key string, value any) *Builder {
	if key == "version" {
		b.errs = append(b.errs, errors.New(`metadata key "version" is reserved, use Version`))
		return b
	}
	if b.metadata == nil {
		b.metadata = map[string]any{}
	}
	b.metadata[key] = value
	return b
}

// DefaultSortField sets default_sorting_field by name. The field must exist
// by the time Build runs.
func (b *Builder) DefaultSortField(name string) *Builder {
	b.defaultSort = name
	return b
}

func (b *Builder) TokenSeparators(seps ...string) *Builder {
	b.tokenSeparators = append([]string(nil), seps...)
	return b
}

func (b *Builder) SymbolsToIndex(symbols ...string) *Builder {
	b.symbolsToIndex = append([]string(nil), symbols...)
	return b
}

func (b *Builder) EnableNestedFields(v bool) *Builder {
	b.enableNested = v
	return b
}

func (b *Builder) has(name string) bool {
	for _, fb := range b.fields {
		if fb.field.Name == name {
			return true
		}
	}
	return false
}

// Field adds a field of any type and returns its handle.
func (b *Builder) Field(name string, t FieldType) *FieldBuilder {
	fb := &FieldBuilder{b: b, field: newField(name, t)}
	if t.IsString() {
		fb.field.Locale = b.locale
	}
	switch {
	case name == "":
		fb.fail("name is required")
	case !t.Valid():
		fb.fail("unknown type %q", t)
	case b.has(name):
		fb.fail("already defined")
	}
	b.fields = append(b.fields, fb)
	return fb
}

func (b *Builder) String(name string) *FieldBuilder   { return b.Field(name, TypeString) }
func (b *Builder) Int32(name string) *FieldBuilder    { return b.Field(name, TypeInt32) }
func (b *Builder) Int64(name string) *FieldBuilder    { return b.Field(name, TypeInt64) }
func (b *Builder) Float(name string) *FieldBuilder    { return b.Field(name, TypeFloat) }
func (b *Builder) Bool(name string) *FieldBuilder     { return b.Field(name, TypeBool) }
func (b *Builder) Object(name string) *FieldBuilder   { return b.Field(name, TypeObject) }
func (b *Builder) Geopoint(name string) *FieldBuilder { return b.Field(name, TypeGeopoint) }

// Vector adds a float[] field with num_dim set.
func (b *Builder) Vector(name string, dims int) *FieldBuilder {
	return b.Field(name, TypeFloatArray).Dimensions(dims)
}

// Image adds an unstored image field and an "embedding" vector generated
// from it by the CLIP model.
func (b *Builder) Image(name string) *FieldBuilder {
	fb := b.Field(name, TypeImage).Store(false)
	b.Field("embedding", TypeFloatArray).AutoEmbed(imageEmbedModel, name)
	return fb
}

// ID adds an explicit string id field ("id" when name is empty).
func (b *Builder) ID(name string) *FieldBuilder {
	if name == "" {
		name = "id"
	}
	return b.String(name)
}

// Title adds a sortable, stemmed string in the default locale.
func (b *Builder) Title(name string) *FieldBuilder {
	if name == "" {
		name = "title"
	}
	return b.String(name).Sortable(true).Stem()
}

// Tags adds a faceted string[] referencing ids in target's collection.
func (b *Builder) Tags(target Referenceable, name string) *FieldBuilder {
	if name == "" {
		name = "tags"
	}
	return b.Field(name, TypeStringArray).Reference(target, "id").Facet().Stem()
}

// CreatedAt adds the sortable creation timestamp every collection needs.
func (b *Builder) CreatedAt(name string) *FieldBuilder {
	if name == "" {
		name = defaultCreatedAt
	}
	b.createdAt = name
	return b.Int32(name).Sortable(true)
}

func (b *Builder) UpdatedAt(name string) *FieldBuilder {
	if name == "" {
		name = defaultUpdatedAt
	}
	return b.Int32(name).Sortable(true)
}

// Timestamps adds created_at and updated_at.
func (b *Builder) Timestamps() *Builder {
	b.CreatedAt("")
	b.UpdatedAt("")
	return b
}

// SoftDelete adds the soft-delete marker field.
func (b *Builder) SoftDelete(name string) *Builder {
	if name == "" {
		name = defaultSoftDelete
	}
	b.Int32(name)
	return b
}

// Build validates the declaration and freezes it.
func (b *Builder) Build() (*Descriptor, error) {
	errs := append([]error(nil), b.errs...)
	if b.name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	createdAt := b.createdAt
	if createdAt == "" {
		createdAt = defaultCreatedAt
	}
	if !b.has(createdAt) {
		errs = append(errs, fmt.Errorf("%s field is required", createdAt))
	}

	if b.defaultSort != "" {
		var sortField *Field
		for _, fb := range b.fields {
			if fb.field.Name == b.defaultSort {
				sortField = &fb.field
				break
			}
		}
		if sortField == nil || !sortField.Sort || !sortField.Type.IsNumeric() {
			errs = append(errs, fmt.Errorf("default sort field %q is either not present or not a sortable numeric field", b.defaultSort))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: schema %q: %w", model.ErrConfiguration, b.name, errors.Join(errs...))
	}

	d := &Descriptor{
		name:            b.name,
		fields:          make([]Field, 0, len(b.fields)),
		defaultSort:     b.defaultSort,
		version:         b.version,
		tokenSeparators: append([]string(nil), b.tokenSeparators...),
		symbolsToIndex:  append([]string(nil), b.symbolsToIndex...),
		enableNested:    b.enableNested,
	}
	for _, fb := range b.fields {
		d.fields = append(d.fields, fb.field.clone())
	}
	if len(b.metadata) > 0 {
		d.metadata = make(map[string]any, len(b.metadata))
		for k, v := range b.metadata {
			d.metadata[k] = v
		}
	}
	return d, nil
}
