package schema

import (
	"fmt"
	"regexp"

	"github.com/ympact/typesense-sync/internal/typesense"
)

var localePattern = regexp.MustCompile(`^[a-z]{2}$`)

// Referenceable is anything that owns a collection other fields can join
// against. Searchable models satisfy it.
type Referenceable interface {
	SearchableAs() string
}

// Embed configures Typesense-side embedding generation.
type Embed struct {
	From        []string
	ModelConfig map[string]any
}

// Field is a built field descriptor. Zero values are meaningful: they are
// sent explicitly so the remote schema mirrors the declaration.
type Field struct {
	Name       string
	Type       FieldType
	Facet      bool
	Optional   bool
	Index      bool
	Store      bool
	Sort       bool
	Infix      bool
	Locale     string
	RangeIndex bool
	Stem       bool
	NumDim     int
	VecDist    string
	Reference  string
	Embed      *Embed
}

func newField(name string, t FieldType) Field {
	return Field{
		Name:  name,
		Type:  t,
		Index: true,
		Store: true,
		Sort:  t.IsNumeric(),
	}
}

// Payload renders the field as Typesense expects it on create.
func (f Field) Payload() typesense.Field {
	out := typesense.Field{
		Name:       f.Name,
		Type:       string(f.Type),
		Facet:      boolPtr(f.Facet),
		Optional:   boolPtr(f.Optional),
		Index:      boolPtr(f.Index),
		Store:      boolPtr(f.Store),
		Sort:       boolPtr(f.Sort),
		Infix:      boolPtr(f.Infix),
		RangeIndex: boolPtr(f.RangeIndex),
		Stem:       boolPtr(f.Stem),
	}
	if f.Type.IsString() && f.Locale != "" {
		out.Locale = strPtr(f.Locale)
	}
	if f.NumDim > 0 {
		n := f.NumDim
		out.NumDim = &n
	}
	if f.VecDist != "" {
		out.VecDist = strPtr(f.VecDist)
	}
	if f.Reference != "" {
		out.Reference = strPtr(f.Reference)
	}
	if f.Embed != nil {
		cfg := make(map[string]any, len(f.Embed.ModelConfig))
		for k, v := range f.Embed.ModelConfig {
			cfg[k] = v
		}
		out.Embed = &typesense.FieldEmbed{From: append([]string(nil), f.Embed.From...), ModelConfig: cfg}
	}
	return out
}

func (f Field) clone() Field {
	if f.Embed != nil {
		e := *f.Embed
		e.From = append([]string(nil), e.From...)
		f.Embed = &e
	}
	return f
}

// FieldBuilder configures one field of a Builder. Each add call on the
// Builder returns its own handle, so modifiers never leak onto another field.
type FieldBuilder struct {
	b     *Builder
	field Field
}

func (fb *FieldBuilder) fail(format string, args ...any) *FieldBuilder {
	fb.b.errs = append(fb.b.errs, fmt.Errorf("field %q: "+format, append([]any{fb.field.Name}, args...)...))
	return fb
}

// Name returns the field name.
func (fb *FieldBuilder) Name() string { return fb.field.Name }

func (fb *FieldBuilder) Facet() *FieldBuilder {
	fb.field.Facet = true
	return fb
}

func (fb *FieldBuilder) Optional() *FieldBuilder {
	fb.field.Optional = true
	return fb
}

func (fb *FieldBuilder) Index(v bool) *FieldBuilder {
	fb.field.Index = v
	return fb
}

func (fb *FieldBuilder) Store(v bool) *FieldBuilder {
	fb.field.Store = v
	return fb
}

func (fb *FieldBuilder) Sortable(v bool) *FieldBuilder {
	fb.field.Sort = v
	return fb
}

// DefaultSort marks the field as the collection's default_sorting_field.
func (fb *FieldBuilder) DefaultSort() *FieldBuilder {
	fb.b.defaultSort = fb.field.Name
	return fb
}

func (fb *FieldBuilder) Infix() *FieldBuilder {
	fb.field.Infix = true
	return fb
}

// Locale sets a two letter ISO 639 code. String types only.
func (fb *FieldBuilder) Locale(locale string) *FieldBuilder {
	if !fb.field.Type.IsString() {
		return fb.fail("locale requires a string type, got %s", fb.field.Type)
	}
	if !localePattern.MatchString(locale) {
		return fb.fail("locale %q must be a two letter ISO 639 code", locale)
	}
	fb.field.Locale = locale
	return fb
}

func (fb *FieldBuilder) Dimensions(n int) *FieldBuilder {
	if fb.field.Type != TypeFloatArray {
		return fb.fail("num_dim requires float[], got %s", fb.field.Type)
	}
	if n <= 0 {
		return fb.fail("num_dim must be positive, got %d", n)
	}
	fb.field.NumDim = n
	return fb
}

// Distance sets the vector distance metric: cosine or ip.
func (fb *FieldBuilder) Distance(metric string) *FieldBuilder {
	if fb.field.Type != TypeFloatArray {
		return fb.fail("vec_dist requires float[], got %s", fb.field.Type)
	}
	if metric != "cosine" && metric != "ip" {
		return fb.fail("vec_dist must be cosine or ip, got %q", metric)
	}
	fb.field.VecDist = metric
	return fb
}

// Reference joins this field to field of target's collection.
func (fb *FieldBuilder) Reference(target Referenceable, field string) *FieldBuilder {
	if target == nil || target.SearchableAs() == "" {
		return fb.fail("reference target must be a searchable model")
	}
	if field == "" {
		field = "id"
	}
	fb.field.Reference = target.SearchableAs() + "." + field
	return fb
}

// RangeIndex enables range filtering. int32, int64 and float only.
func (fb *FieldBuilder) RangeIndex() *FieldBuilder {
	if !fb.field.Type.IsNumeric() {
		return fb.fail("range_index requires int32, int64 or float, got %s", fb.field.Type)
	}
	fb.field.RangeIndex = true
	return fb
}

func (fb *FieldBuilder) Stem() *FieldBuilder {
	fb.field.Stem = true
	return fb
}

// AsArray switches the field to its array variant.
func (fb *FieldBuilder) AsArray() *FieldBuilder {
	fb.field.Type = fb.field.Type.AsArray()
	fb.field.Sort = fb.field.Type.IsNumeric() && fb.field.Sort
	return fb
}

// AutoEmbed makes Typesense generate this vector from existing fields.
func (fb *FieldBuilder) AutoEmbed(modelName string, from ...string) *FieldBuilder {
	if fb.field.Type != TypeFloatArray {
		return fb.fail("embed requires float[], got %s", fb.field.Type)
	}
	if len(from) == 0 {
		return fb.fail("embed needs at least one source field")
	}
	for _, src := range from {
		if !fb.b.has(src) || src == fb.field.Name {
			return fb.fail("embed source %q does not exist in the schema", src)
		}
	}
	fb.field.Embed = &Embed{From: append([]string(nil), from...), ModelConfig: map[string]any{"model_name": modelName}}
	return fb
}

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }
