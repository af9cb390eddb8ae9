package searchable

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ympact/typesense-sync/internal/model"
	"github.com/ympact/typesense-sync/internal/schema"
	"github.com/ympact/typesense-sync/internal/store"
)

// Manifest is the YAML file listing table-backed models.
//
//	default_locale: en
//	models:
//	  - name: books
//	    table: books
//	    int_key: true
//	    version: "2024-02"
//	    timestamps: true
//	    skip_when: {draft: 1}
//	    fields:
//	      - {name: title, type: string, sort: true, stem: true}
//	      - {name: author_id, type: string, reference: authors.id}
type Manifest struct {
	DefaultLocale string          `yaml:"default_locale"`
	Models        []ModelManifest `yaml:"models"`
}

type ModelManifest struct {
	Name    string   `yaml:"name"`
	Table   string   `yaml:"table"`
	Key     string   `yaml:"key"`
	IntKey  bool     `yaml:"int_key"`
	Columns []string `yaml:"columns"`
	Where   string   `yaml:"where"`

	Version            string         `yaml:"version"`
	DefaultSort        string         `yaml:"default_sort"`
	TokenSeparators    []string       `yaml:"token_separators"`
	SymbolsToIndex     []string       `yaml:"symbols_to_index"`
	EnableNestedFields *bool          `yaml:"enable_nested_fields"`
	Metadata           map[string]any `yaml:"metadata"`
	Locale             string         `yaml:"locale"`

	CreatedAt  string `yaml:"created_at"`
	Timestamps bool   `yaml:"timestamps"`
	SoftDelete bool   `yaml:"soft_delete"`

	// SkipWhen drops documents whose column renders equal to the value.
	SkipWhen map[string]string `yaml:"skip_when"`

	Fields []FieldManifest `yaml:"fields"`
}

type FieldManifest struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Facet      bool           `yaml:"facet"`
	Optional   bool           `yaml:"optional"`
	Index      *bool          `yaml:"index"`
	Store      *bool          `yaml:"store"`
	Sort       *bool          `yaml:"sort"`
	Infix      bool           `yaml:"infix"`
	Locale     string         `yaml:"locale"`
	RangeIndex bool           `yaml:"range_index"`
	Stem       bool           `yaml:"stem"`
	NumDim     int            `yaml:"num_dim"`
	VecDist    string         `yaml:"vec_dist"`
	Reference  string         `yaml:"reference"`
	Embed      *EmbedManifest `yaml:"embed"`
}

type EmbedManifest struct {
	From  []string `yaml:"from"`
	Model string   `yaml:"model"`
}

// ParseManifest decodes a manifest, rejecting unknown keys.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode manifest: %w", model.ErrConfiguration, err)
	}
	return &m, nil
}

// LoadManifest reads path and registers one table-backed model per entry.
func LoadManifest(path string, db *store.DB, reg *Registry) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read manifest: %w", model.ErrConfiguration, err)
	}
	m, err := ParseManifest(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return m.Register(db, reg)
}

// Register validates every entry and enrolls it. Nothing is registered
// when any entry is invalid.
func (m *Manifest) Register(db *store.DB, reg *Registry) error {
	names := make(map[string]bool, len(m.Models))
	for _, mm := range m.Models {
		names[mm.Name] = true
	}

	var (
		defs []*Definition
		errs []error
	)
	for i := range m.Models {
		def, err := m.Models[i].definition(db, m.DefaultLocale, names)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

var _ RowCounter = (*store.Table)(nil)

// aliasRef points a reference at another manifest model by alias.
type aliasRef string

func (a aliasRef) SearchableAs() string { return string(a) }

func (mm *ModelManifest) definition(db *store.DB, defaultLocale string, known map[string]bool) (*Definition, error) {
	if mm.Name == "" {
		return nil, fmt.Errorf("%w: manifest model without name", model.ErrConfiguration)
	}
	table := mm.Table
	if table == "" {
		table = mm.Name
	}
	src, err := store.NewTable(db, store.TableSpec{
		Table:   table,
		Key:     mm.Key,
		IntKey:  mm.IntKey,
		Columns: mm.Columns,
		Where:   mm.Where,
	})
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", mm.Name, err)
	}
	for _, f := range mm.Fields {
		if f.Reference == "" {
			continue
		}
		target, _, _ := strings.Cut(f.Reference, ".")
		if !known[target] {
			return nil, fmt.Errorf("%w: model %q: field %q references %q which is not a searchable model",
				model.ErrConfiguration, mm.Name, f.Name, target)
		}
	}

	spec := *mm
	locale := mm.Locale
	if locale == "" {
		locale = defaultLocale
	}
	def := &Definition{
		Alias:    mm.Name,
		Source:   src,
		Describe: func() (*schema.Descriptor, error) { return spec.build(locale) },
	}
	if len(mm.SkipWhen) > 0 {
		skip := mm.SkipWhen
		def.Filter = func(doc model.Document) bool {
			for col, v := range skip {
				if got, ok := doc[col]; ok && fmt.Sprint(got) == v {
					return false
				}
			}
			return true
		}
	}

	// surface schema errors at load time rather than on first sync
	if _, err := def.Schema(); err != nil {
		return nil, err
	}
	return def, nil
}

func (mm *ModelManifest) build(locale string) (*schema.Descriptor, error) {
	b := schema.New(mm.Name)
	if locale != "" {
		b.DefaultLocale(locale)
	}
	b.Version(mm.Version)
	for k, v := range mm.Metadata {
		b.Metadata(k, v)
	}
	if len(mm.TokenSeparators) > 0 {
		b.TokenSeparators(mm.TokenSeparators...)
	}
	if len(mm.SymbolsToIndex) > 0 {
		b.SymbolsToIndex(mm.SymbolsToIndex...)
	}
	if mm.EnableNestedFields != nil {
		b.EnableNestedFields(*mm.EnableNestedFields)
	}

	for _, f := range mm.Fields {
		// Field records an unknown type as a build error
		t, _ := schema.ParseFieldType(f.Type)
		fb := b.Field(f.Name, t)
		if f.Facet {
			fb.Facet()
		}
		if f.Optional {
			fb.Optional()
		}
		if f.Index != nil {
			fb.Index(*f.Index)
		}
		if f.Store != nil {
			fb.Store(*f.Store)
		}
		if f.Sort != nil {
			fb.Sortable(*f.Sort)
		}
		if f.Infix {
			fb.Infix()
		}
		if f.Locale != "" {
			fb.Locale(f.Locale)
		}
		if f.RangeIndex {
			fb.RangeIndex()
		}
		if f.Stem {
			fb.Stem()
		}
		if f.NumDim != 0 {
			fb.Dimensions(f.NumDim)
		}
		if f.VecDist != "" {
			fb.Distance(f.VecDist)
		}
		if f.Reference != "" {
			target, field, _ := strings.Cut(f.Reference, ".")
			fb.Reference(aliasRef(target), field)
		}
		if f.Embed != nil {
			fb.AutoEmbed(f.Embed.Model, f.Embed.From...)
		}
	}

	switch {
	case mm.Timestamps && mm.CreatedAt == "":
		b.Timestamps()
	case mm.Timestamps:
		b.CreatedAt(mm.CreatedAt)
		b.UpdatedAt("")
	case mm.CreatedAt != "":
		b.CreatedAt(mm.CreatedAt)
	}
	if mm.SoftDelete {
		b.SoftDelete("")
	}
	if mm.DefaultSort != "" {
		b.DefaultSortField(mm.DefaultSort)
	}
	return b.Build()
}
