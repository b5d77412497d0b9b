// Package catalog provides store, attribute and visibility metadata loaded
// from a YAML file.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/utafrali/catalogsearch/pkg/errors"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// Attribute backend types and frontend inputs with indexing rules.
const (
	BackendDatetime  = "datetime"
	BackendDecimal   = "decimal"
	InputSelect      = "select"
	InputMultiselect = "multiselect"
)

const defaultLocale = "en_US"

// File is the on-disk catalog description.
type File struct {
	ShowOutOfStock bool              `yaml:"show_out_of_stock"`
	DefaultStore   int64             `yaml:"default_store"`
	Stores         []StoreConfig     `yaml:"stores"`
	Visibility     VisibilityConfig  `yaml:"visibility"`
	Attributes     []AttributeConfig `yaml:"attributes"`
}

// StoreConfig describes one store view.
type StoreConfig struct {
	ID        int64  `yaml:"id"`
	Code      string `yaml:"code"`
	WebsiteID int64  `yaml:"website_id"`
	Locale    string `yaml:"locale"`
	Timezone  string `yaml:"timezone"`
}

// VisibilityConfig lists the visibility ids allowed in each listing.
type VisibilityConfig struct {
	Search  []string `yaml:"search"`
	Catalog []string `yaml:"catalog"`
}

// AttributeConfig describes one attribute. Options map a store id to the
// labels of option values in that store; store 0 holds the default labels.
type AttributeConfig struct {
	Code        string                      `yaml:"code"`
	Backend     string                      `yaml:"backend"`
	Input       string                      `yaml:"input"`
	Searchable  bool                        `yaml:"searchable"`
	Sortable    bool                        `yaml:"sortable"`
	UsesOptions *bool                       `yaml:"uses_options"`
	Options     map[int64]map[string]string `yaml:"options"`
}

// Catalog answers metadata lookups. It is immutable once loaded and safe for
// concurrent use.
type Catalog struct {
	showOutOfStock bool
	defaultStore   int64
	stores         map[int64]domain.Store
	visibleSearch  []string
	visibleCatalog []string
	searchable     map[string]domain.Attribute
	sortable       map[string]domain.Attribute
}

// Load reads and parses the catalog file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return New(f)
}

// ApplyDefaults fills empty fields with default values.
func (f *File) ApplyDefaults() {
	if len(f.Stores) == 0 {
		f.Stores = []StoreConfig{{ID: 1, Code: "default", WebsiteID: 1}}
	}
	if f.DefaultStore == 0 {
		f.DefaultStore = f.Stores[0].ID
	}
	for i := range f.Stores {
		if f.Stores[i].Locale == "" {
			f.Stores[i].Locale = defaultLocale
		}
		if f.Stores[i].Timezone == "" {
			f.Stores[i].Timezone = "UTC"
		}
	}
	// Visible in search = 3, visible in catalog = 2, visible in both = 4.
	if len(f.Visibility.Search) == 0 {
		f.Visibility.Search = []string{"3", "4"}
	}
	if len(f.Visibility.Catalog) == 0 {
		f.Visibility.Catalog = []string{"2", "4"}
	}
}

// Validate checks the file for correctness.
func (f *File) Validate() error {
	seen := make(map[int64]struct{}, len(f.Stores))
	for _, s := range f.Stores {
		if s.ID <= 0 {
			return fmt.Errorf("stores: id must be positive, got %d", s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("stores: duplicate id %d", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	if _, ok := seen[f.DefaultStore]; !ok {
		return fmt.Errorf("default_store %d is not a configured store", f.DefaultStore)
	}
	codes := make(map[string]struct{}, len(f.Attributes))
	for _, a := range f.Attributes {
		if a.Code == "" {
			return fmt.Errorf("attributes: code is required")
		}
		if _, dup := codes[a.Code]; dup {
			return fmt.Errorf("attributes: duplicate code %q", a.Code)
		}
		codes[a.Code] = struct{}{}
	}
	return nil
}

// New builds a Catalog from an already validated File.
func New(f File) (*Catalog, error) {
	c := &Catalog{
		showOutOfStock: f.ShowOutOfStock,
		defaultStore:   f.DefaultStore,
		stores:         make(map[int64]domain.Store, len(f.Stores)),
		visibleSearch:  f.Visibility.Search,
		visibleCatalog: f.Visibility.Catalog,
		searchable:     make(map[string]domain.Attribute),
		sortable:       make(map[string]domain.Attribute),
	}
	for _, s := range f.Stores {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, fmt.Errorf("store %d: load timezone %q: %w", s.ID, s.Timezone, err)
		}
		c.stores[s.ID] = domain.Store{
			ID:        s.ID,
			Code:      s.Code,
			WebsiteID: s.WebsiteID,
			Locale:    s.Locale,
			Location:  loc,
		}
	}
	for _, a := range f.Attributes {
		attr := a.attribute()
		if a.Searchable {
			c.searchable[a.Code] = attr
		}
		if a.Sortable {
			c.sortable[a.Code] = attr
		}
	}
	return c, nil
}

// attribute resolves the indexing behaviour of the attribute once.
func (a AttributeConfig) attribute() domain.Attribute {
	attr := domain.Attribute{Code: a.Code}
	usesSource := len(a.Options) > 0 || a.Input == InputSelect || a.Input == InputMultiselect
	switch {
	case a.Backend == BackendDatetime:
		attr.Kind = domain.KindDate
	case usesSource:
		attr.Kind = domain.KindOption
		attr.Multiselect = a.Input == InputMultiselect
		attr.UsesOptions = !attr.Multiselect
		if a.UsesOptions != nil {
			attr.UsesOptions = *a.UsesOptions
		}
		attr.Options = optionTable(a.Options)
	case a.Backend == BackendDecimal:
		attr.Kind = domain.KindDecimal
	default:
		attr.Kind = domain.KindPlain
	}
	return attr
}

// optionTable resolves labels per store, falling back to the default store
// labels and then to the raw value.
type optionTable map[int64]map[string]string

func (t optionTable) OptionLabel(storeID int64, value string) string {
	if label, ok := t[storeID][value]; ok {
		return label
	}
	if label, ok := t[0][value]; ok {
		return label
	}
	return value
}

// SearchableAttributes returns the searchable attributes keyed by code.
func (c *Catalog) SearchableAttributes() map[string]domain.Attribute {
	return c.searchable
}

// SortableAttributes returns the sortable attributes keyed by code.
func (c *Catalog) SortableAttributes() map[string]domain.Attribute {
	return c.sortable
}

// IsAttributeUsingOptions reports whether single values of attr are indexed
// through their option label.
func (c *Catalog) IsAttributeUsingOptions(attr domain.Attribute) bool {
	return attr.Kind == domain.KindOption && attr.UsesOptions
}

// SortableFieldName returns the index field attr is sorted on. Numeric and
// date values sort the same in every language.
func (c *Catalog) SortableFieldName(attr domain.Attribute, locale string) string {
	if attr.Kind == domain.KindDecimal || attr.Kind == domain.KindDate {
		return "sort_by_" + attr.Code
	}
	return "sort_by_" + attr.Code + "_" + LanguageCode(locale)
}

// SortableFieldNameByCode resolves a sort code. Unknown codes sort on the
// plain localized field.
func (c *Catalog) SortableFieldNameByCode(code, locale string) string {
	attr, ok := c.sortable[code]
	if !ok {
		attr = domain.Attribute{Code: code}
	}
	return c.SortableFieldName(attr, locale)
}

// Store returns the store with the given id. Zero selects the default store.
func (c *Catalog) Store(id int64) (domain.Store, error) {
	if id == 0 {
		id = c.defaultStore
	}
	s, ok := c.stores[id]
	if !ok {
		return domain.Store{}, apperrors.NotFound("store", strconv.FormatInt(id, 10))
	}
	return s, nil
}

// Stores returns every store ordered by id.
func (c *Catalog) Stores() []domain.Store {
	out := make([]domain.Store, 0, len(c.stores))
	for _, s := range c.stores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LocaleCode returns the locale of store.
func (c *Catalog) LocaleCode(store domain.Store) string {
	if store.Locale == "" {
		return defaultLocale
	}
	return store.Locale
}

// ShowOutOfStock reports whether out of stock items are listed.
func (c *Catalog) ShowOutOfStock() bool {
	return c.showOutOfStock
}

// VisibleInSearchIDs returns the visibility ids listed by text searches.
func (c *Catalog) VisibleInSearchIDs() []string {
	return append([]string(nil), c.visibleSearch...)
}

// VisibleInCatalogIDs returns the visibility ids listed when browsing.
func (c *Catalog) VisibleInCatalogIDs() []string {
	return append([]string(nil), c.visibleCatalog...)
}

// LanguageCode returns the language part of a locale: "fr_FR" => "fr".
func LanguageCode(locale string) string {
	if i := strings.IndexAny(locale, "_-"); i > 0 {
		return strings.ToLower(locale[:i])
	}
	return strings.ToLower(locale)
}
