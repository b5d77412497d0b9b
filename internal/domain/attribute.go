package domain

import "time"

// AttributeKind is the indexing behaviour of an attribute, resolved once from
// its metadata.
type AttributeKind int

const (
	KindPlain AttributeKind = iota
	KindDate
	KindDecimal
	KindOption
)

func (k AttributeKind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindDecimal:
		return "decimal"
	case KindOption:
		return "option"
	default:
		return "plain"
	}
}

// OptionSource resolves stored option ids to their display label in a store.
type OptionSource interface {
	OptionLabel(storeID int64, value string) string
}

// Attribute is the metadata of one searchable or sortable attribute.
type Attribute struct {
	Code string
	Kind AttributeKind
	// Multiselect is set for option attributes holding several comma
	// separated option ids.
	Multiselect bool
	// UsesOptions reports whether single option values are resolved into the
	// _options list at index time.
	UsesOptions bool
	Options     OptionSource
}

// OptionLabel resolves value through the attribute's option source. Values
// without a source are returned as-is.
func (a Attribute) OptionLabel(storeID int64, value string) string {
	if a.Options == nil {
		return value
	}
	return a.Options.OptionLabel(storeID, value)
}

// Store is the store view documents are indexed and searched in.
type Store struct {
	ID        int64
	Code      string
	WebsiteID int64
	Locale    string
	Location  *time.Location
}

// LocalizeDate converts a stored UTC date into the store's timezone.
func (s Store) LocalizeDate(t time.Time) time.Time {
	if s.Location == nil {
		return t.UTC()
	}
	return t.In(s.Location)
}

// Row is the attribute values of one entity for one store.
type Row map[string]any

// EntityRow pairs an entity id with its row.
type EntityRow struct {
	ID   string
	Data Row
}
