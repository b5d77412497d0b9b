package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for catalog documents.
const DefaultIndexName = "catalog_search"

// keywordFields are mapped as keywords up front and aggregate without a
// sub-field. Dynamic attribute fields aggregate on their keyword sub-field.
var keywordFields = map[string]struct{}{
	"id":                 {},
	"unique":             {},
	"doc_type":           {},
	"store_id":           {},
	"visibility":         {},
	"in_stock":           {},
	"categories":         {},
	"show_in_categories": {},
	"_options":           {},
}

// buildIndexMapping returns the JSON mapping for the catalog index. Attribute
// fields are dynamic; templates pin the types of the generated sort, position
// and price fields. Sort fields keep the type of their value so decimal and
// date sorts compare numerically. Every other dynamic scalar carries a
// keyword sub-field for term facets.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "catalog_text": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      { "sort_dates":      { "match": "sort_by_*", "match_mapping_type": "date",   "mapping": { "type": "date" } } },
      { "sort_longs":      { "match": "sort_by_*", "match_mapping_type": "long",   "mapping": { "type": "double" } } },
      { "sort_doubles":    { "match": "sort_by_*", "match_mapping_type": "double", "mapping": { "type": "double" } } },
      { "sort_fields":     { "match": "sort_by_*", "match_mapping_type": "string", "mapping": { "type": "keyword" } } },
      { "position_fields": { "match": "position_category_*", "mapping": { "type": "integer" } } },
      { "price_fields":    { "match": "price_*",             "mapping": { "type": "double" } } },
      { "strings": {
          "match_mapping_type": "string",
          "mapping": {
            "type": "text",
            "analyzer": "catalog_text",
            "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } }
          }
      } },
      { "longs":    { "match_mapping_type": "long",    "mapping": { "type": "long",    "fields": { "keyword": { "type": "keyword" } } } } },
      { "doubles":  { "match_mapping_type": "double",  "mapping": { "type": "double",  "fields": { "keyword": { "type": "keyword" } } } } },
      { "booleans": { "match_mapping_type": "boolean", "mapping": { "type": "boolean", "fields": { "keyword": { "type": "keyword" } } } } },
      { "dates":    { "match_mapping_type": "date",    "mapping": { "type": "date",    "fields": { "keyword": { "type": "keyword" } } } } }
    ],
    "properties": {
      "id":                 { "type": "keyword" },
      "unique":             { "type": "keyword" },
      "doc_type":           { "type": "keyword" },
      "store_id":           { "type": "long" },
      "visibility":         { "type": "keyword" },
      "in_stock":           { "type": "keyword" },
      "categories":         { "type": "keyword" },
      "show_in_categories": { "type": "keyword" },
      "_options":           { "type": "keyword" },
      "price":              { "type": "double" }
    }
  }
}`
}
