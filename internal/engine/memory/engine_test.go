package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
)

func seed(t *testing.T, eng *Engine, rows ...map[string]any) {
	t.Helper()
	ctx := context.Background()
	docs := make([]engine.Document, 0, len(rows))
	for _, row := range rows {
		id := row["id"].(string)
		docs = append(docs, eng.CreateDoc(engine.UniqueID(id, 1), row, domain.DefaultEntityType))
	}
	require.NoError(t, eng.AddDocuments(ctx, docs))
	require.NoError(t, eng.RefreshIndex(ctx))
}

func catalog(t *testing.T) *Engine {
	t.Helper()
	eng := New()
	seed(t, eng,
		map[string]any{"id": "1", "name": "Red running shoe", "color": "red", "price": 49.9, "store_id": int64(1), "categories": []string{"3"}},
		map[string]any{"id": "2", "name": "Blue running shoe", "color": "blue", "price": 59.9, "store_id": int64(1), "categories": []string{"3", "4"}},
		map[string]any{"id": "3", "name": "Red hat", "color": "red", "price": 15.0, "store_id": int64(1), "categories": []string{"4"}},
	)
	return eng
}

func ids(resp *engine.Response) []string {
	out := make([]string, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		out = append(out, h.Source["id"].(string))
	}
	return out
}

func TestEngine_AddDocumentsVisibleAfterRefresh(t *testing.T) {
	ctx := context.Background()
	eng := New()

	doc := eng.CreateDoc("1|1", map[string]any{"id": "1"}, domain.DefaultEntityType)
	require.NoError(t, eng.AddDocuments(ctx, []engine.Document{doc}))
	assert.Equal(t, 0, eng.Len())

	require.NoError(t, eng.RefreshIndex(ctx))
	assert.Equal(t, 1, eng.Len())
}

func TestEngine_Search(t *testing.T) {
	eng := catalog(t)

	tests := []struct {
		name       string
		conditions string
		filters    string
		want       []string
	}{
		{name: "match all", conditions: "", want: []string{"1", "2", "3"}},
		{name: "single word", conditions: "hat", want: []string{"3"}},
		{name: "case insensitive", conditions: "RED", want: []string{"1", "3"}},
		{name: "group is any word", conditions: "(hat blue)", want: []string{"2", "3"}},
		{name: "field term", conditions: "color:blue", want: []string{"2"}},
		{name: "wildcard field", conditions: "color:*", want: []string{"1", "2", "3"}},
		{name: "and", conditions: "color:red AND running", want: []string{"1"}},
		{name: "field group", conditions: "name:(hat OR blue)", want: []string{"2", "3"}},
		{name: "phrase", conditions: `name:"running shoe"`, want: []string{"1", "2"}},
		{name: "escaped", conditions: `name:red\-hat`, want: []string{}},
		{name: "range filter", filters: "price:[10 TO 50]", want: []string{"1", "3"}},
		{name: "open range filter", filters: "price:[ TO 20]", want: []string{"3"}},
		{name: "category filter", filters: "(categories:4 OR show_in_categories:4)", want: []string{"2", "3"}},
		{name: "store filter", filters: "store_id:1 AND color:red", want: []string{"1", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := eng.Search(context.Background(), tt.conditions, engine.Request{
				Limit:   10,
				Filters: tt.filters,
			}, domain.DefaultEntityType)
			require.NoError(t, err)
			require.False(t, resp.HasError(), resp.Error)
			assert.Equal(t, tt.want, ids(resp))
			assert.Equal(t, int64(len(tt.want)), resp.TotalHits)
		})
	}
}

func TestEngine_SearchMalformedIsErrorFlagged(t *testing.T) {
	eng := catalog(t)

	for _, q := range []string{"(red", "price:[1 TO", `name:"open`, "red OR"} {
		resp, err := eng.Search(context.Background(), q, engine.Request{Limit: 10}, domain.DefaultEntityType)
		require.NoError(t, err)
		assert.True(t, resp.HasError(), q)
	}
}

func TestEngine_SearchOtherDocTypeIsEmpty(t *testing.T) {
	eng := catalog(t)

	resp, err := eng.Search(context.Background(), "", engine.Request{Limit: 10}, "cms_page")
	require.NoError(t, err)
	assert.Empty(t, resp.Hits)
}

func TestEngine_SortAndPaginate(t *testing.T) {
	eng := catalog(t)

	resp, err := eng.Search(context.Background(), "", engine.Request{
		Offset: 1,
		Limit:  1,
		Sort:   []domain.SortField{{Field: "price", Direction: domain.SortDesc}},
	}, domain.DefaultEntityType)
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.TotalHits)
	assert.Equal(t, []string{"1"}, ids(resp))

	resp, err = eng.Search(context.Background(), "", engine.Request{
		Limit: 10,
		Sort:  []domain.SortField{{Field: "_score", Direction: domain.SortDesc}, {Field: "missing", Direction: domain.SortAsc}},
	}, domain.DefaultEntityType)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(resp))
}

func TestEngine_RangeFilters(t *testing.T) {
	eng := catalog(t)

	resp, err := eng.Search(context.Background(), "", engine.Request{
		Limit:        10,
		RangeFilters: []domain.RangeFilter{{Field: "price", From: "40"}},
	}, domain.DefaultEntityType)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(resp))
}

func TestEngine_Facets(t *testing.T) {
	eng := catalog(t)

	resp, err := eng.Search(context.Background(), "", engine.Request{
		Limit: 10,
		Facets: &domain.FacetRequest{
			Fields:  []string{"color"},
			Ranges:  []domain.RangeFacet{{Field: "price", Buckets: []domain.FacetRange{{To: "20"}, {From: "20"}}}},
			Queries: []string{"(categories:4 OR show_in_categories:4)"},
		},
		Stats: []string{"price"},
	}, domain.DefaultEntityType)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"_type": "terms",
		"terms": []any{
			map[string]any{"term": "red", "count": int64(2)},
			map[string]any{"term": "blue", "count": int64(1)},
		},
	}, resp.Facets["color"])

	ranges := resp.Facets["price"]["ranges"].([]any)
	require.Len(t, ranges, 2)
	assert.Equal(t, int64(1), ranges[0].(map[string]any)["total_count"])
	assert.Equal(t, int64(2), ranges[1].(map[string]any)["total_count"])

	assert.Equal(t, int64(2), resp.Facets["(categories:4 OR show_in_categories:4)"]["count"])

	stats := resp.Facets["price_stats"]
	assert.Equal(t, "statistical", stats["_type"])
	assert.Equal(t, int64(3), stats["count"])
	assert.Equal(t, 15.0, stats["min"])
	assert.Equal(t, 59.9, stats["max"])
}

func TestEngine_CleanIndex(t *testing.T) {
	ctx := context.Background()
	eng := catalog(t)
	other := eng.CreateDoc(engine.UniqueID("1", 2), map[string]any{"id": "1", "name": "Red shoe", "store_id": int64(2)}, domain.DefaultEntityType)
	require.NoError(t, eng.AddDocuments(ctx, []engine.Document{other}))
	require.NoError(t, eng.RefreshIndex(ctx))
	assert.Equal(t, 4, eng.Len())

	require.NoError(t, eng.CleanIndex(ctx, 1, "1", domain.DefaultEntityType))
	assert.Equal(t, 3, eng.Len())

	require.NoError(t, eng.CleanIndex(ctx, 0, "1", domain.DefaultEntityType))
	assert.Equal(t, 2, eng.Len())

	require.NoError(t, eng.CleanIndex(ctx, 0, "", "cms_page"))
	assert.Equal(t, 2, eng.Len())

	require.NoError(t, eng.DeleteIndex(ctx))
	assert.Equal(t, 0, eng.Len())
}

func TestEngine_FailWith(t *testing.T) {
	ctx := context.Background()
	eng := catalog(t)
	boom := errors.New("engine down")
	eng.FailWith(boom)

	_, err := eng.Search(ctx, "", engine.Request{Limit: 10}, domain.DefaultEntityType)
	assert.ErrorIs(t, err, boom)
	_, err = eng.GetStatus(ctx)
	assert.ErrorIs(t, err, boom)

	call, ok := eng.LastSearch()
	require.True(t, ok)
	assert.Equal(t, domain.DefaultEntityType, call.DocType)

	eng.FailWith(nil)
	status, err := eng.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.Documents)
}
