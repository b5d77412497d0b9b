package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/httputil"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

// IndexRequest is the JSON body of POST /api/v1/index/{store_id}.
type IndexRequest struct {
	Type string     `json:"type" validate:"max=64"`
	Rows []IndexRow `json:"rows" validate:"required,min=1,max=1000,dive"`
}

// IndexRow is one entity and its raw attribute values.
type IndexRow struct {
	ID   string     `json:"id" validate:"required,max=255"`
	Data domain.Row `json:"data"`
}

// SaveIndex handles POST /api/v1/index/{store_id}
func (h *SearchHandler) SaveIndex(w http.ResponseWriter, r *http.Request) {
	storeID, ok := httputil.ParseInt64(w, "store_id", chi.URLParam(r, "store_id"))
	if !ok {
		return
	}
	var req IndexRequest
	if !httputil.DecodeJSON(w, r, maxIndexBody, &req) {
		return
	}

	rows := make([]domain.EntityRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		data := row.Data
		if data == nil {
			data = domain.Row{}
		}
		rows = append(rows, domain.EntityRow{ID: row.ID, Data: data})
	}

	ctx := logger.WithStoreID(r.Context(), storeID)
	if err := h.service.SaveEntityIndexes(ctx, storeID, rows, req.Type); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"store_id": storeID,
		"indexed":  len(rows),
	}})
}

// CleanIndex handles DELETE /api/v1/index?store_id=&id=&type=
//
// all=true with no other parameter drops the whole index.
func (h *SearchHandler) CleanIndex(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	storeID, ok := httputil.ParseInt64(w, "store_id", qs.Get("store_id"))
	if !ok {
		return
	}
	id := qs.Get("id")
	docType := qs.Get("type")

	var err error
	if storeID == 0 && id == "" && docType == "" && qs.Get("all") == "true" {
		err = h.service.DeleteIndex(r.Context())
	} else {
		err = h.service.CleanIndex(logger.WithStoreID(r.Context(), storeID), storeID, id, docType)
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	logger.FromContext(r.Context()).InfoContext(r.Context(), "index clean requested",
		slog.Int64("store_id", storeID),
		slog.String("id", id),
		slog.String("type", docType),
	)
	w.WriteHeader(http.StatusNoContent)
}

// CleanCache handles DELETE /api/v1/cache
func (h *SearchHandler) CleanCache(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CleanCache(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/v1/status
func (h *SearchHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: status})
}
