// Package api exposes the five store operations over a thin REST surface.
// Outer layers (dashboard UI, CLI) couple to nothing else.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rpattn/metriq/internal/auth"
	"github.com/rpattn/metriq/internal/domain"
	"github.com/rpattn/metriq/internal/store"
)

// Handler routes catalog requests to the store for the addressed collection.
type Handler struct {
	stores map[string]store.EntityStore
}

// New creates a handler over one store per collection.
func New(stores map[string]store.EntityStore) *Handler {
	return &Handler{stores: stores}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{collection}", h.list)
	mux.HandleFunc("POST /api/{collection}", h.create)
	mux.HandleFunc("GET /api/{collection}/{id}", h.get)
	mux.HandleFunc("PUT /api/{collection}/{id}", h.update)
	mux.HandleFunc("DELETE /api/{collection}/{id}", h.remove)
	return mux
}

type createRequest struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type updateRequest struct {
	Fields map[string]any `json:"fields"`
}

type updateResponse struct {
	Entity  domain.Entity `json:"entity"`
	Changed bool          `json:"changed"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	entity, err := st.Create(r.Context(), req.ID, req.Fields, auth.ActorOrAnonymous(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entity)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	entity, err := st.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	entity, changed, err := st.Update(r.Context(), r.PathValue("id"), req.Fields, auth.ActorOrAnonymous(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Entity: entity, Changed: changed})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	if err := st.Delete(r.Context(), r.PathValue("id"), auth.ActorOrAnonymous(r.Context())); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	st, ok := h.storeFor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := domain.Filter{
		Category:     query.Get("category"),
		Owner:        query.Get("owner"),
		Tier:         query.Get("tier"),
		Tag:          query.Get("tag"),
		NameContains: query.Get("name"),
	}

	entities := make([]domain.Entity, 0)
	for entity, err := range st.List(r.Context(), filter) {
		if err != nil {
			writeDomainError(w, err)
			return
		}
		entities = append(entities, entity)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (h *Handler) storeFor(w http.ResponseWriter, r *http.Request) (store.EntityStore, bool) {
	collection := r.PathValue("collection")
	st, ok := h.stores[collection]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown collection %q", collection))
		return nil, false
	}
	return st, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrGuardTimeout):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
