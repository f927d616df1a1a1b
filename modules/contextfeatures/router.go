package contextfeatures

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/biocatchltd/heksher/core"
)

// Router exposes the registry over HTTP. Mount it under
// /api/v1/context-features.
func Router(store *Store, log *slog.Logger) chi.Router {
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{store: store, log: log}

	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.add)
	r.Get("/{name}", h.index)
	r.Delete("/{name}", h.delete)
	r.Patch("/{name}/index", h.move)
	return r
}

type handlers struct {
	store *Store
	log   *slog.Logger
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.Names(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"context_features": names})
}

func (h *handlers) add(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContextFeature string `json:"context_feature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ContextFeature == "" {
		core.WriteError(w, core.ErrBadRequest)
		return
	}
	index, err := h.store.Add(r.Context(), body.ContextFeature)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusCreated, map[string]int{"index": index})
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	index, err := h.store.Index(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]int{"index": index})
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) move(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		ToAfter  string `json:"to_after,omitempty"`
		ToBefore string `json:"to_before,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return
	}

	valErr := core.NewValidationError()
	anchor, before := body.ToAfter, false
	switch {
	case body.ToAfter != "" && body.ToBefore != "":
		valErr.Add("to_after", "exactly one of to_after and to_before must be set")
	case body.ToBefore != "":
		anchor, before = body.ToBefore, true
	case body.ToAfter == "":
		valErr.Add("to_after", "exactly one of to_after and to_before must be set")
	}
	if anchor == name {
		valErr.Add("to_after", "cannot move a context feature relative to itself")
	}
	if !valErr.IsEmpty() {
		core.WriteError(w, valErr)
		return
	}

	if err := h.store.Move(r.Context(), name, anchor, before); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		core.WriteError(w, core.ErrNotFound)
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrInUse):
		core.WriteError(w, core.ErrConflict)
	default:
		h.log.ErrorContext(r.Context(), "context feature request failed", "error", err)
		core.WriteError(w, core.ErrInternalServerError)
	}
}
