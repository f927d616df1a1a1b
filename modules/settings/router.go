package settings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/biocatchltd/heksher/core"
	"github.com/biocatchltd/heksher/pkg/settingtype"
)

// Router exposes setting declaration and management over HTTP. Mount it
// under /api/v1/settings.
func Router(reconciler *Reconciler, store *Store, log *slog.Logger) chi.Router {
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{reconciler: reconciler, store: store, log: log}

	r := chi.NewRouter()
	r.Post("/declare", h.declare)
	r.Get("/", h.list)
	r.Get("/{name}", h.get)
	r.Delete("/{name}", h.delete)
	r.Put("/{name}/metadata", h.replaceMetadata)
	r.Delete("/{name}/metadata", h.clearMetadata)
	r.Post("/{name}/metadata/{key}", h.setMetadataKey)
	r.Delete("/{name}/metadata/{key}", h.deleteMetadataKey)
	return r
}

type handlers struct {
	reconciler *Reconciler
	store      *Store
	log        *slog.Logger
}

type declareBody struct {
	Name                 string         `json:"name"`
	ConfigurableFeatures []string       `json:"configurable_features"`
	Type                 string         `json:"type"`
	DefaultValue         any            `json:"default_value"`
	Metadata             map[string]any `json:"metadata"`
	Alias                string         `json:"alias,omitempty"`
	Version              string         `json:"version"`
}

func (h *handlers) declare(w http.ResponseWriter, r *http.Request) {
	var body declareBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return
	}

	valErr := core.NewValidationError()
	if body.Name == "" {
		valErr.Add("name", "must not be empty")
	}
	typ, err := settingtype.Parse(body.Type)
	if err != nil {
		valErr.Add("type", err.Error())
	}
	version := InitialVersion
	if body.Version != "" {
		if version, err = ParseVersion(body.Version); err != nil {
			valErr.Add("version", err.Error())
		}
	}
	if !valErr.IsEmpty() {
		core.WriteError(w, valErr)
		return
	}

	outcome, err := h.reconciler.Declare(r.Context(), Declaration{
		Name:                 body.Name,
		ConfigurableFeatures: body.ConfigurableFeatures,
		Type:                 typ,
		DefaultValue:         body.DefaultValue,
		Metadata:             body.Metadata,
		Alias:                body.Alias,
		Version:              version,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusOK
	switch outcome.Kind {
	case OutcomeRejected, OutcomeMismatch:
		status = http.StatusConflict
	}
	core.WriteJSON(w, status, outcome)
}

type settingPayload struct {
	Name                 string         `json:"name"`
	Type                 string         `json:"type"`
	DefaultValue         any            `json:"default_value"`
	ConfigurableFeatures []string       `json:"configurable_features"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	Aliases              []string       `json:"aliases,omitempty"`
	Version              Version        `json:"version"`
}

func payloadOf(s Setting) settingPayload {
	return settingPayload{
		Name:                 s.Name,
		Type:                 s.Type.String(),
		DefaultValue:         s.DefaultValue,
		ConfigurableFeatures: s.ConfigurableFeatures,
		Metadata:             s.Metadata,
		Aliases:              s.Aliases,
		Version:              s.Version,
	}
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	additional := r.URL.Query().Get("include_additional_data") == "true"
	payload := make([]settingPayload, len(list))
	for i, s := range list {
		payload[i] = payloadOf(s)
		if !additional {
			payload[i].Aliases = nil
			payload[i].Metadata = nil
		}
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"settings": payload})
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	setting, err := h.store.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, payloadOf(*setting))
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) replaceMetadata(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return
	}
	if err := h.store.ReplaceMetadata(r.Context(), chi.URLParam(r, "name"), body.Metadata); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) clearMetadata(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ReplaceMetadata(r.Context(), chi.URLParam(r, "name"), nil); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setMetadataKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return
	}
	name, key := chi.URLParam(r, "name"), chi.URLParam(r, "key")
	if err := h.store.SetMetadataKey(r.Context(), name, key, body.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deleteMetadataKey(w http.ResponseWriter, r *http.Request) {
	name, key := chi.URLParam(r, "name"), chi.URLParam(r, "key")
	if err := h.store.DeleteMetadataKey(r.Context(), name, key); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownContextFeatures):
		core.WriteError(w, core.ErrNotFound)
	case errors.Is(err, ErrAliasConflict), errors.Is(err, ErrConcurrentUpdate):
		core.WriteError(w, core.ErrConflict)
	case errors.Is(err, ErrInvalidVersion), errors.Is(err, ErrInvalidDefault),
		errors.Is(err, settingtype.ErrInvalidType):
		valErr := core.NewValidationError()
		valErr.Add("declaration", err.Error())
		core.WriteError(w, valErr)
	default:
		h.log.ErrorContext(r.Context(), "settings request failed", "error", err)
		core.WriteError(w, core.ErrInternalServerError)
	}
}
