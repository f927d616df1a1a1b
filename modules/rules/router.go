package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/biocatchltd/heksher/core"
	"github.com/biocatchltd/heksher/modules/settings"
)

// Router exposes rule management and the query engine over HTTP. Mount it
// under /api/v1/rules.
func Router(service *Service, store *Store, log *slog.Logger) chi.Router {
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{service: service, store: store, log: log}

	r := chi.NewRouter()
	r.Post("/", h.add)
	r.Post("/search", h.search)
	r.Post("/query", h.query)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Patch("/{id}/value", h.patchValue)
	r.Put("/{id}/metadata", h.replaceMetadata)
	r.Delete("/{id}/metadata", h.clearMetadata)
	r.Post("/{id}/metadata/{key}", h.setMetadataKey)
	r.Delete("/{id}/metadata/{key}", h.deleteMetadataKey)
	return r
}

type handlers struct {
	service *Service
	store   *Store
	log     *slog.Logger
}

func (h *handlers) add(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Setting       string            `json:"setting"`
		FeatureValues map[string]string `json:"feature_values"`
		Value         any               `json:"value"`
		Metadata      map[string]any    `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return
	}
	id, err := h.service.Add(r.Context(), body.Setting, body.FeatureValues, body.Value, body.Metadata)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusCreated, map[string]int64{"rule_id": id})
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Setting       string            `json:"setting"`
		FeatureValues map[string]string `json:"feature_values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return
	}
	rule, err := h.service.Search(r.Context(), body.Setting, body.FeatureValues)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, rule)
}

// settingNames is either the literal "*" or a list of setting names.
type settingNames struct {
	all   bool
	names []string
}

func (s *settingNames) UnmarshalJSON(data []byte) error {
	var star string
	if err := json.Unmarshal(data, &star); err == nil {
		if star != "*" {
			return fmt.Errorf("settings must be a list of names or %q", "*")
		}
		s.all = true
		return nil
	}
	return json.Unmarshal(data, &s.names)
}

// filterWire is either the literal "*" or a map from feature name to "*" or
// a list of admitted values.
type filterWire Options

func (f *filterWire) UnmarshalJSON(data []byte) error {
	var star string
	if err := json.Unmarshal(data, &star); err == nil {
		if star != "*" {
			return fmt.Errorf("context feature filter must be a map or %q", "*")
		}
		f.All = true
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Features = make(map[string]Filter, len(raw))
	for feature, entry := range raw {
		var wildcard string
		if err := json.Unmarshal(entry, &wildcard); err == nil {
			if wildcard != "*" {
				return fmt.Errorf("filter for %q must be %q or a list of values", feature, "*")
			}
			f.Features[feature] = Filter{Wildcard: true}
			continue
		}
		var values []string
		if err := json.Unmarshal(entry, &values); err != nil {
			return fmt.Errorf("filter for %q must be %q or a list of values", feature, "*")
		}
		f.Features[feature] = Filter{Values: values}
	}
	return nil
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Settings        settingNames `json:"settings"`
		ContextFilters  filterWire   `json:"context_filters"`
		IncludeMetadata bool         `json:"include_metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		valErr := core.NewValidationError()
		valErr.Add("body", err.Error())
		core.WriteError(w, valErr)
		return
	}

	req := QueryRequest{Filter: Options(body.ContextFilters), IncludeMetadata: body.IncludeMetadata}
	if !body.Settings.all {
		if body.Settings.names == nil {
			body.Settings.names = []string{}
		}
		req.Settings = body.Settings.names
	}
	result, err := h.service.Query(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"rules": result})
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	rule, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, rule)
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) patchValue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return
	}
	if err := h.service.PatchValue(r.Context(), id, body.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) replaceMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var body struct {
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return
	}
	if err := h.store.ReplaceMetadata(r.Context(), id, body.Metadata); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) clearMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	if err := h.store.ReplaceMetadata(r.Context(), id, nil); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setMetadataKey(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return
	}
	if err := h.store.SetMetadataKey(r.Context(), id, chi.URLParam(r, "key"), body.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deleteMetadataKey(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteMetadataKey(r.Context(), id, chi.URLParam(r, "key")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) ruleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		core.WriteError(w, core.ErrBadRequest)
		return 0, false
	}
	return id, true
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, settings.ErrNotFound),
		errors.Is(err, ErrUnknownFilterFeatures):
		core.WriteError(w, core.ErrNotFound)
	case errors.Is(err, ErrConditionConflict):
		core.WriteError(w, core.ErrConflict)
	case errors.Is(err, ErrEmptyConditions), errors.Is(err, ErrFeatureNotConfigurable),
		errors.Is(err, ErrValueMismatch):
		valErr := core.NewValidationError()
		valErr.Add("rule", err.Error())
		core.WriteError(w, valErr)
	default:
		h.log.ErrorContext(r.Context(), "rules request failed", "error", err)
		core.WriteError(w, core.ErrInternalServerError)
	}
}
