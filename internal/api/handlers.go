// Package api exposes the matching service over JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"renter-registry/internal/identity"
	"renter-registry/internal/matching"
	errs "renter-registry/pkg/errors"
	"renter-registry/pkg/events"
	"renter-registry/pkg/logging"
)

const maxBodyBytes = 64 << 10

// Matcher is the subset of *matching.Service the handlers need.
type Matcher interface {
	Search(ctx context.Context, in identity.SearchInput) ([]identity.MatchResult, error)
	ResolveIntake(ctx context.Context, in identity.SearchInput) (matching.Resolution, error)
}

// SuspectLister lists recorded duplicate pairs, highest score first.
type SuspectLister interface {
	DuplicateSuspects(ctx context.Context, limit int) ([]identity.DuplicateSuspect, error)
}

// Handlers holds the dependencies of the JSON routes. Events and Suspects
// are optional; their routes answer 404 when unset.
type Handlers struct {
	Matcher  Matcher
	Events   events.EventStore
	Suspects SuspectLister
	Stats    func() any
	Logger   *logging.Logger
}

type searchResponse struct {
	Results []identity.MatchResult `json:"results"`
	Count   int                    `json:"count"`
}

type intakeResponse struct {
	RenterID    string                `json:"renter_id"`
	Fingerprint string                `json:"fingerprint"`
	Created     bool                  `json:"created"`
	Outcome     string                `json:"outcome"`
	Match       *identity.MatchResult `json:"match,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes mounts the API under prefix.
func (h *Handlers) Routes(r *mux.Router, prefix string) {
	sub := r.PathPrefix(prefix).Subrouter()
	sub.Use(requestID)
	sub.HandleFunc("/search", h.search).Methods(http.MethodPost)
	sub.HandleFunc("/intake", h.intake).Methods(http.MethodPost)
	sub.HandleFunc("/renters/{id}/history", h.history).Methods(http.MethodGet)
	sub.HandleFunc("/suspects", h.suspects).Methods(http.MethodGet)
	sub.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
}

func (h *Handlers) log() *logging.ComponentLogger {
	l := h.Logger
	if l == nil {
		l = logging.Nop()
	}
	return l.WithComponent("api")
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	results, err := h.Matcher.Search(r.Context(), in)
	if err != nil {
		h.fail(w, r, "search failed", err)
		return
	}
	if results == nil {
		results = []identity.MatchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (h *Handlers) intake(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	res, err := h.Matcher.ResolveIntake(r.Context(), in)
	if err != nil {
		h.fail(w, r, "intake failed", err)
		return
	}
	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	writeJSON(w, code, intakeResponse{
		RenterID:    res.RenterID,
		Fingerprint: res.Fingerprint,
		Created:     res.Created,
		Outcome:     res.Outcome,
		Match:       res.Match,
	})
}

func (h *Handlers) history(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "event history disabled"})
		return
	}
	id := mux.Vars(r)["id"]
	evs, err := h.Events.ListByRenter(r.Context(), id)
	if err != nil {
		h.fail(w, r, "history failed", err)
		return
	}
	if len(evs) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "renter not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"renter_id": id,
		"events":    evs,
		"summary":   events.Replay(evs),
	})
}

func (h *Handlers) suspects(w http.ResponseWriter, r *http.Request) {
	if h.Suspects == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "duplicate sweep disabled"})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	list, err := h.Suspects.DuplicateSuspects(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "listing suspects failed", err)
		return
	}
	if list == nil {
		list = []identity.DuplicateSuspect{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suspects": list, "count": len(list)})
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	if h.Stats == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no stats available"})
		return
	}
	writeJSON(w, http.StatusOK, h.Stats())
}

// fail maps error kinds to status codes. Storage details stay in the log.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errs.Is(err, errs.ErrValidation), errs.Is(err, errs.ErrNormalization):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		h.log().WarnCtx(r.Context(), msg, logging.String("error", err.Error()))
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "lookup timed out"})
	default:
		h.log().Error(msg, err, logging.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
	}
}

func decodeInput(w http.ResponseWriter, r *http.Request) (identity.SearchInput, bool) {
	var in identity.SearchInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return in, false
	}
	// Set only by the service after consulting generic-name hints.
	in.NameIsGeneric = false
	return in, true
}

// requestID tags the request context and response with an X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
