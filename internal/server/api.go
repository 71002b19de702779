package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/felixgeelhaar/wayfinder/internal/errors"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/metrics"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

// maxBodyBytes bounds request bodies; plan data for a two-week trip is
// well under this.
const maxBodyBytes = 2 << 20

// Planner runs planning requests.
type Planner interface {
	Run(ctx context.Context, req types.PlanRequest) (*types.PlanResponse, error)
}

// TaskStatuser answers task status polls.
type TaskStatuser interface {
	Status(ctx context.Context, id string) (types.TaskView, error)
}

// Itineraries stores saved plans.
type Itineraries interface {
	Save(ctx context.Context, req types.SaveItineraryRequest) (string, error)
	List(ctx context.Context) ([]types.Itinerary, error)
	Delete(ctx context.Context, remoteID string) error
}

// API holds the handlers of the public endpoints.
type API struct {
	planner     Planner
	tasks       TaskStatuser
	itineraries Itineraries
	logger      *log.Logger
	metrics     *metrics.Metrics
}

func NewAPI(planner Planner, tasks TaskStatuser, itineraries Itineraries, logger *log.Logger, m *metrics.Metrics) *API {
	return &API{
		planner:     planner,
		tasks:       tasks,
		itineraries: itineraries,
		logger:      log.OrDefault(logger).Component("api"),
		metrics:     m,
	}
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Post("/plan", a.handlePlan)
	r.Get("/task/{id}", a.handleTask)
	r.Route("/itinerary", func(r chi.Router) {
		r.Post("/", a.handleSaveItinerary)
		r.Get("/", a.handleListItineraries)
		r.Delete("/{id}", a.handleDeleteItinerary)
	})
}

func (a *API) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req types.PlanRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.planner.Run(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	view, err := a.tasks.Status(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSONConditional(w, r, view)
}

func (a *API) handleSaveItinerary(w http.ResponseWriter, r *http.Request) {
	var req types.SaveItineraryRequest
	if !a.decode(w, r, &req) {
		return
	}
	id, err := a.itineraries.Save(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SaveItineraryResponse{RemoteID: id})
}

func (a *API) handleListItineraries(w http.ResponseWriter, r *http.Request) {
	items, err := a.itineraries.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []types.Itinerary{}
	}
	writeJSONConditional(w, r, types.ItineraryList{Items: items})
}

func (a *API) handleDeleteItinerary(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := a.itineraries.Delete(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeError(w, r, errors.Wrap(errors.ErrCodeValidation, "malformed request body", err).
			WithSuggestion("send a JSON object with camelCase fields"))
		return false
	}
	return true
}

// statusFor maps error codes to HTTP statuses.
func statusFor(err error) int {
	code := errors.CodeOf(err)
	switch {
	case code.Area() == "VALIDATION":
		return http.StatusBadRequest
	case code.Area() == "PROFILE":
		return http.StatusUnprocessableEntity
	case code == errors.ErrCodeNotFound, code == errors.ErrCodeTaskNotFound:
		return http.StatusNotFound
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := types.ErrorBody{Error: types.ErrorDetail{Code: "INTERNAL", Message: "internal error"}}
	if we, ok := errors.As(err); ok {
		body.Error = types.ErrorDetail{Code: string(we.Code), Message: we.Message, Suggestions: we.Suggestions}
	} else if status == http.StatusGatewayTimeout {
		body.Error = types.ErrorDetail{Code: "TIMEOUT", Message: "request timed out"}
	}

	a.metrics.RecordError(body.Error.Code, "api")
	logger := a.logger.WithError(err).With("status", status, "request_id", middleware.GetReqID(r.Context()))
	if status >= 500 {
		logger.ErrorContext(r.Context(), fmt.Sprintf("%s %s failed", r.Method, r.URL.Path))
	} else {
		logger.Debug(fmt.Sprintf("%s %s rejected", r.Method, r.URL.Path))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
