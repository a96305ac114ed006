package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcall12/xctimer/internal/clock"
	"github.com/mcall12/xctimer/internal/race"
	"github.com/mcall12/xctimer/internal/roster"
)

// Service exposes the orchestration surface over HTTP and WebSocket. The UI
// is a dumb client: it calls these endpoints and renders the pushed state.
type Service struct {
	app *race.App
}

func NewService(app *race.App) *Service {
	return &Service{app: app}
}

// Router builds the HTTP handler with CORS and logging applied.
func (s *Service) Router(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/runners", s.handleAddRunner)
		r.Post("/runners/{runnerID}/splits/{key}", s.handleRecordSplit)
		r.Post("/timer/start", s.handleStart)
		r.Post("/timer/stop", s.handleStop)
		r.Post("/timer/reset", s.handleReset)
		r.Post("/timer/visibility-resume", s.handleVisibilityResume)
	})

	r.Get("/ws", s.handleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

type addRunnerRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Service) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Service) handleAddRunner(w http.ResponseWriter, r *http.Request) {
	var req addRunnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runner, err := s.app.AddRunner(req.Name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, runner)
}

func (s *Service) handleRecordSplit(w http.ResponseWriter, r *http.Request) {
	runnerID := chi.URLParam(r, "runnerID")
	key := chi.URLParam(r, "key")
	if !roster.ValidSplitKey(key) {
		writeError(w, http.StatusBadRequest, roster.ErrUnknownSplitKey)
		return
	}

	elapsed, err := s.app.RecordSplit(runnerID, roster.SplitKey(key))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"elapsedTime": elapsed,
		"display":     clock.FormatElapsed(elapsed),
	})
}

func (s *Service) handleStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.app.Start(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Service) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.app.Stop(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Service) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.app.Reset()
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Service) handleVisibilityResume(w http.ResponseWriter, _ *http.Request) {
	s.app.VisibilityResume()
	writeJSON(w, http.StatusOK, s.app.State())
}

// statusFor maps core error kinds to HTTP statuses. Everything in the core
// is recoverable; nothing maps to a 5xx.
func statusFor(err error) int {
	switch {
	case errors.Is(err, roster.ErrRunnerNotFound):
		return http.StatusNotFound
	case errors.Is(err, clock.ErrDebounced),
		errors.Is(err, clock.ErrAlreadyRunning),
		errors.Is(err, clock.ErrNotRunning),
		errors.Is(err, race.ErrTimerNotRunning),
		errors.Is(err, roster.ErrAlreadyRecorded):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// kindFor gives clients a stable machine-readable name for each error kind.
func kindFor(err error) string {
	switch {
	case errors.Is(err, roster.ErrEmptyName):
		return "EmptyName"
	case errors.Is(err, roster.ErrNameTooShort):
		return "TooShort"
	case errors.Is(err, roster.ErrNameTooLong):
		return "TooLong"
	case errors.Is(err, roster.ErrInvalidCharacters):
		return "InvalidCharacters"
	case errors.Is(err, roster.ErrDuplicateName):
		return "DuplicateName"
	case errors.Is(err, roster.ErrRunnerNotFound):
		return "RunnerNotFound"
	case errors.Is(err, roster.ErrUnknownSplitKey):
		return "UnknownSplitKey"
	case errors.Is(err, roster.ErrAlreadyRecorded):
		return "AlreadyRecorded"
	case errors.Is(err, roster.ErrInvalidElapsedTime):
		return "InvalidElapsedTime"
	case errors.Is(err, race.ErrTimerNotRunning), errors.Is(err, clock.ErrNotRunning):
		return "TimerNotRunning"
	case errors.Is(err, clock.ErrAlreadyRunning):
		return "TimerAlreadyRunning"
	case errors.Is(err, clock.ErrDebounced):
		return "Debounced"
	default:
		return "BadRequest"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kindFor(err)})
}
