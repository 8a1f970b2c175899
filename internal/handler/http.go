package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/scrim-arena/internal/domain"
	"github.com/scrim-arena/internal/service"
	"github.com/scrim-arena/internal/session"
	"github.com/scrim-arena/internal/websocket"
)

// Syncer triggers a standings mirror sync cycle on demand.
type Syncer interface {
	RunOnce(ctx context.Context)
}

// Handler provides HTTP handlers for the match coordination API
type Handler struct {
	sessions  *session.Manager
	standings *service.StandingsService
	hub       *websocket.Hub
	syncer    Syncer
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(sessions *session.Manager, standings *service.StandingsService, hub *websocket.Hub, syncer Syncer, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		standings: standings,
		hub:       hub,
		syncer:    syncer,
		logger:    logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/matches", func(r chi.Router) {
			r.Post("/", h.CreateMatch)

			r.Route("/{matchID}", func(r chi.Router) {
				r.Get("/", h.GetMatch)
				r.Post("/join", h.JoinMatch)
				r.Post("/leave", h.LeaveMatch)
				r.Post("/report", h.SubmitReport)
			})
		})

		r.Route("/leaderboard/{mode}", func(r chi.Router) {
			r.Get("/", h.GetStandings)
			r.Get("/top", h.GetTopPlayers)
		})

		r.Get("/players/{playerID}", h.GetPlayerProfile)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)

		// Operational endpoints
		r.Post("/admin/sync", h.TriggerSync)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError maps an error to a status code with enough detail for the user
// to correct and retry.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrMatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrSideFull),
		errors.Is(err, domain.ErrMatchNotJoinable),
		errors.Is(err, domain.ErrReportClosed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrRankMismatch):
		status = http.StatusForbidden
	case domain.IsUserError(err):
		status = http.StatusBadRequest
	default:
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

// CreateMatchRequest opens a new match session
type CreateMatchRequest struct {
	CreatorID string `json:"creator_id"`
	Mode      int    `json:"mode"`
	Stake     int64  `json:"stake"`
	BestOf    string `json:"best_of"`
}

// CreateMatch handles POST /api/v1/matches
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	if req.CreatorID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	bestOf := domain.BestOf(req.BestOf)
	if bestOf == "" {
		bestOf = domain.BestOfOne
	}

	match, err := h.sessions.Create(r.Context(), req.CreatorID, domain.Mode(req.Mode), req.Stake, bestOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: match})
}

// GetMatch handles GET /api/v1/matches/{matchID}
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "matchID"))
	if err != nil {
		h.writeError(w, domain.ErrMatchNotFound)
		return
	}
	match, err := h.sessions.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, match)
}

// JoinMatchRequest adds a player to a match side
type JoinMatchRequest struct {
	PlayerID string `json:"player_id"`
	Side     string `json:"side"`
}

// JoinMatch handles POST /api/v1/matches/{matchID}/join
func (h *Handler) JoinMatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "matchID"))
	if err != nil {
		h.writeError(w, domain.ErrMatchNotFound)
		return
	}
	var req JoinMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	if err := h.sessions.Join(r.Context(), id, req.PlayerID, domain.Side(req.Side)); err != nil {
		h.writeError(w, err)
		return
	}
	match, err := h.sessions.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, match)
}

// LeaveMatchRequest removes a player from a forming match
type LeaveMatchRequest struct {
	PlayerID string `json:"player_id"`
}

// LeaveMatch handles POST /api/v1/matches/{matchID}/leave
func (h *Handler) LeaveMatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "matchID"))
	if err != nil {
		h.writeError(w, domain.ErrMatchNotFound)
		return
	}
	var req LeaveMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	if err := h.sessions.Leave(r.Context(), id, req.PlayerID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "left"})
}

// SubmitReportRequest carries a captain's raw score text
type SubmitReportRequest struct {
	PlayerID string `json:"player_id"`
	Scores   string `json:"scores"`
}

// SubmitReport handles POST /api/v1/matches/{matchID}/report
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "matchID"))
	if err != nil {
		h.writeError(w, domain.ErrMatchNotFound)
		return
	}
	var req SubmitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	result, err := h.sessions.SubmitReport(r.Context(), id, req.PlayerID, req.Scores)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// GetStandings handles GET /api/v1/leaderboard/{mode}
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	mode, err := parseMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	standings, err := h.standings.GetStandings(r.Context(), mode, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, standings)
}

// GetTopPlayers handles GET /api/v1/leaderboard/{mode}/top
func (h *Handler) GetTopPlayers(w http.ResponseWriter, r *http.Request) {
	mode, err := parseMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))

	players, err := h.standings.GetTopPlayers(r.Context(), mode, n)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, players)
}

// GetPlayerProfile handles GET /api/v1/players/{playerID}
func (h *Handler) GetPlayerProfile(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	profile, err := h.standings.GetPlayerProfile(r.Context(), playerID, 25)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, profile)
}

// HandleWebSocket handles GET /ws
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(h.hub, w, r, h.logger)
}

// GetWebSocketStats handles GET /api/v1/ws/stats
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"connected_clients": h.hub.ClientCount(),
		"live_sessions":     h.sessions.Count(),
	})
}

// TriggerSync handles POST /api/v1/admin/sync. It runs one standings mirror
// sync cycle and returns when the cycle finishes.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	h.syncer.RunOnce(r.Context())
	h.writeSuccess(w, map[string]string{"status": "synced"})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyCheck handles GET /ready
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// parseMode accepts "1", "2", "3" or "1v1", "2v2", "3v3"
func parseMode(raw string) (domain.Mode, error) {
	switch raw {
	case "1", "1v1":
		return domain.Mode1v1, nil
	case "2", "2v2":
		return domain.Mode2v2, nil
	case "3", "3v3":
		return domain.Mode3v3, nil
	}
	return 0, domain.ErrInvalidMode
}
