package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pushrelay/internal/dispatch"
	"pushrelay/internal/postback"
	"pushrelay/internal/registry"
)

type Deps struct {
	Logger    *log.Logger
	AuthToken string
	Registry  *registry.Registry
	Dispatch  *dispatch.Engine
	Queue     *postback.Queue
}

type server struct {
	logger    *log.Logger
	authToken string
	registry  *registry.Registry
	dispatch  *dispatch.Engine
	queue     *postback.Queue
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := server{
		logger:    d.Logger,
		authToken: d.AuthToken,
		registry:  d.Registry,
		dispatch:  d.Dispatch,
		queue:     d.Queue,
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		// Token is checked before the upgrade inside the handler; browsers
		// cannot set headers on a websocket handshake.
		r.Get("/ws", s.handleWS)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/dispatch", s.handleDispatch)
			r.Post("/postbacks", s.handleEnqueuePostback)
			r.Get("/postbacks", s.handleListPostbacks)
			r.Get("/postbacks/{id}", s.handleGetPostback)
			r.Get("/connections", s.handleConnections)
			r.Get("/channels/{channel}", s.handleChannelStats)
		})
	})
	return r
}

func (s server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

type dispatchRequest struct {
	Channel string `json:"channel"`
	UserID  string `json:"userId"`
	Event   string `json:"event"`
	Data    any    `json:"data"`
}

func (s server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid json: " + err.Error()})
		return
	}

	req.Channel = strings.TrimSpace(req.Channel)
	req.UserID = strings.TrimSpace(req.UserID)
	if strings.TrimSpace(req.Event) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "event is required"})
		return
	}
	if req.Channel == "" && req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "at least one of channel or userId is required"})
		return
	}

	count := s.dispatch.Dispatch(req.Channel, req.UserID, req.Event, req.Data)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "event dispatched",
		"dispatchedCount": count,
	})
}

type enqueueRequest struct {
	PostbackURL string            `json:"postbackUrl"`
	Payload     json.RawMessage   `json:"payload"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
}

var allowedPostbackMethods = map[string]struct{}{
	http.MethodGet:   {},
	http.MethodPost:  {},
	http.MethodPut:   {},
	http.MethodPatch: {},
}

func (s server) handleEnqueuePostback(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid json: " + err.Error()})
		return
	}

	req.PostbackURL = strings.TrimSpace(req.PostbackURL)
	if req.PostbackURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "postbackUrl is required"})
		return
	}
	parsed, err := url.Parse(req.PostbackURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "postbackUrl must be an absolute http(s) url"})
		return
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method != "" {
		if _, ok := allowedPostbackMethods[method]; !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "method must be one of GET, POST, PUT, PATCH"})
			return
		}
	}

	item, err := s.queue.Enqueue(r.Context(), postback.Job{
		URL:     req.PostbackURL,
		Method:  method,
		Payload: req.Payload,
		Headers: req.Headers,
	})
	if err != nil {
		logError(r.Context(), s.logger, "enqueue postback failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "failed to enqueue postback"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "postback queued",
		"queueId": item.ID,
	})
}

type postbackDTO struct {
	ID          string `json:"id"`
	PostbackURL string `json:"postbackUrl"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	Retries     int    `json:"retries"`
	LastError   string `json:"lastError,omitempty"`
}

func toPostbackDTO(item postback.Item) postbackDTO {
	return postbackDTO{
		ID:          item.ID,
		PostbackURL: item.URL,
		Method:      item.Method,
		Status:      string(item.Status),
		CreatedAt:   item.CreatedAt.Format(time.RFC3339Nano),
		Retries:     item.Retries,
		LastError:   item.LastError,
	}
}

func (s server) handleGetPostback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := s.queue.Get(r.Context(), id)
	if errors.Is(err, postback.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "postback not found"})
		return
	}
	if err != nil {
		logError(r.Context(), s.logger, "get postback failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, toPostbackDTO(item))
}

func (s server) handleListPostbacks(w http.ResponseWriter, r *http.Request) {
	items, err := s.queue.List(r.Context())
	if err != nil {
		logError(r.Context(), s.logger, "list postbacks failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}

	out := make([]postbackDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toPostbackDTO(item))
	}
	writeJSON(w, http.StatusOK, out)
}

type connectionDTO struct {
	SocketID    string    `json:"socketId"`
	Channel     string    `json:"channel"`
	UserID      string    `json:"userId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func (s server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	conns := s.registry.All()
	out := make([]connectionDTO, 0, len(conns))
	for _, conn := range conns {
		out = append(out, connectionDTO{
			SocketID:    conn.ID,
			Channel:     conn.Channel,
			UserID:      conn.UserID,
			ConnectedAt: conn.ConnectedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalConnections": len(out),
		"connections":      out,
	})
}

func (s server) handleChannelStats(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	stats := s.registry.Stats(channel)
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":     channel,
		"userCount":   stats.UserCount,
		"socketCount": stats.SocketCount,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
