package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"smartsolve/auth"
	"smartsolve/contract"
	"smartsolve/errors"
	"smartsolve/services"
	"smartsolve/sink"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type Config struct {
	ConnectionBufferSize int
	WriteTimeout         time.Duration
	PongTimeout          time.Duration
	AllowedOrigins       []string
}

// HealthCheck reports whether the durable store is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	router        *mux.Router
	handler       http.Handler
	log           *slog.Logger
	gate          contract.IGate
	messaging     services.IMessagingService
	notifications services.INotificationService
	sessions      services.ISessionService
	health        HealthCheck
	validate      *validator.Validate
	config        Config

	liveMu    sync.Mutex
	live      sync.WaitGroup
	liveSinks map[*sink.ConnectionSink]struct{}
	draining  bool
}

type ResponseMsg struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func NewServer(log *slog.Logger, gate contract.IGate, messaging services.IMessagingService,
	notifications services.INotificationService, sessions services.ISessionService,
	health HealthCheck, config Config) *Server {
	if config.ConnectionBufferSize <= 0 {
		config.ConnectionBufferSize = 16
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = time.Minute
	}
	s := &Server{
		router:        mux.NewRouter(),
		log:           log,
		gate:          gate,
		messaging:     messaging,
		notifications: notifications,
		sessions:      sessions,
		health:        health,
		validate:      validator.New(),
		config:        config,
		liveSinks:     make(map[*sink.ConnectionSink]struct{}),
	}
	s.RegisterRoutes()
	s.handler = CORS(config.AllowedOrigins)(s.router)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRoutes() {
	s.router.HandleFunc("/health", s.HandleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.HandleLive()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(s.gate))

	// unread/count must be declared before the {withUser} catch-all
	api.HandleFunc("/messages/unread/count", s.HandleUnreadCount()).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.HandleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/messages/{withUser}", s.HandleGetConversation()).Methods(http.MethodGet)
	api.HandleFunc("/messages/{messageId}/read", s.HandleMarkRead()).Methods(http.MethodPut)
	api.HandleFunc("/messages/{messageId}", s.HandleDeleteMessage()).Methods(http.MethodDelete)

	api.HandleFunc("/notifications", s.HandlePendingNotifications()).Methods(http.MethodGet)
	api.Handle("/notifications/broadcast", RequireRole(auth.RoleProducer, auth.RoleAdmin)(s.HandleBroadcast())).
		Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/ack", s.HandleAcknowledge()).Methods(http.MethodPut)
}

func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.health(r.Context()); err != nil {
			s.log.Warn("Health check failed", "error", err)
			s.respond(w, nil, http.StatusServiceUnavailable, err)
			return
		}
		s.respond(w, "ok", http.StatusOK, nil)
	}
}

// fail maps the error taxonomy to a status. Internal failures never leak their cause.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.MapToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.respond(w, nil, status, errInternal)
		return
	}
	s.respond(w, nil, status, err)
}

func (s *Server) respond(w http.ResponseWriter, data any, status int, err error) {
	if err := writeResponse(w, data, status, err); err != nil {
		s.log.Error("Unable to encode response", "error", err)
	}
}

// writeResponse wraps data, or the error message, in a ResponseMsg envelope.
func writeResponse(w http.ResponseWriter, data any, status int, err error) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := ResponseMsg{Message: "success", Data: data}
	if err != nil {
		resp = ResponseMsg{Message: err.Error()}
	}
	return json.NewEncoder(w).Encode(resp)
}
