package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/burrow/internal/handler"
	"github.com/dukerupert/burrow/internal/middleware"
	"github.com/dukerupert/burrow/internal/store"
	ws "github.com/dukerupert/burrow/internal/websocket"
	"github.com/dukerupert/burrow/internal/wellbeing"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	wardH         *handler.WardHandler
	dutyH         *handler.DutyHandler
	familyMemberH *handler.FamilyMemberHandler
	wellbeing     *wellbeing.Service
	dutyStore     *store.DutyStore
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	wardStore := store.NewWardStore(db)
	dutyStore := store.NewDutyStore(db)
	familyMemberStore := store.NewFamilyMemberStore(db)
	wellbeingStore := store.NewWellbeingStore(db)

	wb := wellbeing.NewService(wardStore, dutyStore, wellbeingStore, logger.With("component", "wellbeing"))

	return &Server{
		db:            db,
		hub:           hub,
		wardH:         handler.NewWardHandler(wardStore, dutyStore, wb, hub, logger.With("component", "ward")),
		dutyH:         handler.NewDutyHandler(dutyStore, wardStore, familyMemberStore, wb, hub, logger.With("component", "duty")),
		familyMemberH: handler.NewFamilyMemberHandler(familyMemberStore, logger.With("component", "family_member")),
		wellbeing:     wb,
		dutyStore:     dutyStore,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// Hub returns the websocket hub so the scheduler can broadcast through it.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// DutyStore returns the duty store for the scheduler.
func (s *Server) DutyStore() *store.DutyStore {
	return s.dutyStore
}

// Wellbeing returns the wellbeing service for the scheduler.
func (s *Server) Wellbeing() *wellbeing.Service {
	return s.wellbeing
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Ward API routes
	mux.HandleFunc("POST /api/wards", s.wardH.Create)
	mux.HandleFunc("GET /api/wards", s.wardH.List)
	mux.HandleFunc("GET /api/wards/{id}", s.wardH.Get)
	mux.HandleFunc("PUT /api/wards/{id}", s.wardH.Update)
	mux.HandleFunc("DELETE /api/wards/{id}", s.wardH.Delete)
	mux.HandleFunc("GET /api/wards/{id}/wellbeing", s.wardH.Wellbeing)
	mux.HandleFunc("GET /api/catalog/{kind}", s.wardH.Catalog)

	// Duty template API routes
	mux.HandleFunc("POST /api/duties", s.dutyH.CreateTemplate)
	mux.HandleFunc("GET /api/duties", s.dutyH.ListTemplates)
	mux.HandleFunc("PUT /api/duties/{id}", s.dutyH.UpdateTemplate)
	mux.HandleFunc("PUT /api/duties/{id}/active", s.dutyH.SetTemplateActive)
	mux.HandleFunc("DELETE /api/duties/{id}", s.dutyH.DeleteTemplate)

	// Duty instance API routes
	mux.HandleFunc("GET /api/duty-instances", s.dutyH.ListInstances)
	mux.HandleFunc("POST /api/duty-instances", s.rateLimited(s.dutyH.CreateInstance))
	mux.HandleFunc("POST /api/duty-instances/{id}/start", s.dutyH.StartInstance)
	mux.HandleFunc("POST /api/duty-instances/{id}/release", s.dutyH.ReleaseInstance)
	mux.HandleFunc("POST /api/duty-instances/{id}/complete", s.dutyH.CompleteInstance)
	mux.HandleFunc("DELETE /api/duty-instances/{id}", s.dutyH.DeleteInstance)

	// Family member API routes
	mux.HandleFunc("GET /api/family-members", s.familyMemberH.List)
	mux.HandleFunc("POST /api/family-members", s.familyMemberH.Create)
	mux.HandleFunc("PUT /api/family-members/{id}", s.familyMemberH.Update)
	mux.HandleFunc("DELETE /api/family-members/{id}", s.familyMemberH.Delete)
	mux.HandleFunc("PUT /api/family-members/sort", s.familyMemberH.UpdateSortOrder)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// rateLimited caps manual instance creation per client IP so a misbehaving
// kiosk cannot flood the factory.
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 30, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
