// Package server exposes the face identity and attendance operations over
// HTTP using gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrCodeEU/attendface/pkg/attendance"
	"github.com/MrCodeEU/attendface/pkg/auth"
	"github.com/MrCodeEU/attendface/pkg/config"
	"github.com/MrCodeEU/attendface/pkg/database"
	"github.com/MrCodeEU/attendface/pkg/logging"
	"github.com/MrCodeEU/attendface/pkg/matching"
	"github.com/MrCodeEU/attendface/pkg/storage"
)

// FaceService is the matching engine as seen by the handlers.
type FaceService interface {
	Enroll(ctx context.Context, key int64, image []byte) (*storage.Embedding, error)
	Recognize(ctx context.Context, image []byte) (*matching.MatchResult, error)
	Verify(ctx context.Context, key int64, image []byte) (*matching.VerifyResult, error)
	Delete(ctx context.Context, key int64) (bool, error)
}

// Directory resolves display names for recognized identities.
type Directory interface {
	DisplayName(ctx context.Context, id int64) (string, error)
}

// Authenticator backs the account endpoints and RequireAuth.
type Authenticator interface {
	Signup(ctx context.Context, req auth.SignupRequest) (*database.User, error)
	Signin(ctx context.Context, email, password string) (*auth.Session, error)
	CurrentUser(ctx context.Context, token string) (*database.User, error)
}

// AttendanceService backs the attendance endpoints.
type AttendanceService interface {
	CheckIn(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error)
	CheckOut(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error)
	Scan(ctx context.Context, userID int64, now time.Time) (*attendance.ScanResult, error)
	History(ctx context.Context, userID int64, f attendance.Filter) ([]database.AttendanceRecord, error)
	WorkingHours(ctx context.Context, userID int64, from, to time.Time) (map[string]float64, error)
}

// Services are the collaborators the handlers call. Faces is required;
// the account and attendance routes are only mounted when Auth and
// Attendance are set.
type Services struct {
	Faces      FaceService
	Directory  Directory
	Auth       Authenticator
	Attendance AttendanceService
	Health     []HealthCheck
}

// Server is the HTTP front end.
type Server struct {
	cfg        config.ServerConfig
	services   Services
	router     *gin.Engine
	httpServer *http.Server
	now        func() time.Time
}

// New builds the router and the underlying http.Server.
func New(cfg config.ServerConfig, services Services) (*Server, error) {
	if services.Faces == nil {
		return nil, errors.New("server: face service is required")
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	s := &Server{
		cfg:      cfg,
		services: services,
		router:   router,
		now:      time.Now,
	}

	router.Use(RequestID())
	router.Use(AccessLog())
	router.Use(Recovery())
	router.Use(CORS(cfg.AllowedOrigins))
	router.Use(Timeout(time.Duration(cfg.RequestTimeout) * time.Second))
	router.Use(LimitBody(cfg.MaxUploadBytes))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RequestTimeout+5) * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	api.GET("/health", s.health)

	api.POST("/register-face", s.registerFace)
	api.POST("/recognize", s.recognize)
	api.POST("/verify", s.verify)
	api.DELETE("/faces/:user_id", s.deleteFace)

	log := logging.Component("server")

	if s.services.Auth != nil {
		api.POST("/auth/signup", s.signup)
		api.POST("/auth/signin", s.signin)
		api.GET("/me", RequireAuth(s.services.Auth), s.me)
	} else {
		log.Warn("No authenticator configured, account routes disabled")
	}

	if s.services.Attendance != nil {
		api.POST("/attendance/face-scan", s.faceScan)
		if s.services.Auth != nil {
			protected := api.Group("/attendance", RequireAuth(s.services.Auth))
			protected.POST("/checkin", s.checkIn)
			protected.POST("/checkout", s.checkOut)
			protected.GET("/history", s.history)
			protected.GET("/working-hours", s.workingHours)
		}
	} else {
		log.Warn("No attendance service configured, attendance routes disabled")
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logging.Component("server").Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Component("server").Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Handler returns the router for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}
