package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/certsmith/certportal/internal/api/handlers"
	"github.com/certsmith/certportal/internal/api/middleware"
	"github.com/certsmith/certportal/internal/config"
	"github.com/certsmith/certportal/internal/db/repository"
	"github.com/certsmith/certportal/internal/service"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	issuer *service.Issuer,
	certRepo *repository.CertRepository,
) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	certHandler := handlers.NewCertHandler(issuer, certRepo)

	certs := router.Group("/certs")
	{
		certs.GET("", certHandler.List)
		certs.POST("", certHandler.Create)
		certs.GET("/:id/download.pem", certHandler.DownloadPEM)
		certs.GET("/:id/download.p12", certHandler.DownloadP12)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

// Handler returns the router wrapped with the CORS allow-list.
func (s *Server) Handler() http.Handler {
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   s.config.Server.CORSAllowOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return corsMiddleware.Handler(s.router)
}

// Run starts the HTTP server
func (s *Server) Run() error {
	return http.ListenAndServe(s.config.Server.ListenAddr, s.Handler())
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
