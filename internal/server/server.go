package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"satnorm/internal/config"
	"satnorm/internal/handler"
	"satnorm/internal/repository"
	"satnorm/internal/service"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger
}

// NewStore builds the results store selected by cfg.App.Store.
func NewStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	switch cfg.App.Store {
	case config.StoreS3:
		store, err := repository.NewS3Repository(ctx, &cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 repository: %w", err)
		}
		return store, nil
	default:
		return repository.NewFSRepository(cfg.App.ResultsDir, log)
	}
}

// NewRouter wires handlers onto a gin engine.
func NewRouter(h *handler.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/normalize", h.Normalize)
		api.GET("/runs/:run/images", h.ListResults)
		api.GET("/runs/:run/images/:name", h.DownloadResult)
	}

	return router
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	store, err := NewStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	normalizeService := service.NewNormalizeService(store, cfg.Normalize.Options(), log)

	h := handler.NewHandler(normalizeService, cfg, log)
	router := NewRouter(h)
	router.MaxMultipartMemory = cfg.App.MaxUploadSize

	server := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1 MB
		},
		cfg: cfg,
		log: log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.App.Store))

	return server, nil
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
