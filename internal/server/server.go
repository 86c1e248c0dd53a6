// Package server exposes the engine to the surrounding platform over HTTP:
// the batch ingest entry point, the document-write trigger and the alert
// workflow.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/umbralrisk/umbral/internal/engine"
	"github.com/umbralrisk/umbral/internal/engine/batch"
)

// AlertReader is the alert workflow surface of the store.
type AlertReader interface {
	ListAlerts(ctx context.Context, tenantID string, limit int) ([]engine.Alert, error)
	AcknowledgeAlert(ctx context.Context, tenantID, alertID string) error
}

// OperationReader resolves stored operation state for the trigger endpoint.
type OperationReader interface {
	GetOperation(ctx context.Context, tenantID, operationID string) (*engine.Operation, error)
}

// Server wires the HTTP routes to the engine services.
type Server struct {
	logger       *zap.Logger
	recalc       *engine.Service
	orchestrator *batch.Orchestrator
	alerts       AlertReader
	operations   OperationReader
}

// NewServer creates the HTTP server.
func NewServer(
	logger *zap.Logger,
	recalc *engine.Service,
	orchestrator *batch.Orchestrator,
	alerts AlertReader,
	operations OperationReader,
) *Server {
	return &Server{
		logger:       logger,
		recalc:       recalc,
		orchestrator: orchestrator,
		alerts:       alerts,
		operations:   operations,
	}
}

// Router builds the gin engine with logging, recovery and CORS middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1/tenants/:tenant")
	{
		v1.POST("/batches", s.handleBatch)
		v1.POST("/operations/:id/recalculate", s.handleRecalculate)
		v1.GET("/alerts", s.handleListAlerts)
		v1.POST("/alerts/:id/acknowledge", s.handleAcknowledgeAlert)
	}
	return router
}
