package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/fieldworkshq/surveysync/internal/metrics"
	"github.com/fieldworkshq/surveysync/internal/relay"
	"github.com/fieldworkshq/surveysync/internal/store"
	"github.com/fieldworkshq/surveysync/internal/survey"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingRouter = errors.New("mutation router dependency required")
	errMissingStore  = errors.New("state store dependency required")
)

// Dependencies collects everything the HTTP layer needs.
type Dependencies struct {
	Router  *relay.Router
	Store   *store.StateStore
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// NewHTTPHandler builds the relay's HTTP surface: the WebSocket endpoint,
// the REST fallback, the health check and the metrics endpoint. REST writes
// run through the same mutation router as WebSocket commands, so they
// persist and broadcast identically.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Router == nil {
		return nil, errMissingRouter
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		relayRouter: deps.Router,
		stateStore:  deps.Store,
		logger:      logger,
		metrics:     deps.Metrics,
		clock:       clock,
	}

	router.GET("/health", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.GET("/ws", handler.handleWebSocket)

	api := router.Group("/api")
	api.GET("/surveys", handler.handleListSurveys)
	api.POST("/surveys", handler.handleCreateSurvey)
	api.PUT("/surveys/:id", handler.handleReplaceSurvey)
	api.DELETE("/surveys/:id", handler.handleDeleteSurvey)
	api.GET("/files", handler.handleListFiles)

	return router, nil
}

type httpHandler struct {
	relayRouter *relay.Router
	stateStore  *store.StateStore
	logger      *zap.Logger
	metrics     *metrics.Metrics
	clock       func() time.Time
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	})
}

func (h *httpHandler) handleListSurveys(c *gin.Context) {
	c.JSON(http.StatusOK, h.stateStore.Snapshot().Surveys)
}

func (h *httpHandler) handleListFiles(c *gin.Context) {
	c.JSON(http.StatusOK, h.stateStore.Snapshot().Files)
}

func (h *httpHandler) handleCreateSurvey(c *gin.Context) {
	var record survey.Survey
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	added, applied := h.relayRouter.AddSurvey(record)
	if !applied {
		c.JSON(http.StatusConflict, gin.H{"error": "survey_exists"})
		return
	}
	c.JSON(http.StatusOK, added)
}

func (h *httpHandler) handleReplaceSurvey(c *gin.Context) {
	var record survey.Survey
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	record.ID = c.Param("id")

	updated, applied := h.relayRouter.UpdateSurvey(record)
	if !applied {
		c.JSON(http.StatusNotFound, gin.H{"error": "Survey not found"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteSurvey(c *gin.Context) {
	h.relayRouter.DeleteSurvey(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
