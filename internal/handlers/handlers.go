package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/quality-check/internal/prediction"
	"github.com/example/quality-check/internal/repository"
	"github.com/example/quality-check/internal/usecase"
)

// Analysis outcomes reported to the Recorder.
const (
	OutcomeOK                = "ok"
	OutcomeClientError       = "client_error"
	OutcomeParseError        = "parse_error"
	OutcomeCollaboratorError = "collaborator_error"
)

// Analyzer runs a single image analysis.
type Analyzer interface {
	Analyze(ctx context.Context, imageKey string) (string, *repository.AnalysisRecord, error)
}

// HistoryProvider lists and aggregates stored analyses.
type HistoryProvider interface {
	History(ctx context.Context) ([]repository.AnalysisRecord, error)
	Summary(ctx context.Context) (*usecase.HistorySummary, error)
}

// Recorder observes analysis outcomes.
type Recorder interface {
	RecordAnalysis(outcome, status string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAnalysis(string, string) {}

type analyzeResponse struct {
	ImageKey   string `json:"imageKey"`
	Status     string `json:"status"`
	Confidence string `json:"confidence"`
	ImageURL   string `json:"imageUrl"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Any middleware
// given (authentication) guards the analysis and history routes only.
func RegisterRoutes(router *gin.Engine, analyzer Analyzer, history HistoryProvider, recorder Recorder, middleware ...gin.HandlerFunc) {
	if recorder == nil {
		recorder = noopRecorder{}
	}

	router.Use(CORSMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/", middleware...)
	api.POST("/analyze", jsonContentType(), analyzeHandler(analyzer, recorder))
	api.GET("/history", historyHandler(history))
	api.GET("/history/summary", summaryHandler(history))
}

// CORSMiddleware allows any origin and answers preflight requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// jsonContentType pins the bare media type; gin keeps a preset value.
func jsonContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.Next()
	}
}

func analyzeHandler(analyzer Analyzer, recorder Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			recorder.RecordAnalysis(OutcomeClientError, "")
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBodyFormat})
			return
		}

		req, err := DecodeAnalyzeRequest(body)
		if err != nil {
			recorder.RecordAnalysis(OutcomeClientError, "")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		requestID, record, err := analyzer.Analyze(c.Request.Context(), req.ImageKey)
		if requestID != "" {
			c.Header("X-Request-ID", requestID)
		}
		if err != nil {
			status, outcome, message := mapAnalyzeError(err)
			recorder.RecordAnalysis(outcome, "")
			c.JSON(status, gin.H{"error": message})
			return
		}

		recorder.RecordAnalysis(OutcomeOK, record.Status)
		c.JSON(http.StatusOK, analyzeResponse{
			ImageKey:   record.ImageKey,
			Status:     record.Status,
			Confidence: record.Confidence.String(),
			ImageURL:   record.ImageURL,
		})
	}
}

func mapAnalyzeError(err error) (int, string, string) {
	var inputErr *ClientInputError
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, OutcomeClientError, inputErr.Message
	case errors.Is(err, usecase.ErrImageKeyRequired):
		return http.StatusBadRequest, OutcomeClientError, msgMissingImageKey
	}

	outcome := OutcomeCollaboratorError
	var parseErr *prediction.ParseError
	if errors.As(err, &parseErr) {
		outcome = OutcomeParseError
	}
	return http.StatusInternalServerError, outcome, "Error processing request: " + err.Error()
}

func historyHandler(history HistoryProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := history.History(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func summaryHandler(history HistoryProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := history.Summary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
