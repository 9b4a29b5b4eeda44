package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/middleware"
	"github.com/mental-health-navigator/high-tea/internals/upstream"
)

// Ingestion is the part of the ingestion API the handlers need.
type Ingestion interface {
	ForwardJSON(ctx context.Context, payload map[string]any, userEmail string) (*upstream.Forwarded, error)
	IngestText(ctx context.Context, text string) (*upstream.TextExtraction, error)
}

type IngestController struct {
	Ingestion Ingestion
	Log       logging.Logger
}

func NewIngestController(ingestion Ingestion, log logging.Logger) *IngestController {
	return &IngestController{Ingestion: ingestion, Log: log}
}

// Ingest forwards a service form on behalf of the verified user and relays
// the upstream answer unchanged.
func (i *IngestController) Ingest(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized - Authentication required"})
		return
	}

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	fwd, err := i.Ingestion.ForwardJSON(c.Request.Context(), payload, claims.Email)
	if err != nil {
		i.Log.Error(c.Request.Context(), "Ingestion proxy failed", "email", claims.Email, "error", err)

		var apiErr *upstream.Error
		if errors.As(err, &apiErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "detail": apiErr.Detail()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "detail": err.Error()})
		return
	}

	i.Log.Info(c.Request.Context(), "Service submitted", "email", claims.Email, "status", fwd.Status)
	c.Data(fwd.Status, "application/json", fwd.Body)
}

// IngestText returns the structured preview extracted from a free-text
// service description.
func (i *IngestController) IngestText(c *gin.Context) {
	var body struct {
		TextInput string `json:"text_input"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if strings.TrimSpace(body.TextInput) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text_input is required"})
		return
	}

	res, err := i.Ingestion.IngestText(c.Request.Context(), body.TextInput)
	if err != nil {
		i.Log.Error(c.Request.Context(), "Text extraction failed", "error", err)

		var apiErr *upstream.Error
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Detail()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Ingestion API is unavailable"})
		return
	}
	c.JSON(http.StatusOK, res)
}
