package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/upstream"
)

// Navigator is the part of the navigator API the handlers need.
type Navigator interface {
	SendChatMessage(ctx context.Context, message, sessionID string) (*upstream.ChatReply, error)
	SearchServices(ctx context.Context, req upstream.SearchRequest) (*upstream.SearchResult, error)
	CheckHealth(ctx context.Context) bool
}

type NavigatorController struct {
	Navigator Navigator
	Log       logging.Logger
}

func NewNavigatorController(navigator Navigator, log logging.Logger) *NavigatorController {
	return &NavigatorController{Navigator: navigator, Log: log}
}

// ChatMessage is one transcript entry returned to the client.
type ChatMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the body of a successful POST /api/chat.
type ChatResponse struct {
	Message              ChatMessage          `json:"message"`
	Services             []upstream.SearchHit `json:"services"`
	Top1Similarity       float64              `json:"top1_similarity"`
	DisambiguationNeeded bool                 `json:"disambiguation_needed"`
	RequestServiceChange bool                 `json:"request_service_change"`
	SessionID            string               `json:"sessionId"`
	ConversationLength   int                  `json:"conversationLength"`
}

func (n *NavigatorController) Chat(c *gin.Context) {
	var body struct {
		Message   string `json:"message"`
		SessionID string `json:"sessionId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	reply, err := n.Navigator.SendChatMessage(c.Request.Context(), body.Message, body.SessionID)
	if err != nil {
		n.upstreamFailure(c, "chat", err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Message: ChatMessage{
			ID:      uuid.New().String(),
			Role:    "assistant",
			Content: strings.TrimSpace(reply.Reply),
		},
		Services:             reply.Services,
		Top1Similarity:       reply.Top1Similarity,
		DisambiguationNeeded: reply.DisambiguationNeeded,
		RequestServiceChange: reply.RequestServiceChange,
		SessionID:            reply.SessionID,
		ConversationLength:   reply.ConversationLength,
	})
}

func (n *NavigatorController) Search(c *gin.Context) {
	var body upstream.SearchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}

	res, err := n.Navigator.SearchServices(c.Request.Context(), body)
	if err != nil {
		n.upstreamFailure(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (n *NavigatorController) Health(c *gin.Context) {
	if !n.Navigator.CheckHealth(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (n *NavigatorController) upstreamFailure(c *gin.Context, op string, err error) {
	n.Log.Error(c.Request.Context(), "Navigator request failed", "op", op, "error", err)

	var apiErr *upstream.Error
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Mental Health API error", "detail": apiErr.Detail()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": "Mental Health API is unavailable"})
}
