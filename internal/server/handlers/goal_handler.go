package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/domain/models"
	"github.com/showbarn/growthengine/internal/service/goals"
)

// GoalHandler exposes goal management over HTTP.
type GoalHandler struct {
	svc    *goals.Tracker
	logger *zap.Logger
}

// NewGoalHandler constructs the HTTP handler adapter.
func NewGoalHandler(svc *goals.Tracker, logger *zap.Logger) *GoalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoalHandler{svc: svc, logger: logger}
}

// Create registers a new target-weight goal for the subject.
func (h *GoalHandler) Create(c *gin.Context) {
	var in goals.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid goal payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	goal, err := h.svc.Create(c.Request.Context(), c.Param("subject"), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, goal)
}

// List returns every goal for the subject.
func (h *GoalHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Param("subject"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": list, "count": len(list)})
}

// Cancel cancels an active or paused goal.
func (h *GoalHandler) Cancel(c *gin.Context) {
	h.transition(c, h.svc.Cancel)
}

// Pause pauses an active goal.
func (h *GoalHandler) Pause(c *gin.Context) {
	h.transition(c, h.svc.Pause)
}

// Resume returns a paused goal to active.
func (h *GoalHandler) Resume(c *gin.Context) {
	h.transition(c, h.svc.Resume)
}

func (h *GoalHandler) transition(c *gin.Context, fn func(context.Context, string, primitive.ObjectID) (*models.Goal, error)) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal id"})
		return
	}

	goal, err := fn(c.Request.Context(), c.Param("subject"), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, goal)
}
