package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/service/ledger"
)

const queryDateLayout = "2006-01-02"

// MeasurementHandler exposes the weight ledger over HTTP.
type MeasurementHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

// NewMeasurementHandler constructs the HTTP handler adapter.
func NewMeasurementHandler(svc *ledger.Service, logger *zap.Logger) *MeasurementHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeasurementHandler{svc: svc, logger: logger}
}

// Append ingests a new weight measurement for the subject.
func (h *MeasurementHandler) Append(c *gin.Context) {
	subjectID := c.Param("subject")

	var in ledger.AppendInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid measurement payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	m, err := h.svc.Append(c.Request.Context(), subjectID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, m)
}

// History returns the subject's measurements, optionally bounded by
// from/to query dates (YYYY-MM-DD, inclusive).
func (h *MeasurementHandler) History(c *gin.Context) {
	subjectID := c.Param("subject")

	from, err := parseDateQuery(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := parseDateQuery(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
		return
	}

	history, err := h.svc.History(c.Request.Context(), subjectID, from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"measurements": history, "count": len(history)})
}

// Latest returns the subject's most recent active measurement.
func (h *MeasurementHandler) Latest(c *gin.Context) {
	m, err := h.svc.Latest(c.Request.Context(), c.Param("subject"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Edit applies a partial update to a measurement and cascades re-derivation.
func (h *MeasurementHandler) Edit(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid measurement id"})
		return
	}

	var in ledger.EditInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid edit payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	m, err := h.svc.Edit(c.Request.Context(), c.Param("subject"), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Delete soft-deletes a measurement; the record is kept for audit history.
func (h *MeasurementHandler) Delete(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid measurement id"})
		return
	}

	if err := h.svc.SoftDelete(c.Request.Context(), c.Param("subject"), id, c.Query("actor")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Restore returns a soft-deleted measurement to the active chain.
func (h *MeasurementHandler) Restore(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid measurement id"})
		return
	}

	if err := h.svc.Restore(c.Request.Context(), c.Param("subject"), id, c.Query("actor")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusOK)
}

func parseDateQuery(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(queryDateLayout, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
