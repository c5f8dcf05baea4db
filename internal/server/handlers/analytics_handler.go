package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/showbarn/growthengine/internal/service/analysis"
	"github.com/showbarn/growthengine/internal/service/statistics"
)

const defaultTrendWindowDays = 30

// AnalyticsHandler exposes the read-only analysis and statistics endpoints.
type AnalyticsHandler struct {
	analyzer *analysis.Analyzer
	cache    *statistics.Cache
	logger   *zap.Logger
}

// NewAnalyticsHandler constructs the HTTP handler adapter.
func NewAnalyticsHandler(analyzer *analysis.Analyzer, cache *statistics.Cache, logger *zap.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{analyzer: analyzer, cache: cache, logger: logger}
}

// Trend classifies the subject's weight trend over the requested window.
func (h *AnalyticsHandler) Trend(c *gin.Context) {
	windowDays := defaultTrendWindowDays
	if raw := c.Query("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window_days must be a positive integer"})
			return
		}
		windowDays = parsed
	}

	result, err := h.analyzer.Trend(c.Request.Context(), c.Param("subject"), windowDays)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Outliers returns the measurements flagged by the z-score check.
func (h *AnalyticsHandler) Outliers(c *gin.Context) {
	outliers, err := h.analyzer.DetectOutliers(c.Request.Context(), c.Param("subject"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outliers": outliers, "count": len(outliers)})
}

// Statistics returns the subject's snapshot. fresh=true forces an inline
// recalculation of a stale snapshot.
func (h *AnalyticsHandler) Statistics(c *gin.Context) {
	fresh := c.Query("fresh") == "true"

	snap, err := h.cache.Get(c.Request.Context(), c.Param("subject"), fresh)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
