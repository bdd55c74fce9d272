package httpapi

import (
	"net/http"
	"strings"

	"github.com/convert-iq/convertiq/internal/config"
	"github.com/convert-iq/convertiq/internal/pipeline"
	"github.com/convert-iq/convertiq/internal/ratelimit"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GenerateHandler serves the rate-limited generation endpoints.
type GenerateHandler struct {
	runner  *pipeline.Runner
	limiter *ratelimit.Manager
	rateCfg config.RateLimitConfig
}

// NewGenerateHandler constructs a GenerateHandler.
func NewGenerateHandler(runner *pipeline.Runner, limiter *ratelimit.Manager, rateCfg config.RateLimitConfig) *GenerateHandler {
	return &GenerateHandler{runner: runner, limiter: limiter, rateCfg: rateCfg}
}

// generateRequest defines the request body for generation endpoints.
type generateRequest struct {
	ProductInfo string `json:"product_info"`
}

// rateLimitInfo is appended to successful generation responses.
type rateLimitInfo struct {
	RemainingRequests int `json:"remaining_requests"`
}

// generateResponse is a pipeline result plus rate-limit metadata.
type generateResponse struct {
	pipeline.Result
	RateLimit rateLimitInfo `json:"rate_limit"`
}

// Generate runs the full four-stage chain.
func (h *GenerateHandler) Generate(c *gin.Context) {
	h.handle(c, pipeline.AllStages())
}

// GeneratePrompt1 runs only the analysis stage, warming the cache.
func (h *GenerateHandler) GeneratePrompt1(c *gin.Context) {
	h.handle(c, pipeline.AnalysisOnly())
}

func (h *GenerateHandler) handle(c *gin.Context, stages pipeline.Stages) {
	user := contextUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var body generateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	productInfo := strings.TrimSpace(body.ProductInfo)
	if productInfo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing product_info"})
		return
	}

	ctx := c.Request.Context()

	allowed := h.limiter.Allow(ctx, ratelimit.Key(user.ID), h.rateCfg.PerUser, h.rateCfg.Window)
	if !allowed.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":              "Rate limit exceeded",
			"remaining_requests": 0,
			"reset_in_seconds":   int(h.rateCfg.Window.Seconds()),
		})
		return
	}

	result, errRun := h.runner.Run(ctx, user.ID, productInfo, stages)
	if errRun != nil {
		log.WithError(errRun).WithField("user_id", user.ID).Error("generation pipeline failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errRun.Error()})
		return
	}

	c.JSON(http.StatusOK, generateResponse{
		Result:    result,
		RateLimit: rateLimitInfo{RemainingRequests: allowed.Remaining},
	})
}
