package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe is one dependency the healthcheck pings, e.g. redis when it backs the store.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	probes []Probe
}

func NewHealthHandler(probes ...Probe) *HealthHandler {
	return &HealthHandler{probes: probes}
}

// GET /healthcheck
// Plain "ok", or 503 listing the probes that failed.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var failed []string
	for _, p := range h.probes {
		if p.Check == nil {
			continue
		}
		if err := p.Check(ctx); err != nil {
			failed = append(failed, p.Name+": "+err.Error())
		}
	}
	if len(failed) > 0 {
		c.String(http.StatusServiceUnavailable, strings.Join(failed, "\n"))
		return
	}
	c.String(http.StatusOK, "ok")
}
