package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/http/response"
	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/services"
)

const maxImageBytes = 10 << 20

type AnalysisHandler struct {
	Log       *logger.Logger
	Companion services.Companion
	Projects  services.ProjectCollection
}

func NewAnalysisHandler(log *logger.Logger, companion services.Companion, projects services.ProjectCollection) *AnalysisHandler {
	return &AnalysisHandler{Log: log.With("handler", "AnalysisHandler"), Companion: companion, Projects: projects}
}

type analyzeJSON struct {
	Image    string `json:"image"`
	MimeType string `json:"mimeType"`
	Prompt   string `json:"prompt"`
	Category string `json:"category"`
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", nil
	}
	mime := ""
	if strings.HasPrefix(s, "data:") {
		head, body, ok := strings.Cut(s, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data url")
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(head, "data:"), ";base64")
		s = body
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("image is not base64: %w", err)
	}
	return data, mime, nil
}

func (h *AnalysisHandler) bindAnalyze(c *gin.Context) (services.IdentifyRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes*2)

	var req services.IdentifyRequest
	var category string
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req.Prompt = c.PostForm("prompt")
		category = c.PostForm("category")
		fh, err := c.FormFile("image")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			return req, err
		}
		if fh != nil {
			if fh.Size > maxImageBytes {
				return req, fmt.Errorf("image larger than %d bytes", maxImageBytes)
			}
			f, err := fh.Open()
			if err != nil {
				return req, err
			}
			defer f.Close()
			if req.Image, err = io.ReadAll(f); err != nil {
				return req, err
			}
			req.MimeType = fh.Header.Get("Content-Type")
		}
	} else {
		var body analyzeJSON
		if err := c.ShouldBindJSON(&body); err != nil {
			return req, err
		}
		img, mime, err := decodeImage(body.Image)
		if err != nil {
			return req, err
		}
		req.Image, req.Prompt, category = img, body.Prompt, body.Category
		req.MimeType = body.MimeType
		if req.MimeType == "" {
			req.MimeType = mime
		}
	}
	cat, ok := domain.ParseCategory(category)
	if !ok {
		return req, fmt.Errorf("unknown category %q", category)
	}
	req.Category = cat
	return req, nil
}

// POST /api/analyze
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	req, err := h.bindAnalyze(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.Companion.Analyze(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, out)
}

// GET /api/analysis
func (h *AnalysisHandler) Current(c *gin.Context) {
	res, ok := h.Projects.Current()
	if !ok {
		response.RespondError(c, http.StatusNotFound, "no_analysis", errors.New("no analysis yet"))
		return
	}
	response.RespondOK(c, res)
}

// POST /api/history/:id/replay
func (h *AnalysisHandler) ReplayHistory(c *gin.Context) {
	res, err := h.Companion.ReplayHistory(c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, res)
}

// GET /api/tip
func (h *AnalysisHandler) Tip(c *gin.Context) {
	response.RespondOK(c, gin.H{"tip": h.Companion.Tip(c.Request.Context())})
}
