// Package proxy implements the streaming relay: the enrichment-driven chat
// endpoint and the byte-transparent passthrough for everything else.
package proxy

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/liliang-cn/ragproxy/internal/client"
	"github.com/liliang-cn/ragproxy/internal/domain"
	"github.com/liliang-cn/ragproxy/internal/observability"
	"github.com/liliang-cn/ragproxy/internal/service"
	"go.uber.org/zap"
)

// Handler relays chat requests through the enrichment pipeline to the
// inference backend and forwards every other request untouched.
type Handler struct {
	backend     *client.Ollama
	deps        service.CoordinatorDeps
	maxBody     int64
	metrics     *observability.Metrics
	logger      *zap.Logger
	proxyClient *http.Client
}

// NewHandler creates the relay handler.
func NewHandler(backend *client.Ollama, deps service.CoordinatorDeps, maxBody int64, metrics *observability.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		backend: backend,
		deps:    deps,
		maxBody: maxBody,
		metrics: metrics,
		logger:  logger,
		// No global timeout: passthrough responses stream for as long as
		// the backend generates.
		proxyClient: &http.Client{},
	}
}

// Chat handles POST /api/chat: normalize, enrich concurrently under the
// coordinator deadline, then relay the backend's NDJSON stream. The stream
// opens before enrichment completes so progress lines reach the client with
// minimal latency.
func (h *Handler) Chat(c *gin.Context) {
	requestID := uuid.New().String()
	logger := h.logger.With(zap.String("request_id", requestID))

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			logger.Error("request body over limit", zap.Int64("limit", h.maxBody))
			h.count("chat", http.StatusRequestEntityTooLarge)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "请求体过大，超过服务器限制",
				"details": fmt.Sprintf("请求体大小超过 %d MB 的限制，请尝试压缩图片或减少发送的数据量", h.maxBody/1024/1024),
			})
			return
		}
		logger.Error("failed to read request body", zap.Error(err))
		h.count("chat", http.StatusBadRequest)
		c.String(http.StatusBadRequest, "读取请求体失败")
		return
	}

	req, err := service.Normalize(body)
	if err != nil {
		logger.Error("malformed request body", zap.Error(err))
		h.count("chat", http.StatusBadRequest)
		c.String(http.StatusBadRequest, "无效的JSON格式")
		return
	}
	req.RequestID = requestID
	logger.Info("chat request accepted",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)))

	c.Header("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	w := newStreamWriter(c.Writer)
	w.Flush()

	if h.metrics != nil {
		h.metrics.ActiveStreams.Inc()
		defer h.metrics.ActiveStreams.Dec()
	}

	sink := func(msg string) error {
		return w.WriteEnvelope(domain.NewDeltaEnvelope(req.Model, "<info> "+msg+"</info>\n"))
	}

	coord := service.NewCoordinator(h.deps, req, sink)
	enriched, terminated := coord.Run(c.Request.Context())
	if terminated {
		// Short-circuit: the client keeps the progress already emitted and
		// sees a cleanly closed transport, no inference call.
		logger.Warn("request terminated during enrichment")
		h.count("chat", http.StatusOK)
		return
	}

	_ = sink("增强处理完成，正在生成回答...")

	payload, err := enriched.BackendBody()
	if err != nil {
		logger.Error("failed to marshal backend body", zap.Error(err))
		_ = w.WriteEnvelope(errorTerminal(req.Model, err.Error()))
		return
	}

	resp, err := h.backend.ChatStream(c.Request.Context(), payload)
	if err != nil {
		logger.Error("backend transport failure", zap.Error(err))
		h.count("chat", http.StatusBadGateway)
		_ = w.WriteEnvelope(errorTerminal(req.Model, err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		logger.Error("backend error response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		h.count("chat", resp.StatusCode)
		_ = w.WriteEnvelope(errorTerminal(req.Model, string(raw)))
		return
	}

	// Relay the backend's NDJSON verbatim; the backend's own final object is
	// the stream's single done=true terminal.
	sawDone := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if lineIsTerminal(line) {
			sawDone = true
		}
		if err := w.WriteLine(line); err != nil {
			logger.Warn("client write failed, dropping stream", zap.Error(err))
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("backend stream read failed", zap.Error(err))
		if !sawDone {
			_ = w.WriteEnvelope(errorTerminal(req.Model, err.Error()))
		}
		return
	}
	if !sawDone {
		// The backend closed cleanly without a terminal; the client still
		// gets exactly one.
		logger.Warn("backend stream ended without terminal, appending one")
		_ = w.WriteEnvelope(domain.NewTerminalEnvelope(req.Model))
	}
	h.count("chat", http.StatusOK)
	logger.Info("chat request completed")
}

// Forward handles every non-chat request as a transparent reverse proxy:
// method, headers, query string, and body reach the backend unchanged, and
// the backend's response streams back with its own status and headers.
func (h *Handler) Forward(c *gin.Context) {
	target := h.backend.BaseURL() + c.Request.URL.Path
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, c.Request.Body)
	if err != nil {
		h.count("forward", http.StatusInternalServerError)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	req.Header = c.Request.Header.Clone()

	resp, err := h.proxyClient.Do(req)
	if err != nil {
		h.logger.Error("passthrough forward failed",
			zap.String("path", c.Request.URL.Path), zap.Error(err))
		h.count("forward", http.StatusInternalServerError)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	header := c.Writer.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	c.Writer.WriteHeader(resp.StatusCode)

	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				return
			}
			c.Writer.Flush()
		}
		if readErr != nil {
			break
		}
	}
	h.count("forward", resp.StatusCode)
}

// lineIsTerminal reports whether one backend NDJSON line is the done=true
// terminal, tolerating any encoding of the object.
func lineIsTerminal(line []byte) bool {
	var frame struct {
		Done bool `json:"done"`
	}
	return json.Unmarshal(line, &frame) == nil && frame.Done
}

// errorTerminal builds the terminal-shaped envelope that surfaces a backend
// error to the client.
func errorTerminal(model, text string) domain.StreamEnvelope {
	env := domain.NewTerminalEnvelope(model)
	env.Message = &domain.EnvelopeMessage{
		Role:    "assistant",
		Content: "[错误] " + text,
	}
	return env
}

func (h *Handler) count(route string, status int) {
	if h.metrics != nil {
		h.metrics.CountRequest(route, strconv.Itoa(status))
	}
}
