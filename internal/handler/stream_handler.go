package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/coscribe/internal/pkg/errcode"
	"github.com/xxxsen/coscribe/internal/pkg/response"
	"github.com/xxxsen/coscribe/internal/protocol"
	"github.com/xxxsen/coscribe/internal/service"
	"github.com/xxxsen/coscribe/internal/stream"
)

type StreamHandler struct {
	generation *service.GenerationService
	bridge     *stream.Bridge
}

func NewStreamHandler(generation *service.GenerationService, bridge *stream.Bridge) *StreamHandler {
	return &StreamHandler{generation: generation, bridge: bridge}
}

type generateRequest struct {
	ChatID     string `json:"chat_id"`
	Prompt     string `json:"prompt"`
	Kind       string `json:"kind"`
	DocumentID string `json:"document_id"`
}

// Generate starts a generation run and returns the stream id, the sole
// handle needed to attach or re-attach to it.
func (h *StreamHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.ChatID == "" || req.Prompt == "" {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "chat_id and prompt required")
		return
	}
	streamID, err := h.generation.Start(c.Request.Context(), service.GenerationInput{
		ChatID:     req.ChatID,
		OwnerID:    getUserID(c),
		Prompt:     req.Prompt,
		Kind:       req.Kind,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"stream_id": streamID})
}

// LatestStream resolves a chat to its newest stream id so a reconnecting
// client can find the run it lost.
func (h *StreamHandler) LatestStream(c *gin.Context) {
	record, err := h.generation.LatestStream(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"stream_id": record.StreamID})
}

// Attach streams a run's events over SSE: the durable prefix first, then
// live events. Each SSE data line carries one codec frame.
func (h *StreamHandler) Attach(c *gin.Context) {
	streamID := c.Param("id")
	feed, err := h.bridge.Attach(c.Request.Context(), streamID)
	if err != nil {
		if errors.Is(err, stream.ErrStreamUnknown) {
			response.Error(c, http.StatusNotFound, errcode.ErrStreamGone, "unknown stream")
			return
		}
		handleError(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "streaming unsupported")
		return
	}
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	logger := logutil.GetLogger(ctx).With(zap.String("stream_id", streamID))
	for {
		event, err := feed.Recv(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				fmt.Fprint(c.Writer, "event: done\ndata: {}\n\n")
				flusher.Flush()
			case errors.Is(err, stream.ErrSuperseded):
				logger.Info("feed superseded by a newer attach")
			default:
				logger.Info("feed closed", zap.Error(err))
			}
			return
		}
		frame, err := protocol.Encode(event)
		if err != nil {
			logger.Warn("skipping unencodable event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", frame[:len(frame)-1]); err != nil {
			logger.Info("client write failed, detaching", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}
