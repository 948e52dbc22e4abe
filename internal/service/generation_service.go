package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/coscribe/internal/ai"
	"github.com/xxxsen/coscribe/internal/dockind"
	"github.com/xxxsen/coscribe/internal/model"
	appErr "github.com/xxxsen/coscribe/internal/pkg/errors"
	"github.com/xxxsen/coscribe/internal/pkg/timeutil"
	"github.com/xxxsen/coscribe/internal/protocol"
	"github.com/xxxsen/coscribe/internal/repo"
	"github.com/xxxsen/coscribe/internal/stream"
)

const maxDerivedTitle = 60

// GenerationService runs one generation per call: it records the stream,
// opens the bridge sink, feeds model output through it and drives the tool
// dispatcher for document creation or update. The run itself executes on a
// background goroutine; the caller gets the stream id back immediately and
// attaches to follow progress.
type GenerationService struct {
	bridge     *stream.Bridge
	streams    *repo.StreamRepo
	generator  ai.IGenerator
	dispatcher *ToolDispatcher
	headings   *dockind.TextHandler
}

func NewGenerationService(bridge *stream.Bridge, streams *repo.StreamRepo, generator ai.IGenerator, dispatcher *ToolDispatcher) *GenerationService {
	return &GenerationService{
		bridge:     bridge,
		streams:    streams,
		generator:  generator,
		dispatcher: dispatcher,
		headings:   dockind.NewTextHandler(),
	}
}

type GenerationInput struct {
	ChatID     string
	OwnerID    string
	Prompt     string
	Kind       string
	DocumentID string // empty = create a new document
}

// Start begins a run and returns its stream id, the sole handle needed to
// attach or re-attach.
func (s *GenerationService) Start(ctx context.Context, input GenerationInput) (string, error) {
	if input.Kind == "" {
		input.Kind = model.KindText
	}
	streamID := uuid.NewString()
	// Record before the first event so resumption can find the run even if
	// the client disconnects instantly. Failure costs resumability only.
	if s.streams != nil {
		record := &model.StreamRecord{StreamID: streamID, ChatID: input.ChatID, Ctime: timeutil.NowUnixMilli()}
		if err := s.streams.CreateRecord(ctx, record); err != nil {
			logutil.GetLogger(ctx).Warn("create stream record failed, run is not resumable",
				zap.String("stream_id", streamID), zap.Error(err))
		}
	}
	sink, err := s.bridge.Open(ctx, streamID)
	if err != nil {
		return "", err
	}
	runCtx := context.WithoutCancel(ctx)
	go s.run(runCtx, sink, streamID, input)
	return streamID, nil
}

func (s *GenerationService) run(ctx context.Context, sink *stream.Sink, streamID string, input GenerationInput) {
	logger := logutil.GetLogger(ctx).With(zap.String("stream_id", streamID), zap.String("chat_id", input.ChatID))
	defer func() {
		if err := sink.Write(ctx, protocol.FinishEvent()); err != nil {
			logger.Warn("write finish event failed", zap.Error(err))
		}
		_ = sink.Close()
	}()

	var content strings.Builder
	err := s.generator.StreamGenerate(ctx, input.Prompt, func(delta string) error {
		content.WriteString(delta)
		return sink.Write(ctx, protocol.TextDelta(delta))
	})
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			_ = sink.Write(ctx, protocol.TextDelta("Generation is not available right now, please try again later."))
		} else {
			logger.Error("generation failed", zap.Error(err))
			_ = sink.Write(ctx, protocol.TextDelta("Generation failed, please retry."))
		}
		return
	}

	var result ToolResult
	if input.DocumentID == "" {
		title := s.deriveTitle(input.Kind, input.Prompt, content.String())
		result, err = s.dispatcher.CreateDocument(ctx, sink, input.OwnerID, title, input.Kind, content.String())
	} else {
		result, err = s.dispatcher.UpdateDocument(ctx, sink, input.OwnerID, input.DocumentID, content.String(), nil)
	}
	if err != nil {
		logger.Error("tool dispatch failed", zap.Error(err))
		_ = sink.Write(ctx, protocol.TextDelta("Saving the document failed, please retry."))
		return
	}
	if result.Error != "" {
		// User-level outcome; surface it conversationally, not as a fault.
		_ = sink.Write(ctx, protocol.TextDelta(result.Error))
	}
}

// LatestStream resolves the stream a chat's client should re-attach to:
// the newest run recorded for the chat.
func (s *GenerationService) LatestStream(ctx context.Context, chatID string) (*model.StreamRecord, error) {
	if s.streams == nil {
		return nil, appErr.ErrNotFound
	}
	records, err := s.streams.ListRecordsByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &records[0], nil
}

// deriveTitle names a freshly created document. For text documents the
// first markdown heading of the generated content wins; otherwise the
// first prompt line is used.
func (s *GenerationService) deriveTitle(kind, prompt, content string) string {
	if kind == model.KindText {
		if heading := s.headings.FirstHeading(content); heading != "" {
			return clipTitle(heading)
		}
	}
	title := strings.TrimSpace(prompt)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if title == "" {
		return "Untitled"
	}
	return clipTitle(title)
}

func clipTitle(title string) string {
	runes := []rune(title)
	if len(runes) > maxDerivedTitle {
		return string(runes[:maxDerivedTitle])
	}
	return title
}
