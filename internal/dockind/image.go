package dockind

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xxxsen/coscribe/internal/filestore"
	"github.com/xxxsen/coscribe/internal/model"
)

const imageRefPrefix = "file:"

// ImageHandler stores binary image payloads in the filestore and persists a
// content-addressed reference as the document content. The generator hands
// over base64 (optionally a data: URL); a payload that is already a
// reference passes through untouched, so re-saving a loaded document does
// not re-upload.
type ImageHandler struct {
	files filestore.Store
}

func NewImageHandler(files filestore.Store) *ImageHandler {
	return &ImageHandler{files: files}
}

func (h *ImageHandler) Kind() string {
	return model.KindImage
}

func (h *ImageHandler) OnCreate(ctx context.Context, id, title, draft string) (string, error) {
	_ = id
	_ = title
	return h.store(ctx, draft)
}

func (h *ImageHandler) OnUpdate(ctx context.Context, doc *model.Document, draft string) (string, error) {
	_ = doc
	return h.store(ctx, draft)
}

func (h *ImageHandler) store(ctx context.Context, draft string) (string, error) {
	if strings.HasPrefix(draft, imageRefPrefix) {
		return draft, nil
	}
	payload := draft
	if idx := strings.Index(payload, ";base64,"); strings.HasPrefix(payload, "data:") && idx > 0 {
		payload = payload[idx+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return "", fmt.Errorf("decode image payload: %w", err)
	}
	sum := sha1.Sum(raw)
	key := hex.EncodeToString(sum[:])
	if err := h.files.Save(ctx, key, bytes.NewReader(raw), int64(len(raw))); err != nil {
		return "", fmt.Errorf("store image payload: %w", err)
	}
	return imageRefPrefix + key, nil
}
