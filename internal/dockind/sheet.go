package dockind

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xxxsen/coscribe/internal/model"
)

// SheetHandler stores tabular data as CSV. The payload is parsed and
// re-emitted so quoting and line endings come out canonical; rows may have
// ragged widths (spreadsheet edits produce them routinely).
type SheetHandler struct{}

func NewSheetHandler() *SheetHandler {
	return &SheetHandler{}
}

func (h *SheetHandler) Kind() string {
	return model.KindSheet
}

func (h *SheetHandler) OnCreate(ctx context.Context, id, title, draft string) (string, error) {
	_ = ctx
	_ = id
	_ = title
	return normalizeCSV(draft)
}

func (h *SheetHandler) OnUpdate(ctx context.Context, doc *model.Document, draft string) (string, error) {
	_ = ctx
	_ = doc
	return normalizeCSV(draft)
}

func normalizeCSV(draft string) (string, error) {
	if strings.TrimSpace(draft) == "" {
		return "", nil
	}
	reader := csv.NewReader(strings.NewReader(draft))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse sheet content: %w", err)
	}
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(records); err != nil {
		return "", err
	}
	writer.Flush()
	return buf.String(), writer.Error()
}
