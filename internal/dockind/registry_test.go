package dockind

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/coscribe/internal/model"
)

func TestRegistryValidate(t *testing.T) {
	reg, err := NewRegistry(NewTextHandler(), NewCodeHandler())
	require.NoError(t, err)

	require.NoError(t, reg.Validate(model.KindText, model.KindCode))
	require.Error(t, reg.Validate(model.KindText, model.KindSheet))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(NewTextHandler(), NewTextHandler())
	require.Error(t, err)
}

func TestRegistryGetUnknownKind(t *testing.T) {
	reg, err := NewRegistry(NewTextHandler())
	require.NoError(t, err)
	_, err = reg.Get("video")
	require.Error(t, err)
}

func TestTextHandlerNormalize(t *testing.T) {
	h := NewTextHandler()
	out, err := h.OnCreate(context.Background(), "doc-1", "t", "# Title\r\n\r\nbody\n\n\n")
	require.NoError(t, err)
	require.Equal(t, "# Title\n\nbody\n", out)

	out, err = h.OnUpdate(context.Background(), &model.Document{}, "")
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestTextHandlerFirstHeading(t *testing.T) {
	h := NewTextHandler()
	require.Equal(t, "Project Plan", h.FirstHeading("intro\n\n# Project Plan\n\nbody\n"))
	require.Equal(t, "", h.FirstHeading("no headings here\n"))
}

func TestCodeHandlerNormalize(t *testing.T) {
	h := NewCodeHandler()
	out, err := h.OnCreate(context.Background(), "doc-1", "t", "func main() {  \n\tprintln(1)\t\n}\n\n")
	require.NoError(t, err)
	require.Equal(t, "func main() {\n\tprintln(1)\n}\n", out)
}

func TestSheetHandlerNormalize(t *testing.T) {
	h := NewSheetHandler()
	out, err := h.OnCreate(context.Background(), "doc-1", "t", "a,b\r\n1,\"x,y\"\r\nragged\r\n")
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,\"x,y\"\nragged\n", out)

	_, err = h.OnCreate(context.Background(), "doc-1", "t", "a,\"unterminated\n")
	require.Error(t, err)
}
