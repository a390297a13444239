package notify

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	var buf bytes.Buffer
	next := NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	r := NewRecorder(next)

	r.Success("Boundaries saved")
	r.Error("Could not save boundaries", errors.New("connection reset"))
	r.Error("Activation failed", nil)

	notices := r.Notices()
	require.Len(t, notices, 3)
	assert.Equal(t, "[success] Boundaries saved", notices[0].String())
	assert.Equal(t, "[error] Could not save boundaries: connection reset", notices[1].String())
	assert.Equal(t, "[error] Activation failed", notices[2].String())
	assert.Len(t, r.Errors(), 2)

	assert.Contains(t, buf.String(), "Boundaries saved")
	assert.Contains(t, buf.String(), "connection reset")
	assert.Contains(t, buf.String(), "component=notify")
}

func TestRecorder_NoticesIsACopy(t *testing.T) {
	r := NewRecorder(nil)
	r.Success("one")

	got := r.Notices()
	got[0].Message = "changed"
	assert.Equal(t, "one", r.Notices()[0].Message)
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Success("ignored")
		Discard.Error("ignored", errors.New("x"))
	})
}

func TestRecorder_KeepsNewest(t *testing.T) {
	r := NewRecorder(nil)
	for i := 0; i < maxNotices+5; i++ {
		r.Success(fmt.Sprintf("notice %d", i))
	}

	notices := r.Notices()
	require.Len(t, notices, maxNotices)
	assert.Equal(t, "notice 5", notices[0].Message)
	assert.Equal(t, fmt.Sprintf("notice %d", maxNotices+4), notices[maxNotices-1].Message)
}
