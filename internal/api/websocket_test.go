package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/notify"
	"github.com/storefront-admin/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFixture struct {
	api     *testAPI
	service *testutil.FakeEditService
	edits   *imagery.EditManager
	conn    *websocket.Conn
}

func newWSFixture(t *testing.T, notices *notify.Recorder) *wsFixture {
	t.Helper()
	a := newTestAPI(t)
	service := testutil.NewFakeEditService(40, 20)
	edits := imagery.NewEditManager(service, a.images, imagery.ManagerOptions{})

	e := echo.New()
	handlers := NewHandlers(&Dependencies{
		Maps:    a.repo,
		Assets:  a.assets,
		Images:  a.images,
		Edits:   edits,
		Notices: notices,
		Version: "test",
	})
	RegisterWebSocketRoutes(e, handlers)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/image-edits"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f := &wsFixture{api: a, service: service, edits: edits, conn: conn}
	assert.Equal(t, MsgTypeConnected, f.read(t).Type)
	return f
}

func (f *wsFixture) send(t *testing.T, msgType, id string, payload interface{}) {
	t.Helper()
	msg := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	require.NoError(t, f.conn.WriteJSON(msg))
}

func (f *wsFixture) read(t *testing.T) WSMessage {
	t.Helper()
	require.NoError(t, f.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, f.conn.ReadJSON(&msg))
	return msg
}

// readJob reads until a status message for a job in want arrives. Other
// messages are collected by type.
func (f *wsFixture) readJob(t *testing.T, want imagery.Status) (imagery.Job, map[string]int) {
	t.Helper()
	seen := make(map[string]int)
	for i := 0; i < 20; i++ {
		msg := f.read(t)
		seen[msg.Type]++
		if msg.Type != MsgTypeStatus {
			continue
		}
		var job imagery.Job
		require.NoError(t, json.Unmarshal(msg.Payload, &job))
		if job.Status == want {
			return job, seen
		}
	}
	t.Fatalf("no %s status received", want)
	return imagery.Job{}, seen
}

func decodePayload[T any](t *testing.T, msg WSMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Payload, &v), string(msg.Payload))
	return v
}

func TestEditHub_SubmitCompletes(t *testing.T) {
	f := newWSFixture(t, nil)

	f.send(t, MsgTypeEditSubmit, "req-1", imagery.EditRequest{
		RoomID:       "lobby",
		Target:       imagery.TargetBackground,
		Instructions: "make it night",
	})

	// The ack and the job's status broadcasts may interleave.
	var job imagery.Job
	acked := false
	for i := 0; i < 20 && (!acked || job.Status != imagery.StatusComplete); i++ {
		msg := f.read(t)
		switch msg.Type {
		case MsgTypeAck:
			acked = true
			assert.Equal(t, "req-1", msg.ID)
		case MsgTypeStatus:
			job = decodePayload[imagery.Job](t, msg)
		}
	}
	require.True(t, acked)
	require.Equal(t, imagery.StatusComplete, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 40, job.Result.Width)

	bg, err := f.api.images.Resolve(context.Background(), "lobby")
	require.NoError(t, err)
	assert.Equal(t, job.Result.Ref, bg.Ref)

	f.send(t, MsgTypeEditStatus, "req-2", EditStatusPayload{JobID: job.ID})
	msg := f.read(t)
	assert.Equal(t, MsgTypeStatus, msg.Type)
	assert.Equal(t, "req-2", msg.ID)
	assert.Equal(t, imagery.StatusComplete, decodePayload[imagery.Job](t, msg).Status)

	f.send(t, MsgTypeEditStatus, "req-3", EditStatusPayload{RoomID: "lobby"})
	msg = f.read(t)
	assert.Equal(t, MsgTypeJobs, msg.Type)
	assert.Len(t, decodePayload[[]imagery.Job](t, msg), 1)
}

func TestEditHub_CancelRunningEdit(t *testing.T) {
	f := newWSFixture(t, nil)
	f.service.Block()

	f.send(t, MsgTypeEditSubmit, "req-1", imagery.EditRequest{RoomID: "lobby", Target: imagery.TargetBackground})
	running, _ := f.readJob(t, imagery.StatusRunning)

	f.send(t, MsgTypeEditCancel, "req-2", EditStatusPayload{JobID: running.ID})
	canceled, _ := f.readJob(t, imagery.StatusCanceled)
	assert.Equal(t, running.ID, canceled.ID)
	assert.Nil(t, canceled.Result)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	final, err := f.edits.Wait(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, imagery.StatusCanceled, final.Status)
	assert.Equal(t, 0, f.api.assets.Count(), "canceled edit stores nothing")

	_, err = f.api.images.Resolve(context.Background(), "lobby")
	assert.Error(t, err, "canceled edit assigns no background")
}

func TestEditHub_Errors(t *testing.T) {
	f := newWSFixture(t, nil)

	tests := []struct {
		name     string
		msgType  string
		payload  interface{}
		wantCode string
	}{
		{"unknown type", "edit:bogus", nil, "INVALID_TYPE"},
		{"missing room", MsgTypeEditSubmit, imagery.EditRequest{Target: imagery.TargetBackground}, "INVALID_EDIT"},
		{"unknown target", MsgTypeEditSubmit, imagery.EditRequest{RoomID: "lobby", Target: "poster"}, "INVALID_EDIT"},
		{"cancel without job", MsgTypeEditCancel, EditStatusPayload{}, "INVALID_PAYLOAD"},
		{"cancel unknown job", MsgTypeEditCancel, EditStatusPayload{JobID: "nope"}, "NOT_FOUND"},
		{"status unknown job", MsgTypeEditStatus, EditStatusPayload{JobID: "nope"}, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.send(t, tt.msgType, tt.name, tt.payload)
			msg := f.read(t)
			require.Equal(t, MsgTypeError, msg.Type)
			assert.Equal(t, tt.name, msg.ID)
			assert.Equal(t, tt.wantCode, decodePayload[WSErrorResponse](t, msg).Code)
		})
	}
}

func TestEditHub_PingAndNotices(t *testing.T) {
	notices := notify.NewRecorder(nil)
	notices.Error("Could not save boundaries", assert.AnError)

	f := newWSFixture(t, notices)
	msg := f.read(t)
	require.Equal(t, MsgTypeNotices, msg.Type)
	replayed := decodePayload[[]notify.Notice](t, msg)
	require.Len(t, replayed, 1)
	assert.Equal(t, notify.KindError, replayed[0].Kind)

	f.send(t, MsgTypePing, "p1", nil)
	msg = f.read(t)
	assert.Equal(t, MsgTypePong, msg.Type)
	assert.Equal(t, "p1", msg.ID)
}
