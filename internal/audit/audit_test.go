package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testTime = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func testEvent() Event {
	return Event{
		ID:        uuid.MustParse("0b0d6a55-5d8c-4c7c-9b0e-1f6a1f1f2a01"),
		Timestamp: testTime,
		Action:    ActionLocked,
		Actor:     42,
		Subject:   Subject{Kind: SubjectTransaction, ID: 7},
		Reference: "TXN-20250115-0001",
		Details:   "2 accounts recomputed",
	}
}

func TestCSVSink_NewFile(t *testing.T) {
	dir := t.TempDir()
	sink := NewCSVSink(dir)
	require.NoError(t, sink.Record(context.Background(), testEvent()))

	events, err := sink.Read()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, testEvent(), events[0])
}

func TestCSVSink_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	sink := NewCSVSink(dir)
	require.NoError(t, sink.Record(context.Background(), testEvent()))

	e2 := testEvent()
	e2.ID = uuid.New()
	e2.Action = ActionUnlocked
	require.NoError(t, sink.Record(context.Background(), e2))

	events, err := sink.Read()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ActionLocked, events[0].Action)
	assert.Equal(t, ActionUnlocked, events[1].Action)

	data, err := os.ReadFile(filepath.Join(dir, "audit-log.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), Header), "header written once")
}

func TestCSVSink_ReadMissing(t *testing.T) {
	events, err := NewCSVSink(t.TempDir()).Read()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUnmarshalEvent_BadFields(t *testing.T) {
	_, err := UnmarshalEvent([]string{"a", "b"})
	assert.Error(t, err)

	row := MarshalEvent(testEvent())
	row[colActor] = "someone"
	_, err = UnmarshalEvent(row)
	assert.Error(t, err)
}

type failingSink struct{}

func (failingSink) Record(context.Context, Event) error { return errors.New("disk full") }

func TestRecorder_SwallowsSinkFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRecorder(failingSink{}, zap.New(core))

	assert.NotPanics(t, func() {
		r.Record(context.Background(), Event{Action: ActionCreated, Subject: Subject{Kind: SubjectTransaction, ID: 1}})
	})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "audit sink failed", logs.All()[0].Message)
}

func TestRecorder_StampsEvents(t *testing.T) {
	sink := &MemorySink{}
	r := NewRecorder(sink, nil)
	r.Record(context.Background(), Event{Action: ActionCreated})

	events := sink.Events()
	require.Len(t, events, 1)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record(context.Background(), Event{}) })
	assert.NotPanics(t, func() { NewRecorder(nil, nil).Record(context.Background(), Event{}) })
}
