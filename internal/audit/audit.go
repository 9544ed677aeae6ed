// Package audit records ledger events for the audit-log collaborator.
//
// Recording is fire-and-forget: a failing sink is logged and never fails the
// ledger operation that produced the event.
package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/model"
)

// Action names a recorded ledger event.
type Action string

const (
	ActionCreated      Action = "created"
	ActionUpdated      Action = "updated"
	ActionDeleted      Action = "deleted"
	ActionLocked       Action = "locked"
	ActionUnlocked     Action = "unlocked"
	ActionRecurringRun Action = "recurring_run"
)

// SubjectKind tags what an event is about.
type SubjectKind string

const (
	SubjectTransaction SubjectKind = "transaction"
	SubjectRecurring   SubjectKind = "recurring"
)

// Subject is a tagged reference to the record an event is about.
type Subject struct {
	Kind SubjectKind
	ID   int64
}

// Event is one row in the audit log.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Action    Action
	Actor     model.Actor
	Subject   Subject
	Reference string
	Details   string
}

// Sink persists audit events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Recorder stamps events and forwards them to a Sink, swallowing failures.
type Recorder struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder returns a Recorder. A nil sink discards events.
func NewRecorder(sink Sink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

// Record fills in ID and Timestamp and hands e to the sink.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil || r.sink == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	if err := r.sink.Record(ctx, e); err != nil {
		r.logger.Warn("audit sink failed",
			zap.String("action", string(e.Action)),
			zap.String("subject", string(e.Subject.Kind)),
			zap.Int64("subject_id", e.Subject.ID),
			zap.Error(err),
		)
	}
}

// Header is the CSV header for audit-log.csv.
const Header = "event_id,timestamp,action,actor,subject_kind,subject_id,reference,details"

const (
	numFields      = 8
	colEventID     = 0
	colTimestamp   = 1
	colAction      = 2
	colActor       = 3
	colSubjectKind = 4
	colSubjectID   = 5
	colReference   = 6
	colDetails     = 7
)

// MarshalEvent converts an Event to a CSV row.
func MarshalEvent(e Event) []string {
	row := make([]string, numFields)
	row[colEventID] = e.ID.String()
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colAction] = string(e.Action)
	row[colActor] = strconv.FormatInt(int64(e.Actor), 10)
	row[colSubjectKind] = string(e.Subject.Kind)
	row[colSubjectID] = strconv.FormatInt(e.Subject.ID, 10)
	row[colReference] = e.Reference
	row[colDetails] = e.Details
	return row
}

// UnmarshalEvent converts a CSV row to an Event.
func UnmarshalEvent(record []string) (Event, error) {
	if len(record) != numFields {
		return Event{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	eventID, err := uuid.Parse(record[colEventID])
	if err != nil {
		return Event{}, fmt.Errorf("parsing event_id %q: %w", record[colEventID], err)
	}
	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Event{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	actor, err := strconv.ParseInt(record[colActor], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("parsing actor %q: %w", record[colActor], err)
	}
	subjectID, err := strconv.ParseInt(record[colSubjectID], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("parsing subject_id %q: %w", record[colSubjectID], err)
	}

	return Event{
		ID:        eventID,
		Timestamp: ts,
		Action:    Action(record[colAction]),
		Actor:     model.Actor(actor),
		Subject:   Subject{Kind: SubjectKind(record[colSubjectKind]), ID: subjectID},
		Reference: record[colReference],
		Details:   record[colDetails],
	}, nil
}

// CSVSink appends events to <dir>/audit-log.csv.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

// NewCSVSink returns a sink writing to <dir>/audit-log.csv.
func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{path: filepath.Join(dir, "audit-log.csv")}
}

// Record appends e, creating the file and header if needed.
func (s *CSVSink) Record(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating audit dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	if err := cw.Write(MarshalEvent(e)); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all events in the sink's file, or nil if it does not exist.
func (s *CSVSink) Read() ([]Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	return readEvents(f)
}

func readEvents(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading audit log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var events []Event
	for i, rec := range records[1:] {
		e, err := UnmarshalEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Record appends e.
func (s *MemorySink) Record(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
