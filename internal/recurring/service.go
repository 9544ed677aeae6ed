// Package recurring generates ledger transactions from scheduled templates.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/ledger/internal/audit"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/observability"
	"github.com/cleared-dev/ledger/internal/store"
)

// ErrNotDue is returned when a template has no run pending, including when
// another runner advanced it first.
var ErrNotDue = errors.New("recurring template is not due")

// Creator builds a transaction inside an open unit of work.
type Creator interface {
	CreateIn(ctx context.Context, tx store.Tx, req journal.CreateRequest, actor model.Actor) (model.Transaction, error)
	NotifyCreated(ctx context.Context, txn model.Transaction, actor model.Actor)
}

// Generator runs recurring templates.
type Generator struct {
	store       store.Store
	engine      Creator
	concurrency int
	audit       *audit.Recorder
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewGenerator returns a Generator that runs at most concurrency templates
// at once in RunDue.
func NewGenerator(st store.Store, engine Creator, concurrency int, recorder *audit.Recorder, logger *zap.Logger, metrics *observability.Metrics) *Generator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		store:       st,
		engine:      engine,
		concurrency: concurrency,
		audit:       recorder,
		logger:      logger,
		metrics:     metrics,
	}
}

// Create validates r and stores it with its first run on the start date.
func (g *Generator) Create(ctx context.Context, r *model.RecurringTransaction, actor model.Actor) error {
	if err := validate(r); err != nil {
		return err
	}
	r.StartDate = store.Day(r.StartDate)
	r.NextRunDate = r.StartDate
	r.OccurrencesCount = 0
	r.IsActive = true
	r.CreatedBy = actor

	err := g.store.WithTx(ctx, func(tx store.Tx) error {
		if err := journal.ValidateEntries(ctx, entriesOf(r.Template), tx); err != nil {
			return fmt.Errorf("template: %w", err)
		}
		return tx.CreateRecurring(ctx, r)
	})
	if err != nil {
		return err
	}
	g.logger.Info("created recurring template",
		zap.Int64("id", r.ID),
		zap.String("name", r.Name),
		zap.String("frequency", string(r.Frequency)),
	)
	return nil
}

func validate(r *model.RecurringTransaction) error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if r.StartDate.IsZero() {
		errs = append(errs, errors.New("start date is required"))
	}
	if _, err := advance(r.StartDate, r.Frequency, r.Interval); err != nil {
		errs = append(errs, err)
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		errs = append(errs, errors.New("end date is before start date"))
	}
	if r.MaxOccurrences != nil && *r.MaxOccurrences < 1 {
		errs = append(errs, errors.New("max occurrences must be at least 1"))
	}
	return errors.Join(errs...)
}

func entriesOf(t model.TransactionTemplate) []model.Entry {
	entries := make([]model.Entry, len(t.Entries))
	for i, s := range t.Entries {
		entries[i] = model.Entry{
			AccountID:    s.AccountID,
			DebitAmount:  s.DebitAmount,
			CreditAmount: s.CreditAmount,
			Description:  s.Description,
		}
	}
	return entries
}

// Run generates the transaction for r's current run date and advances the
// schedule in the same unit of work. r is re-read inside that unit of work;
// if its schedule moved since r was loaded, Run returns ErrNotDue and writes
// nothing. The template is deactivated once its end date or occurrence
// limit is reached.
func (g *Generator) Run(ctx context.Context, r model.RecurringTransaction, actor model.Actor) (model.Transaction, error) {
	var txn model.Transaction
	err := g.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		txn, err = g.runIn(ctx, tx, r, actor)
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}
	g.engine.NotifyCreated(ctx, txn, actor)
	return txn, nil
}

func (g *Generator) runIn(ctx context.Context, tx store.Tx, snap model.RecurringTransaction, actor model.Actor) (model.Transaction, error) {
	r, err := tx.GetRecurring(ctx, snap.ID)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("loading recurring template %d: %w", snap.ID, err)
	}
	if !r.NextRunDate.Equal(snap.NextRunDate) || r.OccurrencesCount != snap.OccurrencesCount || !ShouldRun(r, r.NextRunDate) {
		return model.Transaction{}, fmt.Errorf("%w: template %d", ErrNotDue, r.ID)
	}

	next, err := NextRunDate(r)
	if err != nil {
		return model.Transaction{}, err
	}

	templateID := r.ID
	txn, err := g.engine.CreateIn(ctx, tx, journal.CreateRequest{
		Date:                r.NextRunDate,
		Description:         r.Template.Description,
		Type:                model.TransactionTypeRecurring,
		Currency:            r.Template.Currency,
		CostCenter:          r.Template.CostCenter,
		Tags:                r.Template.Tags,
		Source:              model.SourceRef{Kind: model.SourceRecurring, ID: strconv.FormatInt(r.ID, 10)},
		RecurringTemplateID: &templateID,
		Entries:             entriesOf(r.Template),
	}, actor)
	if err != nil {
		return model.Transaction{}, err
	}

	r.NextRunDate = next
	r.OccurrencesCount++
	if finished(r) {
		r.IsActive = false
	}
	if err := tx.UpdateRecurring(ctx, r); err != nil {
		return model.Transaction{}, err
	}
	return txn, nil
}

// RunByID loads a template and runs it if it is due at now.
func (g *Generator) RunByID(ctx context.Context, id int64, now time.Time, actor model.Actor) (model.Transaction, error) {
	r, err := g.store.GetRecurring(ctx, id)
	if err != nil {
		return model.Transaction{}, err
	}
	if !ShouldRun(r, now) {
		return model.Transaction{}, fmt.Errorf("%w: template %d", ErrNotDue, id)
	}
	return g.Run(ctx, r, actor)
}

// BatchResult summarizes one RunDue pass.
type BatchResult struct {
	BatchID   string
	Succeeded int
	Failed    int
}

// RunDue runs every template due at now. Each template runs in its own unit
// of work; a failure is recorded and does not stop the others. Templates
// that fell behind run once per call.
func (g *Generator) RunDue(ctx context.Context, now time.Time, actor model.Actor) (BatchResult, error) {
	due, err := g.store.ListRecurring(ctx, store.RecurringFilter{ActiveOnly: true, DueBy: store.Day(now)})
	if err != nil {
		return BatchResult{}, fmt.Errorf("listing due templates: %w", err)
	}

	batch := uuid.NewString()
	results := make([]model.RecurringRun, 0, len(due))
	runs := make(chan model.RecurringRun, len(due))

	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for _, r := range due {
		if !ShouldRun(r, now) {
			continue
		}
		eg.Go(func() error {
			runs <- g.runOne(ctx, batch, r, now, actor)
			return nil
		})
	}
	_ = eg.Wait()
	close(runs)

	res := BatchResult{BatchID: batch}
	for run := range runs {
		results = append(results, run)
		if run.Status == model.RunStatusOK {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}

	if err := g.store.WithTx(ctx, func(tx store.Tx) error {
		for i := range results {
			if err := tx.InsertRecurringRun(ctx, &results[i]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return res, fmt.Errorf("recording batch %s: %w", batch, err)
	}

	g.logger.Info("recurring batch finished",
		zap.String("batch", batch),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (g *Generator) runOne(ctx context.Context, batch string, r model.RecurringTransaction, now time.Time, actor model.Actor) model.RecurringRun {
	run := model.RecurringRun{
		BatchID:    batch,
		TemplateID: r.ID,
		RunAt:      now.UTC(),
		Status:     model.RunStatusOK,
	}

	txn, err := g.Run(ctx, r, actor)
	if err != nil {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		g.logger.Error("recurring run failed",
			zap.Int64("template", r.ID),
			zap.String("name", r.Name),
			zap.Error(err),
		)
	} else {
		run.TransactionID = &txn.ID
	}
	g.metrics.IncrRecurringRun(string(run.Status))

	g.audit.Record(ctx, audit.Event{
		Action:    audit.ActionRecurringRun,
		Actor:     actor,
		Subject:   audit.Subject{Kind: audit.SubjectRecurring, ID: r.ID},
		Reference: txn.ReferenceNumber,
		Details:   string(run.Status),
	})
	return run
}

// List returns templates, optionally only active ones.
func (g *Generator) List(ctx context.Context, activeOnly bool) ([]model.RecurringTransaction, error) {
	return g.store.ListRecurring(ctx, store.RecurringFilter{ActiveOnly: activeOnly})
}

// History returns the run history of one template.
func (g *Generator) History(ctx context.Context, id int64) ([]model.RecurringRun, error) {
	return g.store.ListRecurringRuns(ctx, id)
}
