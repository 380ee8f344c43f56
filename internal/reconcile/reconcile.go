// Package reconcile brings a remote workbook in line with a manifest.
//
// A run checks whether the document exists. A missing document is
// bootstrapped, either from a master template or by uploading an empty
// workbook and provisioning one table per sheet spec. The run ends with a
// health check of the first manifest table.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/digitaldrywood/shopbook/internal/logging"
	"github.com/digitaldrywood/shopbook/internal/manifest"
	"github.com/digitaldrywood/shopbook/internal/store"
)

// ErrBusy is returned when a run or audit is already in flight on the same
// Reconciler.
var ErrBusy = errors.New("reconciliation already in progress")

// Strategy decides what happens after a sheet fails to provision.
type Strategy int

const (
	// BestEffort records the failure and moves on to the next sheet.
	BestEffort Strategy = iota
	// FailFast stops at the first failure; the remaining sheets are
	// reported as not attempted.
	FailFast
)

// Payloads supplies the bytes uploaded at bootstrap.
type Payloads interface {
	EmptyWorkbook() ([]byte, error)
	// MasterTemplate returns ok=false when no template is configured.
	MasterTemplate() (content []byte, ok bool, err error)
}

type Options struct {
	Strategy Strategy
	// RetryPolicy builds a fresh backoff for each remote call. Only
	// temporary store errors are retried, and only the call that failed.
	// Nil means no retries.
	RetryPolicy func() retry.Backoff
	// AuditConcurrency bounds parallel probes in Audit. Zero means 4.
	AuditConcurrency int
	Logger           logrus.FieldLogger
}

// Reconciler runs reconciliations for one document. It is safe to share,
// but only one run or audit executes at a time.
type Reconciler struct {
	store    store.Store
	manifest *manifest.Manifest
	payloads Payloads
	opts     Options
	log      logrus.FieldLogger
	now      func() time.Time

	busy atomic.Bool
}

func New(s store.Store, m *manifest.Manifest, p Payloads, opts Options) *Reconciler {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	if opts.AuditConcurrency <= 0 {
		opts.AuditConcurrency = 4
	}
	return &Reconciler{
		store:    s,
		manifest: m,
		payloads: p,
		opts:     opts,
		log:      log.WithField("document", m.DocumentName),
		now:      time.Now,
	}
}

// Busy reports whether a run or audit is in flight.
func (r *Reconciler) Busy() bool {
	return r.busy.Load()
}

// Run executes one reconciliation. The only error returned is ErrBusy;
// everything else is reported in the Result.
//
// The closing health check only probes the first manifest table. It is a
// cheap signal, not an audit: other tables may be missing while the run
// still reports StateConsistent. Use Audit for a full check.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.busy.Store(false)

	res := &Result{
		RunID:     uuid.NewString(),
		Document:  r.manifest.DocumentName,
		Observed:  WorkbookState{Tables: make(map[string]bool)},
		StartedAt: r.now(),
	}
	log := r.log.WithField("run", res.RunID)

	r.run(ctx, log, res)

	res.FinishedAt = r.now()
	log.WithFields(logrus.Fields{
		"state":    res.State.String(),
		"outcome":  res.Outcome.String(),
		"failures": len(res.Failures),
		"elapsed":  res.Duration().String(),
	}).Info("reconciliation finished")
	return res, nil
}

func (r *Reconciler) run(ctx context.Context, log logrus.FieldLogger, res *Result) {
	var exists bool
	err := r.step(ctx, log, func(ctx context.Context) error {
		var err error
		exists, err = r.store.FileExists(ctx, r.manifest.DocumentName)
		return err
	})
	if err != nil {
		r.fail(log, res, fmt.Errorf("check document: %w", err))
		return
	}
	res.Observed.Exists = exists

	if exists {
		log.Debug("document present, skipping bootstrap")
		r.healthCheck(ctx, log, res, OutcomeAlreadyConsistent)
		return
	}

	log.Info("document missing, bootstrapping")
	programmatic, err := r.bootstrap(ctx, log, res)
	if err != nil {
		r.fail(log, res, err)
		return
	}

	if programmatic {
		if err := r.provision(ctx, log, res); err != nil {
			r.fail(log, res, err)
			return
		}
		if len(res.Failures) > 0 {
			res.State = StatePartiallyFailed
			res.Outcome = OutcomeRepaired
			return
		}
	}
	r.healthCheck(ctx, log, res, OutcomeBootstrapped)
}

func (r *Reconciler) fail(log logrus.FieldLogger, res *Result, err error) {
	log.WithError(err).Error("reconciliation failed")
	res.State = StateFailed
	res.Outcome = OutcomeFailed
	res.Err = err
}

// bootstrap uploads the master template when one is configured, otherwise
// an empty workbook. It reports whether tables still need provisioning.
func (r *Reconciler) bootstrap(ctx context.Context, log logrus.FieldLogger, res *Result) (bool, error) {
	content, ok, err := r.payloads.MasterTemplate()
	if err != nil {
		return false, &store.RemoteError{Status: store.StatusMissingAsset, Message: "master template", Err: err}
	}
	programmatic := !ok
	if programmatic {
		content, err = r.payloads.EmptyWorkbook()
		if err != nil {
			return false, &store.RemoteError{Status: store.StatusMissingAsset, Message: "empty workbook", Err: err}
		}
	}
	res.Template = !programmatic

	err = r.step(ctx, log, func(ctx context.Context) error {
		return r.store.UploadDocument(ctx, r.manifest.DocumentName, content)
	})
	if err != nil {
		return false, fmt.Errorf("upload document: %w", err)
	}
	res.Observed.Exists = true
	log.WithField("template", res.Template).Info("document uploaded")
	return programmatic, nil
}

// provision creates every manifest table in declared order. The first
// sheet reuses the document's default worksheet. A rejected credential
// ends provisioning and is returned: the remaining sheets are recorded as
// not attempted and the run fails.
func (r *Reconciler) provision(ctx context.Context, log logrus.FieldLogger, res *Result) error {
	skip := func(from int, reason error) {
		for _, rest := range r.manifest.Sheets[from:] {
			res.Failures = append(res.Failures, Failure{Table: rest.TableName, Step: StepNotAttempted, Err: reason})
		}
	}

	for i, spec := range r.manifest.Sheets {
		if stop := r.stopReason(ctx, res); stop != nil {
			skip(i, stop)
			return nil
		}

		slog := log.WithFields(logrus.Fields{"sheet": spec.TabName, "table": spec.TableName})
		if f := r.provisionSheet(ctx, slog, i, spec); f != nil {
			slog.WithError(f.Err).WithField("step", string(f.Step)).Warn("table provisioning failed")
			res.Failures = append(res.Failures, *f)
			if store.IsAuth(f.Err) {
				skip(i+1, f.Err)
				return fmt.Errorf("provision %s: %w", spec.TableName, f.Err)
			}
			continue
		}
		slog.Debug("table provisioned")
	}
	return nil
}

func (r *Reconciler) stopReason(ctx context.Context, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.opts.Strategy == FailFast && len(res.Failures) > 0 {
		return ErrNotAttempted
	}
	return nil
}

func (r *Reconciler) provisionSheet(ctx context.Context, log logrus.FieldLogger, index int, spec manifest.SheetSpec) *Failure {
	failed := func(step Step, err error) *Failure {
		return &Failure{Table: spec.TableName, Step: step, Err: err}
	}

	ws := store.WorksheetRef{Name: spec.TabName}
	if index == 0 {
		err := r.step(ctx, log, func(ctx context.Context) error {
			return r.store.RenameWorksheet(ctx, store.DefaultWorksheet, spec.TabName)
		})
		if err != nil {
			return failed(StepRenameWorksheet, err)
		}
	} else {
		err := r.step(ctx, log, func(ctx context.Context) error {
			created, err := r.store.CreateWorksheet(ctx, spec.TabName)
			if err == nil && created.Name != "" {
				ws = created
			}
			return err
		})
		if err != nil {
			return failed(StepCreateWorksheet, err)
		}
	}

	rng, err := spec.HeaderRange()
	if err != nil {
		return failed(StepCreateTable, err)
	}

	var id store.TableID
	err = r.step(ctx, log, func(ctx context.Context) error {
		var err error
		id, err = r.store.CreateTable(ctx, ws, rng, true)
		return err
	})
	if err != nil {
		return failed(StepCreateTable, err)
	}

	err = r.step(ctx, log, func(ctx context.Context) error {
		return r.store.RenameTable(ctx, id, spec.TableName)
	})
	if err != nil {
		return failed(StepRenameTable, err)
	}

	err = r.step(ctx, log, func(ctx context.Context) error {
		return r.store.SetHeaderRow(ctx, id, spec.Headers())
	})
	if err != nil {
		return failed(StepSetHeaderRow, err)
	}
	return nil
}

// healthCheck probes the first manifest table only.
func (r *Reconciler) healthCheck(ctx context.Context, log logrus.FieldLogger, res *Result, onSuccess Outcome) {
	first := r.manifest.Sheets[0].TableName

	var ok bool
	err := r.step(ctx, log, func(ctx context.Context) error {
		var err error
		ok, err = r.store.TableExists(ctx, first)
		return err
	})
	if err != nil {
		r.fail(log, res, fmt.Errorf("health check %s: %w", first, err))
		return
	}
	res.Observed.Tables[first] = ok

	if !ok {
		log.WithField("table", first).Warn("health check could not resolve table")
		res.State = StateInconsistent
		res.Outcome = OutcomeFailed
		res.Warnings = append(res.Warnings, IntegrityWarning{
			Table:   first,
			Message: "expected table is missing from the document",
		})
		return
	}

	res.State = StateConsistent
	res.Outcome = onSuccess
}

// step runs one remote call under the retry policy.
func (r *Reconciler) step(ctx context.Context, log logrus.FieldLogger, call func(context.Context) error) error {
	if r.opts.RetryPolicy == nil {
		return call(ctx)
	}

	attempt := 0
	return retry.Do(ctx, r.opts.RetryPolicy(), func(ctx context.Context) error {
		attempt++
		err := call(ctx)
		if store.IsTemporary(err) {
			log.WithError(err).WithField("attempt", attempt).Debug("temporary failure, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}
