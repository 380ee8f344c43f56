package reconcile

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// AuditReport lists every manifest table the document does not resolve.
type AuditReport struct {
	Document string
	Exists   bool
	Checked  int
	Observed WorkbookState
	Warnings []IntegrityWarning
}

// Healthy reports whether the document exists and every table resolved.
func (a *AuditReport) Healthy() bool {
	return a.Exists && len(a.Warnings) == 0
}

// Audit probes every manifest table. It only reads, never repairs, and
// shares the busy guard with Run so it cannot observe a half-provisioned
// document. Probes run concurrently up to Options.AuditConcurrency.
func (r *Reconciler) Audit(ctx context.Context) (*AuditReport, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.busy.Store(false)

	report := &AuditReport{
		Document: r.manifest.DocumentName,
		Observed: WorkbookState{Tables: make(map[string]bool)},
	}

	var exists bool
	err := r.step(ctx, r.log, func(ctx context.Context) error {
		var err error
		exists, err = r.store.FileExists(ctx, r.manifest.DocumentName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("check document: %w", err)
	}
	report.Exists = exists
	report.Observed.Exists = exists
	if !exists {
		for _, s := range r.manifest.Sheets {
			report.Warnings = append(report.Warnings, IntegrityWarning{Table: s.TableName, Message: "document does not exist"})
		}
		return report, nil
	}

	found := make([]bool, len(r.manifest.Sheets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.AuditConcurrency)
	for i, s := range r.manifest.Sheets {
		i, s := i, s
		g.Go(func() error {
			return r.step(gctx, r.log, func(ctx context.Context) error {
				ok, err := r.store.TableExists(ctx, s.TableName)
				if err != nil {
					return fmt.Errorf("probe %s: %w", s.TableName, err)
				}
				found[i] = ok
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, s := range r.manifest.Sheets {
		report.Checked++
		report.Observed.Tables[s.TableName] = found[i]
		if !found[i] {
			report.Warnings = append(report.Warnings, IntegrityWarning{
				Table:   s.TableName,
				Message: "expected table is missing from the document",
			})
		}
	}
	r.log.WithField("missing", len(report.Warnings)).Info("audit finished")
	return report, nil
}
