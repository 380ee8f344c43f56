package inventory

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/digitaldrywood/shopbook/internal/database"
	"github.com/digitaldrywood/shopbook/internal/reconcile"
	"github.com/digitaldrywood/shopbook/internal/store"
)

// RenderMenu writes the table menu as a numbered list.
func RenderMenu(w io.Writer, items []MenuItem) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Table", "Name"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	for i, it := range items {
		label := it.Label
		if !it.Declared {
			label += " *"
		}
		table.Append([]string{fmt.Sprint(i + 1), label, it.TableName})
	}
	table.Render()
}

// RenderView writes a formatted table view.
func RenderView(w io.Writer, v *View) {
	fmt.Fprintf(w, "=== %s ===\n\n", v.Title)
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, "No rows yet.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(v.Headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.AppendBulk(v.Rows)
	table.Render()

	fmt.Fprintf(w, "\n%d row(s)", len(v.Rows))
	if v.Hidden > 0 {
		fmt.Fprintf(w, ", %d hidden column(s)", v.Hidden)
	}
	fmt.Fprintln(w)
}

// FormatResult turns a reconciliation result into the message shown to
// the user.
func FormatResult(res *reconcile.Result) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("=== Sync: %s ===\n\n", res.Document))

	switch res.State {
	case reconcile.StateFailed:
		if store.IsAuth(res.Err) {
			output.WriteString("❌ Sign-in required: the credential was rejected.\n")
			output.WriteString(fmt.Sprintf("   %v\n", res.Err))
			output.WriteString("   Run `auth login` and sync again.\n")
			break
		}
		output.WriteString("❌ Setup error: the workbook could not be located or created.\n")
		if res.Err != nil {
			output.WriteString(fmt.Sprintf("   %v\n", res.Err))
		}
		output.WriteString("   Please contact support if this keeps happening.\n")

	case reconcile.StatePartiallyFailed:
		output.WriteString("⚠️  The workbook was created, but some tables could not be set up:\n")
		for _, f := range res.Failures {
			output.WriteString(fmt.Sprintf("  • %s (%s: %v)\n", f.Table, f.Step, f.Err))
		}
		output.WriteString("\nDelete the workbook and run sync again to finish setting it up.\n")

	case reconcile.StateInconsistent:
		for _, w := range res.Warnings {
			output.WriteString(fmt.Sprintf("⚠️  Structural integrity warning: table %q could not be found in %s.\n", w.Table, res.Document))
		}
		output.WriteString("   Tables are never repaired in place. Delete the workbook and run sync again to reprovision it.\n")

	case reconcile.StateConsistent:
		switch res.Outcome {
		case reconcile.OutcomeBootstrapped:
			if res.Template {
				output.WriteString("✅ Created the workbook from the master template.\n")
			} else {
				output.WriteString("✅ Created the workbook and provisioned every table.\n")
			}
		default:
			output.WriteString("✅ The workbook is ready.\n")
		}
	}

	output.WriteString(fmt.Sprintf("\nFinished in %s.\n", res.Duration().Round(time.Millisecond)))
	return output.String()
}

// FormatAudit lists every table the audit could not resolve.
func FormatAudit(report *reconcile.AuditReport) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("=== Audit: %s ===\n\n", report.Document))
	if report.Healthy() {
		output.WriteString(fmt.Sprintf("✅ All %d tables resolved.\n", report.Checked))
		return output.String()
	}
	if !report.Exists {
		output.WriteString("❌ The workbook does not exist yet. Run sync to create it.\n")
		return output.String()
	}

	output.WriteString(fmt.Sprintf("⚠️  %d of %d tables could not be found:\n", len(report.Warnings), report.Checked))
	for _, w := range report.Warnings {
		output.WriteString(fmt.Sprintf("  • %s\n", w.Table))
	}
	output.WriteString("\nDelete the workbook and run sync again to reprovision it.\n")
	return output.String()
}

// FormatRun summarises a recorded sync for the status command.
func FormatRun(run *database.Run) string {
	if run == nil {
		return "No sync has been recorded yet.\n"
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("Last sync of %s (%s backend)\n", run.Document, run.Backend))
	output.WriteString(fmt.Sprintf("  Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05")))
	output.WriteString(fmt.Sprintf("  State:    %s\n", run.State))
	output.WriteString(fmt.Sprintf("  Outcome:  %s\n", run.Outcome))
	if run.Error != "" {
		output.WriteString(fmt.Sprintf("  Error:    %s\n", run.Error))
	}
	if run.Warning != "" {
		output.WriteString(fmt.Sprintf("  Warning:  %s\n", run.Warning))
	}
	for _, f := range run.Failures {
		output.WriteString(fmt.Sprintf("  • %s (%s: %s)\n", f.Table, f.Step, f.Error))
	}
	return output.String()
}
