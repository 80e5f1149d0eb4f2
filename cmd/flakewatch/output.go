package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/steveyegge/flakewatch/internal/reconcile"
)

// renderReport prints the actions of a run as a table followed by any
// errors.
func renderReport(w io.Writer, report *reconcile.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	actions := report.Actions()
	if len(actions) == 0 {
		fmt.Fprintf(w, "%s No issues changed\n", green("✓"))
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Action", "Issue", "Title", "Detail"})
		for _, a := range actions {
			issue := ""
			if a.Issue > 0 {
				issue = fmt.Sprintf("#%d", a.Issue)
			}
			t.AppendRow(table.Row{string(a.Kind), issue, a.Title, a.Detail})
		}
		t.Render()

		changed := len(actions) - len(report.ActionsOf(reconcile.ActionSkipped))
		fmt.Fprintf(w, "%s %d change(s), %d skipped\n", green("✓"), changed, len(actions)-changed)
	}

	errs := report.Errors()
	if len(errs) > 0 {
		fmt.Fprintf(w, "%s %d error(s):\n", yellow("⚠"), len(errs))
		for _, err := range errs {
			fmt.Fprintf(w, "  %s %v\n", red("✗"), err)
		}
	}
}
