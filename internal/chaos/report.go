package chaos

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

var (
	passLabel = color.New(color.FgGreen, color.Bold).Sprint("PASS")
	failLabel = color.New(color.FgRed, color.Bold).Sprint("FAIL")
)

// WriteReport prints a summary table followed by a one-line verdict.
func WriteReport(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "#\tSCENARIO\tRESULT\tOK\tFAILED\tDURATION\tDETAILS")
	for i, res := range results {
		label := failLabel
		if res.Passed {
			label = passLabel
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
			i+1, res.Name, label, res.OK, res.Failed, res.Duration.Round(time.Millisecond), res.Details)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	passed := 0
	for _, res := range results {
		if res.Passed {
			passed++
		}
	}

	verdict := color.GreenString("%d/%d scenarios passed", passed, len(results))
	if passed != len(results) || len(results) == 0 {
		verdict = color.RedString("%d/%d scenarios passed", passed, len(results))
	}
	_, err := fmt.Fprintln(w, "\n"+verdict)
	return err
}
