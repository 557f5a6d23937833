package release

import (
	"fmt"
	"io"
	"time"

	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/registry"
	"github.com/nexusops/forge/pkg/rollout"
)

// Process exit codes, the engine's contract with whatever invoked it.
const (
	ExitSuccess    = 0 // all steps succeeded
	ExitFailed     = 1 // fatal failure, no rollback configured or rollback failed
	ExitRolledBack = 2 // fatal failure, rollback succeeded
	ExitTimedOut   = 3 // reconcile or rollout watch timed out
	ExitCancelled  = 130
)

// ExitCode maps a finished run to its process exit code.
func ExitCode(run *Run) int {
	switch run.Status {
	case RunSucceeded:
		return ExitSuccess
	case RunCancelled:
		return ExitCancelled
	case RunRolledBack:
		return ExitRolledBack
	}
	switch fluxerr.TypeOf(run.Err) {
	case fluxerr.ReconcileTimeout, fluxerr.RolloutTimedOut:
		return ExitTimedOut
	}
	return ExitFailed
}

// PrintResult writes a human-readable account of the run: every step
// with its outcome, and for the failing step the full trail of push
// attempts or captured pod diagnostics.
func PrintResult(w io.Writer, run *Run) {
	fmt.Fprintf(w, "%s %s (%s): %s\n", run.Pipeline, run.Target.ID(), run.ID, run.Status)
	for _, step := range run.Steps {
		printStep(w, step, "  ")
	}
	if run.Err != nil {
		fmt.Fprintf(w, "error: %v\n", run.Err)
		if e, ok := run.Err.(*fluxerr.Error); ok && e.Help != "" {
			fmt.Fprintf(w, "%s\n", e.Help)
		}
	}
	if run.RollbackErr != nil {
		fmt.Fprintf(w, "ROLLBACK FAILED: %v\n", run.RollbackErr)
	}
}

func printStep(w io.Writer, step *Step, indent string) {
	fmt.Fprintf(w, "%s%-16s %-10s", indent, step.Name, step.Status)
	if step.Attempts > 1 {
		fmt.Fprintf(w, " attempts=%d", step.Attempts)
	}
	if d := step.Elapsed(); d > 0 {
		fmt.Fprintf(w, " (%s)", d.Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	if step.Err != "" {
		fmt.Fprintf(w, "%s  err: %s\n", indent, step.Err)
	}

	switch result := step.Result.(type) {
	case registry.Result:
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "%s  warning: %s\n", indent, warning)
		}
		if step.Status == StepFailed {
			for _, attempt := range result.Attempts {
				fmt.Fprintf(w, "%s  attempt %d %s: %s %s\n", indent, attempt.N, attempt.Tag.String(), attempt.Outcome, attempt.Err)
			}
		}
	case rollout.Result:
		if step.Status == StepFailed {
			fmt.Fprintf(w, "%s  rollout state: %s (%s)\n", indent, result.State, result.Cause)
			for _, d := range result.Diagnostics {
				fmt.Fprintf(w, "%s  pod %s: %s\n", indent, d.Pod, d.Problem)
				for _, event := range d.Events {
					fmt.Fprintf(w, "%s    event: %s\n", indent, event)
				}
				if d.Logs != "" {
					fmt.Fprintf(w, "%s    logs:\n", indent)
					fmt.Fprint(w, prefixLines(d.Logs, indent+"      "))
				}
			}
		}
	case *Run:
		for _, sub := range result.Steps {
			printStep(w, sub, indent+"  ")
		}
	}
}

func prefixLines(s, prefix string) string {
	out := ""
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if i > start {
				out += prefix + s[start:i] + "\n"
			}
			start = i + 1
		}
	}
	return out
}
