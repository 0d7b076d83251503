package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/serviceline/serviceline/internal/advisors"
)

// Reconciler runs advisor reconciliation.
type Reconciler interface {
	Reconcile(ctx context.Context, showroomID, actorID int64, apply bool) (*advisors.Report, error)
	ReconcileAll(ctx context.Context, apply bool) ([]advisors.Report, error)
}

// ExitPending is returned by a dry run that found rows to assign.
const ExitPending = 10

// BackfillOptions configures the advisors backfill command.
type BackfillOptions struct {
	ShowroomID int64
	Apply      bool
	Yes        bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
	Stdin      io.Reader
	Confirm    func(io.Reader, io.Writer) (bool, error)
}

// AdvisorsCLI exposes advisor maintenance commands.
type AdvisorsCLI struct {
	service Reconciler
}

// NewAdvisorsCLI wires the helper.
func NewAdvisorsCLI(service Reconciler) *AdvisorsCLI {
	return &AdvisorsCLI{service: service}
}

// BackfillCommand previews or applies advisor id reconciliation and returns
// the process exit code.
func (c *AdvisorsCLI) BackfillCommand(ctx context.Context, opts BackfillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}

	preview, err := c.run(ctx, opts.ShowroomID, false)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "advisors backfill: %v\n", err)
		return 1
	}
	pending := 0
	for _, r := range preview {
		pending += len(r.Proposals)
	}
	if !opts.Apply || pending == 0 {
		if err := writeReports(opts, preview); err != nil {
			fmt.Fprintf(opts.Stderr, "advisors backfill: %v\n", err)
			return 1
		}
		if !opts.Apply && pending > 0 {
			return ExitPending
		}
		return 0
	}

	if !opts.Yes {
		if !opts.JSONOutput {
			_ = writeReports(opts, preview)
		}
		confirm := opts.Confirm
		if confirm == nil {
			confirm = defaultConfirm
		}
		ok, err := confirm(opts.Stdin, opts.Stdout)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "advisors backfill: confirmation failed: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(opts.Stderr, "advisors backfill: cancelled by user")
			return 1
		}
	}

	applied, err := c.run(ctx, opts.ShowroomID, true)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "advisors backfill: apply failed: %v\n", err)
		return 1
	}
	if err := writeReports(opts, applied); err != nil {
		fmt.Fprintf(opts.Stderr, "advisors backfill: %v\n", err)
		return 1
	}
	return 0
}

func (c *AdvisorsCLI) run(ctx context.Context, showroomID int64, apply bool) ([]advisors.Report, error) {
	if showroomID > 0 {
		r, err := c.service.Reconcile(ctx, showroomID, 0, apply)
		if err != nil {
			return nil, err
		}
		return []advisors.Report{*r}, nil
	}
	return c.service.ReconcileAll(ctx, apply)
}

func writeReports(opts BackfillOptions, reports []advisors.Report) error {
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	if len(reports) == 0 {
		_, err := fmt.Fprintln(opts.Stdout, "No unassigned advisor names.")
		return err
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 0, 2, ' ', 0)
	for _, r := range reports {
		state := "dry run"
		if r.Applied {
			state = fmt.Sprintf("applied, %d rows assigned", r.AssignedRows)
		}
		fmt.Fprintf(tw, "Showroom %d (%s)\n", r.ShowroomID, state)
		fmt.Fprintln(tw, "NAME\tROWS\tUSER\tPOLICY")
		for _, p := range r.Proposals {
			fmt.Fprintf(tw, "%s\t%d\t%s (#%d)\t%s\n", p.Name, p.Rows, p.UserName, p.UserID, p.Policy)
		}
		for _, a := range r.Ambiguous {
			names := make([]string, 0, len(a.Candidates))
			for _, cand := range a.Candidates {
				names = append(names, cand.Name)
			}
			fmt.Fprintf(tw, "%s\t%d\tambiguous: %s\t-\n", a.Name, a.Rows, strings.Join(names, ", "))
		}
		for _, u := range r.Unmatched {
			fmt.Fprintf(tw, "%s\t%d\tno match\t-\n", u.Name, u.Rows)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func defaultConfirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Apply these assignments? [y/N]: ")
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
