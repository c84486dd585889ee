package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/flowtest/internal/call"
	"github.com/alexisbeaulieu97/flowtest/internal/dispatch"
	"github.com/alexisbeaulieu97/flowtest/internal/executor"
	"github.com/alexisbeaulieu97/flowtest/internal/httpclient"
	"github.com/alexisbeaulieu97/flowtest/internal/model"
	"github.com/alexisbeaulieu97/flowtest/internal/prompt"
	"github.com/alexisbeaulieu97/flowtest/internal/registry"
	"github.com/alexisbeaulieu97/flowtest/internal/scheduler"
)

type runOptions struct {
	SuitesDir      string
	StepIDs        []string
	Priorities     []string
	SuiteNames     []string
	Parallel       bool
	MaxParallel    int
	NonInteractive bool
	JSONOutput     bool
}

func newRunCmd(root *rootFlags, app *AppContext) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover and run suites under a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.NonInteractive = opts.NonInteractive || !term.IsTerminal(int(os.Stdin.Fd()))
			return runRun(cmd, app, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.SuitesDir, "dir", "d", ".", "Directory to discover suite YAML files under")
	cmd.Flags().StringSliceVar(&opts.StepIDs, "step", nil, "Restrict execution to step ids (bare or suite::step)")
	cmd.Flags().StringSliceVar(&opts.Priorities, "priority", nil, "Restrict execution to suite priorities (critical,high,medium,low)")
	cmd.Flags().StringSliceVar(&opts.SuiteNames, "suite", nil, "Restrict execution to suite node_ids or suite names")
	cmd.Flags().BoolVar(&opts.Parallel, "parallel", false, "Run independent suites concurrently instead of sequentially (spec §5 default is sequential)")
	cmd.Flags().IntVar(&opts.MaxParallel, "max-parallel", scheduler.DefaultMaxParallel, "Maximum suites executed concurrently when --parallel is set")
	cmd.Flags().BoolVar(&opts.NonInteractive, "non-interactive", false, "Never prompt; use each input's ci_default/default")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Emit a JSON summary instead of a table")

	return cmd
}

func runRun(cmd *cobra.Command, app *AppContext, opts *runOptions) error {
	ctx, log := app.CommandContext(cmd, "run")

	catalog, err := discoverSuites(opts.SuitesDir)
	if err != nil {
		return newCommandError("run", "discovering suites", err, "Check that --dir points at a directory of suite YAML files.")
	}
	if len(catalog.discovered) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no suites discovered")
		return nil
	}

	maxParallel := 1
	if opts.Parallel {
		maxParallel = opts.MaxParallel
	}
	if catalog.hasInputStep() {
		maxParallel = 1
		if log != nil {
			log.Info(ctx, "forcing sequential execution: suite contains an interactive input step")
		}
	}

	reg := registry.New()
	callService := &call.Service{Loader: catalog.loader}

	var prompter prompt.Prompter
	if opts.NonInteractive {
		prompter = prompt.CIPrompter{}
	} else {
		prompter = prompt.Interactive{}
	}

	sched := scheduler.New(scheduler.WithMaxParallel(maxParallel))

	selected := filterDiscovered(catalog.discovered, opts.Priorities, opts.SuiteNames)

	run := func(ctx context.Context, discovered model.DiscoveredSuite) model.SuiteResult {
		suite := catalog.byNodeID[discovered.NodeID]

		client := httpclient.New()
		d := dispatch.New(client, callService, prompter)

		exec := &executor.Executor{
			Dispatcher: d,
			HTTPClient: client,
			Registry:   reg,
			Logger:     app.LoggerFor("executor"),
			Publisher:  app.Publisher,
			Filters:    executor.Filters{StepIDs: opts.StepIDs},
		}
		return exec.Run(ctx, suite)
	}

	results := sched.Execute(ctx, selected, run, nil)

	for _, w := range sched.Warnings() {
		if log != nil {
			log.Warn(ctx, w.Message, "error", w.Err)
		}
	}

	if opts.JSONOutput {
		return renderRunJSON(cmd, results)
	}
	return renderRunTable(cmd, results)
}

// filterDiscovered applies the priorities/suite_names runtime filters
// (spec §6) at suite-selection time; an empty filter list leaves the
// catalog unrestricted.
func filterDiscovered(suites []model.DiscoveredSuite, priorities, suiteNames []string) []model.DiscoveredSuite {
	if len(priorities) == 0 && len(suiteNames) == 0 {
		return suites
	}

	priorityOk := make(map[model.Priority]bool, len(priorities))
	for _, p := range priorities {
		priorityOk[model.Priority(strings.ToLower(p))] = true
	}
	nameOk := make(map[string]bool, len(suiteNames))
	for _, n := range suiteNames {
		nameOk[n] = true
	}

	var out []model.DiscoveredSuite
	for _, suite := range suites {
		if len(priorityOk) > 0 && !priorityOk[suite.Priority] {
			continue
		}
		if len(nameOk) > 0 && !nameOk[suite.NodeID] && !nameOk[suite.Name] {
			continue
		}
		out = append(out, suite)
	}
	return out
}

func renderRunTable(cmd *cobra.Command, results []model.SuiteResult) error {
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NODE_ID\tSTATUS\tSTEPS\tDURATION_MS\tDETAIL")

	failed := 0
	for _, r := range results {
		if r.Status == model.SuiteStatusFailed {
			failed++
		}
		detail := r.ErrorMessage
		if detail == "" {
			detail = r.SkipReason
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\n", r.NodeID, r.Status, len(r.StepResults), r.DurationMs, detail)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d suites failed", failed, len(results))
	}
	return nil
}

func renderRunJSON(cmd *cobra.Command, results []model.SuiteResult) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return err
	}
	for _, r := range results {
		if r.Status == model.SuiteStatusFailed {
			return fmt.Errorf("one or more suites failed")
		}
	}
	return nil
}
