package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"signalhouse/overture/pkg/cli"
	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/policy"

	"github.com/spf13/cobra"
)

var experimentCmd = &cobra.Command{
	Use:     "experiment",
	Aliases: []string{"exp"},
	Short:   "Inspect and manage experiments",
	Long: `Inspect experiment state, force statistical evaluations, and
register new experiment definitions.

Evaluation normally runs on the pack's sweep schedule; the evaluate
subcommand is for advancing an experiment by hand or in scripts.`,
}

var experimentListFlags struct {
	format string
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments",
	RunE:  experimentList,
}

var experimentShowFlags struct {
	format string
}

var experimentShowCmd = &cobra.Command{
	Use:   "show <experiment-id>",
	Short: "Show one experiment and its variants",
	Args:  cobra.ExactArgs(1),
	RunE:  experimentShow,
}

var experimentEvaluateFlags struct {
	all    bool
	format string
}

var experimentEvaluateCmd = &cobra.Command{
	Use:   "evaluate [experiment-id]",
	Short: "Force a statistical evaluation",
	Long: `Evaluate one experiment, or every open experiment with --all,
against the active policy pack's limits and report what changed.

Examples:
  overture experiment evaluate subject-line-test
  overture experiment evaluate --all --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: experimentEvaluate,
}

var experimentCreateFlags struct {
	file string
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register an experiment from a YAML or JSON file",
	Long: `Register an experiment definition. The file must name the
experiment ID and its variants with weights summing to 1, exactly one
of them marked control.

Example definition:
  id: subject-line-test
  name: Subject line A/B
  variants:
    - id: control
      weight: 0.5
      control: true
    - id: emoji
      weight: 0.5`,
	RunE: experimentCreate,
}

func init() {
	rootCmd.AddCommand(experimentCmd)
	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentShowCmd)
	experimentCmd.AddCommand(experimentEvaluateCmd)
	experimentCmd.AddCommand(experimentCreateCmd)

	experimentListCmd.Flags().StringVar(&experimentListFlags.format, "format", "table", "output format: table, json")
	experimentShowCmd.Flags().StringVar(&experimentShowFlags.format, "format", "table", "output format: table, json")
	experimentEvaluateCmd.Flags().BoolVar(&experimentEvaluateFlags.all, "all", false, "evaluate every open experiment")
	experimentEvaluateCmd.Flags().StringVar(&experimentEvaluateFlags.format, "format", "table", "output format: table, json")
	experimentCreateCmd.Flags().StringVarP(&experimentCreateFlags.file, "file", "f", "", "experiment definition (YAML or JSON, required)")
	experimentCreateCmd.MarkFlagRequired("file")
}

// openExperimentEnv builds the allocator for the experiment subcommands.
// A policy pack that fails to load is only a warning here: list and show
// never consult it, and evaluate fails with ErrNoPack exactly when the
// limits would matter.
func openExperimentEnv(ctx context.Context) (*experiment.Allocator, experiment.Store, error) {
	cfg, _, err := loadConfigOrDefaults()
	if err != nil {
		return nil, nil, err
	}
	logger := cliLogger()

	src, err := newPolicySource(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	mgr := policy.NewManager(src, logger)
	if err := mgr.Reload(ctx); err != nil {
		logger.Warn("policy pack unavailable, pack-dependent operations will fail", "error", err)
	}

	store, err := openExperimentStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	alloc, err := experiment.NewAllocator(store, mgr, logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return alloc, store, nil
}

// tableFormat parses a format flag for commands that render tables or
// JSON but have no CSV shape.
func tableFormat(s string) (cli.OutputFormat, error) {
	format, err := cli.ParseFormat(s)
	if err != nil {
		return format, err
	}
	if format == cli.FormatCSV {
		return format, fmt.Errorf("csv output is only supported for ledger commands")
	}
	return format, nil
}

func experimentList(cmd *cobra.Command, args []string) error {
	format, err := tableFormat(experimentListFlags.format)
	if err != nil {
		return err
	}

	ctx := context.Background()
	alloc, store, err := openExperimentEnv(ctx)
	if err != nil {
		return cli.NewCommandError("experiment list", err)
	}
	defer store.Close()

	exps, err := alloc.List(ctx)
	if err != nil {
		return cli.NewCommandError("experiment list", err)
	}

	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, exps)
	}
	if len(exps) == 0 {
		fmt.Println("No experiments found.")
		return nil
	}

	tbl := cli.NewTable(os.Stdout, "ID", "NAME", "STATE", "VARIANTS", "STARTED", "WINNER")
	for _, e := range exps {
		tbl.Row(
			e.ID,
			e.Name,
			string(e.State),
			strconv.Itoa(len(e.Variants)),
			e.StartedAt.UTC().Format(time.RFC3339),
			e.WinnerID,
		)
	}
	return tbl.Flush()
}

func experimentShow(cmd *cobra.Command, args []string) error {
	format, err := tableFormat(experimentShowFlags.format)
	if err != nil {
		return err
	}

	ctx := context.Background()
	alloc, store, err := openExperimentEnv(ctx)
	if err != nil {
		return cli.NewCommandError("experiment show", err)
	}
	defer store.Close()

	exp, err := alloc.Get(ctx, args[0])
	if err != nil {
		return cli.NewCommandError("experiment show", err)
	}

	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, exp)
	}

	fmt.Printf("ID:      %s\n", exp.ID)
	if exp.Name != "" {
		fmt.Printf("Name:    %s\n", exp.Name)
	}
	fmt.Printf("State:   %s\n", exp.State)
	fmt.Printf("Started: %s\n", exp.StartedAt.UTC().Format(time.RFC3339))
	if !exp.ClosedAt.IsZero() {
		fmt.Printf("Closed:  %s\n", exp.ClosedAt.UTC().Format(time.RFC3339))
	}
	if exp.WinnerID != "" {
		fmt.Printf("Winner:  %s\n", exp.WinnerID)
	}
	fmt.Println()

	tbl := cli.NewTable(os.Stdout, "VARIANT", "WEIGHT", "CONTROL", "IMPRESSIONS", "CONVERSIONS", "RATE")
	for i := range exp.Variants {
		v := &exp.Variants[i]
		control := ""
		if v.Control {
			control = "yes"
		}
		tbl.Row(
			v.ID,
			fmt.Sprintf("%.2f", v.Weight),
			control,
			strconv.FormatUint(v.Impressions, 10),
			strconv.FormatUint(v.Conversions, 10),
			fmt.Sprintf("%.4f", v.Rate()),
		)
	}
	return tbl.Flush()
}

func experimentEvaluate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !experimentEvaluateFlags.all {
		return fmt.Errorf("an experiment ID or --all is required")
	}
	format, err := tableFormat(experimentEvaluateFlags.format)
	if err != nil {
		return err
	}

	ctx := context.Background()
	alloc, store, err := openExperimentEnv(ctx)
	if err != nil {
		return cli.NewCommandError("experiment evaluate", err)
	}
	defer store.Close()

	var decisions []*experiment.Decision
	if experimentEvaluateFlags.all {
		decisions, err = alloc.EvaluateAll(ctx)
	} else {
		var d *experiment.Decision
		d, err = alloc.Evaluate(ctx, args[0])
		if err == nil {
			decisions = []*experiment.Decision{d}
		}
	}
	if err != nil {
		return cli.NewCommandError("experiment evaluate", err)
	}

	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, decisions)
	}
	if len(decisions) == 0 {
		fmt.Println("No open experiments to evaluate.")
		return nil
	}

	tbl := cli.NewTable(os.Stdout, "EXPERIMENT", "OP", "VARIANT", "P-VALUE", "LIFT", "REASON")
	for _, d := range decisions {
		tbl.Row(
			d.ExperimentID,
			string(d.Op),
			d.VariantID,
			fmt.Sprintf("%.4f", d.PValue),
			fmt.Sprintf("%+.4f", d.Lift),
			d.Reason,
		)
	}
	return tbl.Flush()
}

func experimentCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	alloc, store, err := openExperimentEnv(ctx)
	if err != nil {
		return cli.NewCommandError("experiment create", err)
	}
	defer store.Close()

	var exp experiment.Experiment
	if err := decodeFile(experimentCreateFlags.file, &exp); err != nil {
		return cli.NewCommandError("experiment create", fmt.Errorf("failed to read experiment: %w", err))
	}
	if err := alloc.Create(ctx, &exp); err != nil {
		return cli.NewCommandError("experiment create", err)
	}

	fmt.Printf("✓ Experiment %s created (%d variants)\n", exp.ID, len(exp.Variants))
	return nil
}
