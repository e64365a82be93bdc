package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/domain-enricher/internal/adapters/reaper"
	"github.com/target/domain-enricher/internal/data"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/service"
)

type importSeedOptions struct {
	File    string
	Timeout time.Duration
}

func parseImportSeedFlags(args []string) (importSeedOptions, error) {
	fs := flag.NewFlagSet("import-seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := importSeedOptions{Timeout: defaultImportTimeout}
	fs.StringVar(&opts.File, "file", "", "Path to the pipe-delimited export (\"-\" reads stdin)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultImportTimeout, "Maximum duration for the import")

	if err := fs.Parse(args); err != nil {
		return importSeedOptions{}, err
	}
	opts.File = strings.TrimSpace(opts.File)
	if opts.File == "" {
		return importSeedOptions{}, errors.New("--file is required")
	}
	if opts.Timeout <= 0 {
		return importSeedOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runImportSeed(cmdCtx *commandContext, args []string) (err error) {
	opts, err := parseImportSeedFlags(args)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if opts.File != "-" {
		f, openErr := os.Open(opts.File)
		if openErr != nil {
			return fmt.Errorf("open seed file: %w", openErr)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close seed file: %w", closeErr)
			}
		}()
		in = f
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, closeDB, err := openDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	importer, err := service.NewSeedImporter(service.SeedImporterOptions{
		Store:  data.NewWorkRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}),
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	report, err := importer.Import(ctx, in)
	if printErr := printImportReport(os.Stdout, report); printErr != nil {
		err = errors.Join(err, printErr)
	}
	return err
}

func printImportReport(w io.Writer, report model.ImportReport) error {
	return writef(w, "inserted=%d existing=%d missing_owner=%d skipped=%d\n",
		report.Inserted, report.Existing, report.MissingOwner, report.Skipped)
}

type reclaimOptions struct {
	Stages  []model.Stage
	Timeout time.Duration
}

func parseReclaimFlags(args []string) (reclaimOptions, error) {
	fs := flag.NewFlagSet("reclaim-stale", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var stage string
	opts := reclaimOptions{Timeout: defaultCommandTimeout}
	fs.StringVar(&stage, "stage", "", "Only reclaim this stage (default: all stages)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the reclaim pass")

	if err := fs.Parse(args); err != nil {
		return reclaimOptions{}, err
	}
	if opts.Timeout <= 0 {
		return reclaimOptions{}, errors.New("--timeout must be greater than zero")
	}
	if stage = strings.TrimSpace(stage); stage != "" {
		s, err := model.ParseStage(stage)
		if err != nil {
			return reclaimOptions{}, err
		}
		opts.Stages = []model.Stage{s}
	}
	return opts, nil
}

func runReclaimStale(cmdCtx *commandContext, args []string) error {
	opts, err := parseReclaimFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, closeDB, err := openDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:     db,
		Config: cmdCtx.Config.Reaper,
		Stages: opts.Stages,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	report, err := runner.RunOnce(ctx)
	if err != nil {
		return err
	}
	return printReapReport(os.Stdout, report)
}

func printReapReport(w io.Writer, report service.ReapReport) error {
	for _, stage := range model.AllStages() {
		n, ok := report.Reclaimed[stage]
		if !ok {
			continue
		}
		if err := writef(w, "%-14s reclaimed=%d\n", stage, n); err != nil {
			return err
		}
	}
	return nil
}

func runBacklog(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, closeDB, err := openDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	backlog, err := data.NewWorkRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}).Backlog(ctx)
	if err != nil {
		return fmt.Errorf("load backlog: %w", err)
	}
	return printBacklog(os.Stdout, backlog)
}

func printBacklog(w io.Writer, backlog []model.StageBacklog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "STAGE\tNOT_STARTED\tCLAIMED\tDONE"); err != nil {
		return err
	}
	for _, b := range backlog {
		if err := writef(tw, "%s\t%d\t%d\t%d\n", b.Stage, b.NotStarted, b.Claimed, b.Done); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runStageState(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("stage-state", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	domain := fs.String("domain", "", "Domain to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(*domain)), ".")
	if d == "" {
		return errors.New("--domain is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, closeDB, err := openDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	repo := data.NewWorkRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	states := make(map[model.Stage]model.StageState, len(model.AllStages()))
	for _, stage := range model.AllStages() {
		st, stErr := repo.GetStageState(ctx, d, stage)
		if stErr != nil {
			return fmt.Errorf("stage %s: %w", stage, stErr)
		}
		states[stage] = st
	}
	return printStageStates(os.Stdout, d, states)
}

func printStageStates(w io.Writer, domain string, states map[model.Stage]model.StageState) error {
	if err := writef(w, "Domain: %s\n", domain); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "STAGE\tSTATUS\tWORKER\tLEASE_EXPIRES\tRECLAIMS"); err != nil {
		return err
	}
	for _, stage := range model.AllStages() {
		st, ok := states[stage]
		if !ok {
			continue
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%d\n",
			stage, st.Status, dashIfEmpty(st.WorkerID), formatTime(st.LeaseExpiresAt), st.ReclaimCount); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
