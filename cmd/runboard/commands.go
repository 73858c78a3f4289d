package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/stackmesh/runboard/internal/config"
	"github.com/stackmesh/runboard/internal/domain"
	"github.com/stackmesh/runboard/internal/monitor"
	"github.com/stackmesh/runboard/internal/notify"
	"github.com/stackmesh/runboard/internal/observer"
	"github.com/stackmesh/runboard/internal/planstore"
	"github.com/stackmesh/runboard/internal/runnerapi"
	"github.com/stackmesh/runboard/internal/schedule"
	"github.com/stackmesh/runboard/tui"
)

var (
	runDryRun   bool
	planRefresh bool
	demoAddr    string
	demoFail    string
)

func init() {
	watchCmd := &cobra.Command{
		Use:   "watch SPEC",
		Short: "Launch the live dashboard for a spec",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	runCmd := &cobra.Command{
		Use:   "run SPEC",
		Short: "Execute a spec headless, streaming progress to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runHeadless,
	}
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "ask the runner for a dry run")
	rootCmd.AddCommand(runCmd)

	planCmd := &cobra.Command{
		Use:   "plan SPEC",
		Short: "Show the execution plan for a spec",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan,
	}
	planCmd.Flags().BoolVar(&planRefresh, "refresh", false, "refetch the plan from the runner")
	rootCmd.AddCommand(planCmd)

	specsCmd := &cobra.Command{
		Use:   "specs",
		Short: "List specs with cached plans",
		RunE:  runSpecs,
	}
	rootCmd.AddCommand(specsCmd)

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run scheduled executions from the schedule file",
		RunE:  runSchedule,
	}
	rootCmd.AddCommand(scheduleCmd)

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Launch the dashboard against a built-in scripted runner",
		RunE:  runDemo,
	}
	demoCmd.Flags().StringVar(&demoAddr, "addr", "127.0.0.1:9191", "address for the stub runner")
	demoCmd.Flags().StringVar(&demoFail, "fail-batch", "", "make the named demo batch fail")
	rootCmd.AddCommand(demoCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	notifiers := []notify.Notifier{}
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}

// loadPlan fetches the plan from the runner, caching it on success.
// When the runner is unreachable it falls back to the cache, then to
// the local spec file.
func loadPlan(ctx context.Context, client *runnerapi.Client, store *planstore.Store, specsDir, spec string, refresh bool) (*domain.Plan, error) {
	if !refresh && store != nil {
		if plan, err := store.GetPlan(spec); err == nil && plan != nil {
			return plan, nil
		}
	}

	plan, err := client.FetchPlan(ctx, spec)
	if err != nil {
		if store != nil {
			if cached, cerr := store.GetPlan(spec); cerr == nil && cached != nil {
				log.Printf("runner unreachable, using cached plan for %s: %v", spec, err)
				return cached, nil
			}
		}
		if local, lerr := loadLocalPlan(specsDir, spec); lerr == nil {
			log.Printf("runner unreachable, using local plan for %s: %v", spec, err)
			return local, nil
		}
		return nil, err
	}

	if store != nil {
		if err := store.SavePlan(plan); err != nil {
			log.Printf("caching plan for %s: %v", spec, err)
		}
	}
	return plan, nil
}

// loadLocalPlan parses a spec's plan file from the specs directory
func loadLocalPlan(specsDir, spec string) (*domain.Plan, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		data, err := os.ReadFile(filepath.Join(specsDir, spec+ext))
		if err != nil {
			continue
		}
		plan, err := domain.ParsePlan(data)
		if err != nil {
			return nil, err
		}
		if plan.Spec == "" {
			plan.Spec = spec
		}
		return plan, nil
	}
	return nil, fmt.Errorf("no local plan file for %s in %s", spec, specsDir)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	spec := ""
	if len(args) > 0 {
		spec = args[0]
	}
	if spec == "" {
		return fmt.Errorf("spec name is required (runboard watch SPEC)")
	}

	client := runnerapi.NewClient(cfg.Runner.BaseURL)

	store, err := planstore.New(cfg.Specs.PlanCacheDB)
	if err != nil {
		return fmt.Errorf("opening plan cache: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	plan, err := loadPlan(ctx, client, store, cfg.Specs.Dir, spec, false)
	if err != nil {
		return fmt.Errorf("loading plan for %s: %w", spec, err)
	}

	mon, err := monitor.New(monitor.Config{
		StreamURL: client.StreamURL,
		Runner:    client,
		Notifier:  buildNotifier(cfg),
	})
	if err != nil {
		return err
	}
	mon.SetPlan(plan)

	// Refresh the plan when the spec file changes on disk
	if cfg.Specs.WatchChanges {
		watcher, werr := observer.NewSpecWatcher(cfg.Specs.Dir, func(specs []string) {
			for _, changed := range specs {
				if changed != spec {
					continue
				}
				fresh, ferr := loadPlan(context.Background(), client, store, cfg.Specs.Dir, spec, true)
				if ferr != nil {
					log.Printf("refreshing plan for %s: %v", spec, ferr)
					continue
				}
				mon.SetPlan(fresh)
			}
		})
		if werr != nil {
			log.Printf("spec watcher unavailable: %v", werr)
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	model := tui.NewModel(tui.ModelConfig{
		Monitor:  mon,
		Spec:     spec,
		LogLines: cfg.Display.LogLines,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runHeadless(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return executeRun(cfg, args[0], runDryRun)
}

// executeRun drives one run to completion without the TUI, printing
// orchestrator log lines as they arrive.
func executeRun(cfg *config.Config, spec string, dryRun bool) error {
	client := runnerapi.NewClient(cfg.Runner.BaseURL)

	store, err := planstore.New(cfg.Specs.PlanCacheDB)
	if err != nil {
		return fmt.Errorf("opening plan cache: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := loadPlan(ctx, client, store, cfg.Specs.Dir, spec, false)
	if err != nil {
		return fmt.Errorf("loading plan for %s: %w", spec, err)
	}

	mon, err := monitor.New(monitor.Config{
		StreamURL: client.StreamURL,
		Runner:    client,
		Notifier:  buildNotifier(cfg),
	})
	if err != nil {
		return err
	}
	defer mon.Close()
	mon.SetPlan(plan)

	if err := mon.Start(ctx, dryRun); err != nil {
		return err
	}

	printed := 0
	for {
		select {
		case <-ctx.Done():
			abortCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := mon.Abort(abortCtx)
			cancel()
			if err != nil {
				return err
			}
			return fmt.Errorf("run aborted")
		case <-mon.Updates():
		}

		snap := mon.Snapshot()
		for _, e := range snap.Orchestrator[printed:] {
			fmt.Printf("%s %s\n", e.Timestamp.Format("15:04:05"), e.Message)
		}
		printed = len(snap.Orchestrator)

		if snap.Run.Status.Terminal() {
			if snap.Summary != nil {
				fmt.Printf("\n%s: %d completed, %d failed, %d pending in %s\n",
					snap.Run.Status, snap.Summary.Completed, snap.Summary.Failed,
					snap.Summary.Pending, snap.Summary.Elapsed.Round(time.Second))
			}
			if snap.Run.Status != domain.RunCompleted {
				return fmt.Errorf("run %s", snap.Run.Status)
			}
			return nil
		}
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	spec := args[0]

	client := runnerapi.NewClient(cfg.Runner.BaseURL)
	store, err := planstore.New(cfg.Specs.PlanCacheDB)
	if err != nil {
		return fmt.Errorf("opening plan cache: %w", err)
	}
	defer store.Close()

	plan, err := loadPlan(context.Background(), client, store, cfg.Specs.Dir, spec, planRefresh)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BATCH\tNAME\tTASKS\tDEPENDS ON\tMODEL\tEST")
	for _, b := range plan.Batches {
		deps := "-"
		if len(b.DependsOn) > 0 {
			deps = fmt.Sprintf("%v", b.DependsOn)
		}
		est := "-"
		if b.EstimatedCost > 0 {
			est = fmt.Sprintf("$%.2f/%dm", b.EstimatedCost, b.EstimatedMins)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			b.ID, b.Name, len(b.Tasks), deps, b.Model, est)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if total := plan.TotalEstimatedCost(); total > 0 {
		fmt.Printf("\nEstimated total: $%.2f\n", total)
	}
	return nil
}

func runSpecs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := planstore.New(cfg.Specs.PlanCacheDB)
	if err != nil {
		return fmt.Errorf("opening plan cache: %w", err)
	}
	defer store.Close()

	specs, err := store.ListSpecs()
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		fmt.Println("No cached plans. Fetch one with: runboard plan SPEC")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SPEC\tFETCHED")
	for _, spec := range specs {
		fetched, _ := store.FetchedAt(spec)
		fmt.Fprintf(w, "%s\t%s\n", spec, humanize.Time(fetched))
	}
	return w.Flush()
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Runner.ScheduleFile == "" {
		return fmt.Errorf("no schedule_file configured under [runner]")
	}

	schedCfg, err := schedule.LoadScheduleConfig(cfg.Runner.ScheduleFile)
	if err != nil {
		return err
	}
	if len(schedCfg.Entries) == 0 {
		return fmt.Errorf("schedule file %s has no [[run]] entries", cfg.Runner.ScheduleFile)
	}

	sched, err := schedule.NewScheduler(schedCfg.Entries)
	if err != nil {
		return err
	}

	for _, e := range schedCfg.Entries {
		log.Printf("scheduled %s (%s), next run %s",
			e.Spec, e.Cron, sched.NextRun(e.Spec).Format(time.RFC3339))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sched.Stop()
	}()

	sched.Start(func(e schedule.Entry) error {
		log.Printf("starting scheduled run of %s", e.Spec)
		return executeRun(cfg, e.Spec, e.DryRun)
	})
	return nil
}
