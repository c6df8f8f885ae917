package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kylegalloway/applyflow/internal/answers"
	"github.com/kylegalloway/applyflow/internal/api"
	"github.com/kylegalloway/applyflow/internal/artifacts"
	"github.com/kylegalloway/applyflow/internal/browser"
	"github.com/kylegalloway/applyflow/internal/config"
	"github.com/kylegalloway/applyflow/internal/locks"
	"github.com/kylegalloway/applyflow/internal/logging"
	"github.com/kylegalloway/applyflow/internal/notion"
	"github.com/kylegalloway/applyflow/internal/observability"
	"github.com/kylegalloway/applyflow/internal/orchestrator"
	"github.com/kylegalloway/applyflow/internal/session"
	"github.com/kylegalloway/applyflow/internal/stages"
	"github.com/kylegalloway/applyflow/internal/state"
	"github.com/kylegalloway/applyflow/internal/store"
	"github.com/kylegalloway/applyflow/internal/ui"
)

var (
	version = "dev"
)

const usage = `Usage: applyflow [serve] [--config applyflow.yaml] [--dry-run]
       applyflow run [--config applyflow.yaml] [--yes]
       applyflow watch [--addr http://localhost:3000] <session-id>
       applyflow history [--config applyflow.yaml] [--limit 20]
       applyflow cleanup [--config applyflow.yaml]
       applyflow --version`

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		runServe(args)
	case "run":
		runForeground(args)
	case "watch":
		runWatch(args)
	case "history":
		runHistory(args)
	case "cleanup":
		runCleanup(args)
	case "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", cmd, usage)
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLauncher(cfg *config.Config) browser.Launcher {
	return browser.NewChromeLauncher(browser.LaunchOptions{
		Headless:       cfg.Browser.Headless,
		StartMaximized: cfg.Browser.StartMaximized,
		NoSandbox:      cfg.Browser.NoSandbox,
		ExecPath:       cfg.Browser.ExecPath,
		UserAgent:      cfg.Browser.UserAgent,
		Flags:          cfg.Browser.Flags,
	})
}

// setup opens everything a session run needs: the state directory lock,
// logger, tracing, history and the browser state file. The returned func
// releases it all.
func setup(cfg *config.Config, owner string) (*orchestrator.Orchestrator, *state.Manager, *logging.Logger, func()) {
	lock := locks.New(cfg.Sessions.StateDir)
	if err := lock.Acquire(owner); err != nil {
		log.Fatalf("lock state dir: %v", err)
	}

	logger, err := logging.New(cfg.Log.Dir, os.Stderr)
	if err != nil {
		lock.Release()
		log.Fatalf("open logs: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(observability.Options{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Headers:     cfg.Tracing.Headers,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Writer:      os.Stderr,
	}, "applyflow")
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}

	stateMgr := state.NewManager(cfg.Sessions.StateDir)

	// Each browser gets a throwaway profile directory under the temp dir.
	if err := session.CheckDiskSpace(os.TempDir(), session.MinDiskSpaceMB); err != nil {
		logger.Errorf(err, "Disk space check")
	}

	orch := orchestrator.New(cfg, newLauncher(cfg), logger)
	orch.SetTracker(stateMgr)

	answer, err := answers.Build(cfg.Assessment)
	if err != nil {
		log.Fatalf("load assessment answers: %v", err)
	}
	orch.SetAnswerer(answer)

	shots, err := artifacts.Open(cfg.Artifacts)
	if err != nil {
		logger.Errorf(err, "Failure screenshots disabled")
	} else if shots != nil {
		orch.SetArtifacts(shots)
	}

	if cfg.Notion.Enabled {
		tracker := notion.New(cfg.Notion.Token, cfg.Notion.DatabaseID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := tracker.Ping(ctx); err != nil {
			logger.Errorf(err, "Notion database %s unreachable, sync disabled", cfg.Notion.DatabaseID)
		} else {
			orch.SetPublisher(tracker)
		}
		cancel()
	}

	var history *store.Store
	if cfg.History.Enabled {
		history, err = store.Open(context.Background(), cfg.History.Path)
		if err != nil {
			logger.Errorf(err, "Session history disabled")
		} else {
			orch.SetRecorder(history)
		}
	}

	return orch, stateMgr, logger, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Errorf(err, "Flushing traces")
		}
		if history != nil {
			history.Close()
		}
		logger.Close()
		lock.Release()
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "applyflow.yaml", "path to applyflow.yaml config file")
	dryRun := fs.Bool("dry-run", false, "print the effective configuration and exit")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	fs.Parse(args)

	if *showVersion {
		fmt.Printf("applyflow %s\n", version)
		os.Exit(0)
	}

	cfg := loadConfig(*configPath)
	if *dryRun {
		printDryRun(cfg)
		return
	}

	fmt.Printf("applyflow v%s\n", version)

	orch, stateMgr, logger, closeAll := setup(cfg, "serve")
	defer closeAll()

	cleanupResult, err := orchestrator.CleanupStaleState(stateMgr, logger)
	if err != nil {
		logger.Errorf(err, "Startup cleanup")
	}
	if cleanupResult != nil && cleanupResult.StaleRecords > 0 {
		fmt.Println(orchestrator.FormatCleanupResult(cleanupResult))
	}

	capacity := session.EffectiveCapacity(&cfg.Sessions, logger)
	fmt.Printf("Browsers: %d", capacity)
	if capacity != cfg.Sessions.MaxConcurrent {
		fmt.Printf(" (reduced from %d due to available RAM)", cfg.Sessions.MaxConcurrent)
	}
	fmt.Println()

	reg := session.NewRegistry()
	mgr := orchestrator.NewManager(orch, reg, session.NewSlots(capacity), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reg.RunSweeper(ctx, cfg.Sessions.SweepInterval, cfg.Sessions.Retention, func(ids []string) {
		logger.Infof("Cleaned up %d expired session(s): %s", len(ids), strings.Join(ids, ", "))
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nReceived %s, shutting down gracefully...\n", sig)
		cancel()
		// If we get a second signal, force exit
		<-sigCh
		fmt.Fprintln(os.Stderr, "Force exit.")
		os.Exit(1)
	}()

	srv := api.New(mgr, logger)
	if err := srv.Serve(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout); err != nil {
		logger.Errorf(err, "Server stopped")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(err, "Waiting for sessions")
	}
}

func runForeground(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "applyflow.yaml", "path to applyflow.yaml config file")
	yes := fs.Bool("yes", false, "do not prompt; kill orphan browsers and require credentials from config or environment")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	var prompter ui.Prompter
	if *yes {
		prompter = &ui.ScriptedPrompter{}
	} else {
		prompter = ui.NewTerminalPrompter()
	}

	orch, stateMgr, logger, closeAll := setup(cfg, "run")

	if stateMgr.Exists() {
		st, err := stateMgr.Load()
		if err == nil && len(st.Browsers) > 0 && prompter.RecoveryPrompt(st) == ui.RecoveryLeave {
			prompter.Info("Leaving previous browsers running.")
		} else {
			result, err := orchestrator.CleanupStaleState(stateMgr, logger)
			if err != nil {
				prompter.Warn(fmt.Sprintf("startup cleanup: %v", err))
			}
			prompter.Info(orchestrator.FormatCleanupResult(result))
		}
	}

	creds := prompter.Credentials(stages.Credentials{
		Email:    cfg.Credentials.Email,
		Password: cfg.Credentials.Password,
	})
	if creds.Email == "" || creds.Password == "" {
		closeAll()
		fmt.Fprintln(os.Stderr, "Email and password are required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess := session.NewRegistry().Create()
	fmt.Printf("Session %s: applying as %s for %q\n", sess.ID, creds.Email, cfg.Search.Profile)

	start := time.Now()
	res, runErr := orch.Run(ctx, sess, creds)
	snap := sess.Snapshot()

	fmt.Print(ui.FormatRunSummary(ui.RunSummary{
		SessionID:       sess.ID,
		Profile:         cfg.Search.Profile,
		Status:          snap.Status,
		Error:           snap.Error,
		Discovered:      res.Discovered,
		Attempted:       res.Attempted,
		Applied:         snap.ApplicationsSubmitted,
		MaxApplications: cfg.Search.MaxApplications,
		Duration:        time.Since(start),
	}))
	closeAll()
	if runErr != nil {
		os.Exit(1)
	}
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:3000", "applyflow server URL")
	interval := fs.Duration("interval", time.Second, "poll interval")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	client := api.NewClient(*addr)
	snap, err := ui.Watch(fs.Arg(0), client.Status, *interval)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			fmt.Fprintf(os.Stderr, "Session %s not found (unknown or expired)\n", fs.Arg(0))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
	if snap.Status == session.StatusFailed {
		os.Exit(1)
	}
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "applyflow.yaml", "path to applyflow.yaml config file")
	limit := fs.Int("limit", 20, "number of sessions to show")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	ctx := context.Background()
	history, err := store.Open(ctx, cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	defer history.Close()

	records, err := history.RecentSessions(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(ui.FormatHistory(records))
}

func runCleanup(args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", "applyflow.yaml", "path to applyflow.yaml config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := logging.NewWriter(os.Stdout, os.Stderr)
	stateMgr := state.NewManager(cfg.Sessions.StateDir)

	// A live server or run owns the recorded browsers.
	lock := locks.New(cfg.Sessions.StateDir)
	if err := lock.Acquire("cleanup"); err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup error: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	fmt.Println("applyflow cleanup")
	fmt.Println()

	result, err := orchestrator.CleanupStaleState(stateMgr, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(orchestrator.FormatCleanupResult(result))
	fmt.Println("\nCleanup complete.")
}

func printDryRun(cfg *config.Config) {
	fmt.Println("=== applyflow: Dry Run ===")
	fmt.Println()
	fmt.Printf("Config: schema v%d\n", cfg.SchemaVersion)
	fmt.Printf("Portal: %s (listings: %s)\n", cfg.Portal.BaseURL, cfg.Portal.ListingsURL)
	fmt.Printf("Server: %s\n", cfg.Server.Addr)
	fmt.Println()

	fmt.Println("Search:")
	fmt.Printf("  Profile: %s\n", cfg.Search.Profile)
	if cfg.Search.Location != "" {
		fmt.Printf("  Location: %s\n", cfg.Search.Location)
	}
	fmt.Printf("  Work from home: %v, part time: %v\n", cfg.Search.WorkFromHome, cfg.Search.PartTime)
	fmt.Printf("  Max applications: %d\n", cfg.Search.MaxApplications)
	fmt.Println()

	fmt.Println("Timing:")
	fmt.Printf("  Action delay: %v, settle delay: %v\n", cfg.Timing.ActionDelay, cfg.Timing.SettleDelay)
	fmt.Printf("  Operation timeout: %v, filter timeout: %v\n", cfg.Timing.OperationTimeout, cfg.Timing.FilterTimeout)
	fmt.Printf("  Max retries: %d (every %v)\n", cfg.Timing.MaxRetries, cfg.Timing.RetryDelay)
	fmt.Println()

	capacity := session.EffectiveCapacity(&cfg.Sessions, nil)
	fmt.Println("Sessions:")
	fmt.Printf("  Browsers: up to %d", capacity)
	if cfg.Sessions.Adaptive {
		fmt.Printf(" (adaptive: configured=%d)", cfg.Sessions.MaxConcurrent)
	}
	fmt.Println()
	fmt.Printf("  Retention: %v (sweep every %v)\n", cfg.Sessions.Retention, cfg.Sessions.SweepInterval)
	fmt.Printf("  Headless: %v\n", cfg.Browser.Headless)
	fmt.Println()

	fmt.Printf("Cover letter template: %s\n", cfg.CoverLetter.Template)
	fmt.Printf("Assessment: %d rule(s)", len(cfg.Assessment.Rules))
	if cfg.Assessment.Script != "" {
		fmt.Printf(", script %s", cfg.Assessment.Script)
		if _, err := answers.LoadScript(cfg.Assessment.Script, nil); err != nil {
			fmt.Printf(" (INVALID: %v)", err)
		}
	}
	fmt.Println()
	if cfg.History.Enabled {
		fmt.Printf("History: %s\n", cfg.History.Path)
	} else {
		fmt.Println("History: disabled")
	}
	fmt.Printf("Tracing: %s", cfg.Tracing.Exporter)
	if cfg.Tracing.Endpoint != "" {
		fmt.Printf(" -> %s", cfg.Tracing.Endpoint)
	}
	fmt.Printf(" (sample ratio %.2f)\n", cfg.Tracing.SampleRatio)
	switch cfg.Artifacts.Backend {
	case "local":
		fmt.Printf("Screenshots: %s\n", cfg.Artifacts.Dir)
	case "minio":
		fmt.Printf("Screenshots: s3://%s at %s\n", cfg.Artifacts.Bucket, cfg.Artifacts.Endpoint)
	default:
		fmt.Println("Screenshots: disabled")
	}
	if cfg.Notion.Enabled {
		fmt.Printf("Notion: database %s\n", cfg.Notion.DatabaseID)
	} else {
		fmt.Println("Notion: disabled")
	}
	fmt.Println()

	if err := session.CheckDiskSpace(os.TempDir(), session.MinDiskSpaceMB); err != nil {
		fmt.Printf("Disk space: INSUFFICIENT (%v)\n", err)
	} else {
		fmt.Println("Disk space: OK")
	}
	fmt.Println()
	fmt.Println("(Dry run: no browser will be launched)")
}
