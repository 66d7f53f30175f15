package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/mproulx/herald/internal/api"
	"github.com/mproulx/herald/internal/audit"
	"github.com/mproulx/herald/internal/billing"
	"github.com/mproulx/herald/internal/campaign"
	"github.com/mproulx/herald/internal/catalog"
	"github.com/mproulx/herald/internal/config"
	"github.com/mproulx/herald/internal/events"
	"github.com/mproulx/herald/internal/kernel"
	"github.com/mproulx/herald/internal/lock"
	"github.com/mproulx/herald/internal/log"
	"github.com/mproulx/herald/internal/request"
	"github.com/mproulx/herald/internal/scheduler"
	"github.com/mproulx/herald/internal/sender"
	"github.com/mproulx/herald/internal/session"
	"github.com/mproulx/herald/internal/storage"
	"github.com/mproulx/herald/internal/target"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "request":
		return runRequestNoun(args)
	case "campaign":
		return runCampaignNoun(args)
	case "target":
		return runTargetNoun(args)
	case "session":
		return runSessionNoun(args)
	case "user":
		return runUserNoun(args)

	// --- ROOT COMMANDS ---
	case "start":
		return runStart(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: herald version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("herald %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	builtAt := strings.TrimSpace(buildDate)
	if builtAt == "" || builtAt == "unknown" {
		builtAt = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, builtAt); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" || a == "help" {
			return true
		}
	}
	return false
}

// --- RUNTIME WIRING ---

// runtime bundles the stores every CLI verb needs. Verbs talk to the
// database directly; only "start" runs the daemon loops.
type runtime struct {
	cfg       *config.Config
	db        *sql.DB
	requests  *request.Store
	auditLog  *audit.Logger
	gate      *billing.Gate
	catalog   *catalog.Store
	sessions  *session.Store
	targets   *target.Loader
	campaigns *campaign.Store
}

func openRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel)

	db, err := storage.OpenSQLite(context.Background(), cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Store.Path, err)
	}

	return &runtime{
		cfg:       cfg,
		db:        db,
		requests:  request.New(db),
		auditLog:  audit.NewLogger(db),
		gate:      billing.NewGate(db),
		catalog:   catalog.NewStore(db),
		sessions:  session.New(db),
		targets:   target.NewLoader(db, cfg.Store.TargetsDir),
		campaigns: campaign.NewStore(db),
	}, nil
}

func (rt *runtime) Close() {
	_ = rt.db.Close()
}

// buildKernel assembles the execution kernel with both built-in handlers
// registered. Used by the daemon and by synchronous "request invoke".
func (rt *runtime) buildKernel(hub *events.Hub) (*kernel.Kernel, error) {
	registry := catalog.NewRegistry()

	dispatcher := campaign.NewDispatcher(rt.campaigns, rt.sessions, rt.targets, rt.requests, rt.auditLog)
	if err := registry.Register(campaign.HandlerLocator, dispatcher); err != nil {
		return nil, err
	}
	bulk := sender.NewBulk(sender.NewLogMessenger(), rt.sessions, rt.campaigns)
	if err := registry.Register(sender.HandlerLocator, bulk); err != nil {
		return nil, err
	}

	return kernel.New(rt.requests, rt.catalog, registry, rt.gate, rt.auditLog, hub, rt.cfg.Billing.DefaultCost), nil
}

// seedCatalog installs the built-in function descriptors. Upsert keeps
// operator edits to timeouts while repairing missing rows.
func seedCatalog(ctx context.Context, cat *catalog.Store) error {
	builtins := []catalog.Descriptor{
		{
			FunctionCode:   campaign.FunctionDispatch,
			FunctionName:   "Campaign Dispatch",
			HandlerLocator: campaign.HandlerLocator,
			TimeoutSeconds: 120,
			Category:       "campaign",
			Active:         true,
		},
		{
			FunctionCode:   campaign.FunctionSendBulk,
			FunctionName:   "Bulk Message Sender",
			HandlerLocator: sender.HandlerLocator,
			TimeoutSeconds: 3600,
			Category:       "campaign",
			Active:         true,
		},
	}
	for _, d := range builtins {
		if err := cat.Upsert(ctx, d); err != nil {
			return fmt.Errorf("seed catalog %s: %w", d.FunctionCode, err)
		}
	}
	return nil
}

// --- START ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("herald starting", "version", version, "config", *configPath)

	pidLock, err := lock.AcquirePIDLock(cfg.Service.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Service.LockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", cfg.Service.LockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Store.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.Store.Path)

	rt := &runtime{
		cfg:       cfg,
		db:        db,
		requests:  request.New(db),
		auditLog:  audit.NewLogger(db),
		gate:      billing.NewGate(db),
		catalog:   catalog.NewStore(db),
		sessions:  session.New(db),
		targets:   target.NewLoader(db, cfg.Store.TargetsDir),
		campaigns: campaign.NewStore(db),
	}

	if err := seedCatalog(ctx, rt.catalog); err != nil {
		logger.Error("failed to seed function catalog", "error", err)
		return 1
	}

	hub := events.NewHub(256)

	k, err := rt.buildKernel(hub)
	if err != nil {
		logger.Error("failed to assemble kernel", "error", err)
		return 1
	}

	pool := kernel.NewPool(k, rt.requests, cfg.Service.WorkerCount, cfg.Service.WorkerPollInterval)
	pool.Start(ctx)
	logger.Info("worker pool started", "workers", cfg.Service.WorkerCount)

	sched := scheduler.New(cfg, rt.campaigns, rt.requests, hub, log.WithComponent("scheduler"))
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)

	if cfg.API.Enabled {
		apiServer := api.New(
			api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey},
			api.Deps{
				Requests:  rt.requests,
				Audit:     rt.auditLog,
				Campaigns: rt.campaigns,
				Targets:   rt.targets,
				Sessions:  rt.sessions,
				Catalog:   rt.catalog,
				Invoker:   k,
				Ticker:    sched,
				Events:    hub,
			},
			log.WithComponent("api"),
		)
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("herald running (press Ctrl+C to stop)")

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		exitCode = 1
	}

	sched.Stop()
	pool.Stop()

	logger.Info("herald stopped")
	return exitCode
}

// --- REQUEST ---

func runRequestNoun(args []string) int {
	if len(args) < 1 || hasHelpFlag(args[:1]) {
		printRequestHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "enqueue":
		return runRequestEnqueue(args[1:])
	case "status":
		return runRequestStatus(args[1:])
	case "invoke":
		return runRequestInvoke(args[1:])
	case "audit":
		return runRequestAudit(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown request action: %s\n\n", args[0])
		printRequestHelp()
		return 1
	}
}

func runRequestEnqueue(args []string) int {
	fs := flag.NewFlagSet("request enqueue", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	functionCode := fs.String("function", "", "Function code to invoke")
	userID := fs.String("user", "", "Requesting user id")
	payload := fs.String("payload", "{}", "Input payload (JSON)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *functionCode == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: herald request enqueue --function <code> --user <id> [--payload <json>]")
		return 1
	}
	if !json.Valid([]byte(*payload)) {
		fmt.Fprintln(os.Stderr, "Payload is not valid JSON")
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	id, err := rt.requests.Enqueue(context.Background(), request.EnqueueRequest{
		FunctionCode: *functionCode,
		UserID:       *userID,
		Payload:      json.RawMessage(*payload),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enqueue request: %v\n", err)
		return 1
	}

	fmt.Println(id)
	return 0
}

func runRequestStatus(args []string) int {
	fs := flag.NewFlagSet("request status", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: herald request status <request-id>")
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	r, err := rt.requests.Get(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load request: %v\n", err)
		return 1
	}
	return printJSON(requestView(r))
}

func runRequestInvoke(args []string) int {
	fs := flag.NewFlagSet("request invoke", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: herald request invoke <request-id>")
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	ctx := context.Background()
	if err := seedCatalog(ctx, rt.catalog); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seed function catalog: %v\n", err)
		return 1
	}

	k, err := rt.buildKernel(events.NewHub(64))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to assemble kernel: %v\n", err)
		return 1
	}

	id := fs.Arg(0)
	if err := k.Invoke(ctx, id); err != nil {
		fmt.Fprintf(os.Stderr, "Invoke failed: %v\n", err)
		return 1
	}

	r, err := rt.requests.Get(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload request: %v\n", err)
		return 1
	}
	return printJSON(requestView(r))
}

func runRequestAudit(args []string) int {
	fs := flag.NewFlagSet("request audit", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: herald request audit <request-id>")
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	entries, err := rt.auditLog.ListByRequest(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load audit trail: %v\n", err)
		return 1
	}

	for _, e := range entries {
		fmt.Printf("%s  %-18s %s  %s\n", e.CreatedAt.UTC().Format(time.RFC3339), e.Action, e.ActorID, e.Detail)
	}
	return 0
}

// --- CAMPAIGN ---

func runCampaignNoun(args []string) int {
	if len(args) < 1 || hasHelpFlag(args[:1]) {
		printCampaignHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "create":
		return runCampaignCreate(args[1:])
	case "schedule":
		return runCampaignSchedule(args[1:])
	case "status":
		return runCampaignStatus(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown campaign action: %s\n\n", args[0])
		printCampaignHelp()
		return 1
	}
}

func runCampaignCreate(args []string) int {
	fs := flag.NewFlagSet("campaign create", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	userID := fs.String("user", "", "Owning user id")
	name := fs.String("name", "", "Campaign name")
	targetListID := fs.String("targets", "", "Target list id")
	message := fs.String("message", "", "Message body")
	sessionTag := fs.String("tag", "", "Restrict sending to sessions with this tag")
	delayMin := fs.Int("delay-min", 5, "Minimum inter-message delay in seconds")
	delayMax := fs.Int("delay-max", 10, "Maximum inter-message delay in seconds")
	at := fs.String("at", "", "Schedule time (RFC3339); omit to leave as draft")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *userID == "" || *name == "" || *targetListID == "" || *message == "" {
		fmt.Fprintln(os.Stderr, "Usage: herald campaign create --user <id> --name <name> --targets <list-id> --message <text> [--tag <tag>] [--delay-min N] [--delay-max N] [--at <rfc3339>]")
		return 1
	}

	var scheduledAt *time.Time
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --at time: %v\n", err)
			return 1
		}
		scheduledAt = &t
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	id, err := rt.campaigns.Create(context.Background(), campaign.CreateRequest{
		UserID:          *userID,
		Name:            *name,
		TargetListID:    *targetListID,
		Message:         *message,
		DelayMinSeconds: *delayMin,
		DelayMaxSeconds: *delayMax,
		SessionTag:      *sessionTag,
		ScheduledAt:     scheduledAt,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create campaign: %v\n", err)
		return 1
	}

	fmt.Println(id)
	return 0
}

func runCampaignSchedule(args []string) int {
	fs := flag.NewFlagSet("campaign schedule", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	at := fs.String("at", "", "Schedule time (RFC3339)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 || *at == "" {
		fmt.Fprintln(os.Stderr, "Usage: herald campaign schedule <campaign-id> --at <rfc3339>")
		return 1
	}

	t, err := time.Parse(time.RFC3339, *at)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --at time: %v\n", err)
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	if err := rt.campaigns.Schedule(context.Background(), fs.Arg(0), t); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to schedule campaign: %v\n", err)
		return 1
	}

	fmt.Printf("scheduled %s at %s\n", fs.Arg(0), t.UTC().Format(time.RFC3339))
	return 0
}

func runCampaignStatus(args []string) int {
	fs := flag.NewFlagSet("campaign status", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: herald campaign status <campaign-id>")
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	c, err := rt.campaigns.Get(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load campaign: %v\n", err)
		return 1
	}
	return printJSON(campaignView(c))
}

// --- TARGET ---

func runTargetNoun(args []string) int {
	if len(args) < 1 || hasHelpFlag(args[:1]) {
		printTargetHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "import":
		return runTargetImport(args[1:])
	case "list":
		return runTargetList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown target action: %s\n\n", args[0])
		printTargetHelp()
		return 1
	}
}

func runTargetImport(args []string) int {
	fs := flag.NewFlagSet("target import", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	userID := fs.String("user", "", "Owning user id")
	name := fs.String("name", "", "List name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 || *userID == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "Usage: herald target import --user <id> --name <name> <file>")
		return 1
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open targets file: %v\n", err)
		return 1
	}
	defer f.Close()

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	list, err := rt.targets.Import(context.Background(), *userID, *name, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to import targets: %v\n", err)
		return 1
	}

	fmt.Printf("%s  %d targets  fingerprint %s\n", list.ID, list.TotalCount, list.Fingerprint)
	return 0
}

func runTargetList(args []string) int {
	fs := flag.NewFlagSet("target list", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	userID := fs.String("user", "", "Owning user id")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: herald target list --user <id>")
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	lists, err := rt.targets.ListByUser(context.Background(), *userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list target lists: %v\n", err)
		return 1
	}

	for _, l := range lists {
		fmt.Printf("%s  %-24s %6d targets  %s\n", l.ID, l.Name, l.TotalCount, l.CreatedAt.UTC().Format(time.RFC3339))
	}
	return 0
}

// --- SESSION ---

func runSessionNoun(args []string) int {
	if len(args) < 1 || hasHelpFlag(args[:1]) {
		printSessionHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "add":
		return runSessionAdd(args[1:])
	case "set-status":
		return runSessionSetStatus(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown session action: %s\n\n", args[0])
		printSessionHelp()
		return 1
	}
}

func runSessionAdd(args []string) int {
	fs := flag.NewFlagSet("session add", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	userID := fs.String("user", "", "Owning user id")
	phone := fs.String("phone", "", "Phone number bound to the session")
	locator := fs.String("locator", "", "Provider session locator")
	tag := fs.String("tag", "", "Pool tag")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *userID == "" || *locator == "" {
		fmt.Fprintln(os.Stderr, "Usage: herald session add --user <id> --locator <locator> [--phone <phone>] [--tag <tag>]")
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	id, err := rt.sessions.Register(context.Background(), *userID, *phone, *locator, *tag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register session: %v\n", err)
		return 1
	}

	fmt.Println(id)
	return 0
}

func runSessionSetStatus(args []string) int {
	fs := flag.NewFlagSet("session set-status", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: herald session set-status <session-id> <ACTIVE|BANNED|LIMITED|UNCHECKED>")
		return 1
	}

	status := session.Status(strings.ToUpper(fs.Arg(1)))
	if !status.Valid() {
		fmt.Fprintf(os.Stderr, "Invalid session status: %s\n", fs.Arg(1))
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	if err := rt.sessions.SetStatus(context.Background(), fs.Arg(0), status); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update session: %v\n", err)
		return 1
	}

	fmt.Printf("%s -> %s\n", fs.Arg(0), status)
	return 0
}

// --- USER ---

func runUserNoun(args []string) int {
	if len(args) < 1 || hasHelpFlag(args[:1]) {
		printUserHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "seed":
		return runUserSeed(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown user action: %s\n\n", args[0])
		printUserHelp()
		return 1
	}
}

func runUserSeed(args []string) int {
	fs := flag.NewFlagSet("user seed", flag.ExitOnError)
	configPath := fs.String("config", "herald.yaml", "Path to configuration file")
	userID := fs.String("id", "", "User id")
	username := fs.String("name", "", "Display name")
	tier := fs.String("tier", "STARTER", "Billing tier (STARTER or UNLIMITED)")
	plan := fs.String("plan", "standard", "Subscription plan name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: herald user seed --id <user-id> [--name <name>] [--tier <tier>] [--plan <plan>]")
		return 1
	}

	rt, err := openRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	ctx := context.Background()
	if err := rt.gate.SeedUser(ctx, *userID, *username, strings.ToUpper(*tier)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seed user: %v\n", err)
		return 1
	}
	subID, err := rt.gate.SeedSubscription(ctx, *userID, *plan, "ACTIVE")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seed subscription: %v\n", err)
		return 1
	}

	fmt.Printf("user %s seeded, subscription %s\n", *userID, subID)
	return 0
}

// --- OUTPUT HELPERS ---

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func requestView(r *request.Request) map[string]any {
	view := map[string]any{
		"request_id":    r.ID,
		"function_code": r.FunctionCode,
		"user_id":       r.UserID,
		"status":        string(r.Status),
		"created_at":    r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if len(r.Result) > 0 {
		view["result"] = json.RawMessage(r.Result)
	}
	if r.ExecutionTimeMS != nil {
		view["execution_time_ms"] = *r.ExecutionTimeMS
	}
	if r.CampaignID != nil {
		view["campaign_id"] = *r.CampaignID
	}
	if r.StartedAt != nil {
		view["started_at"] = r.StartedAt.UTC().Format(time.RFC3339)
	}
	if r.CompletedAt != nil {
		view["completed_at"] = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	return view
}

func campaignView(c *campaign.Campaign) map[string]any {
	view := map[string]any{
		"campaign_id":   c.ID,
		"user_id":       c.UserID,
		"name":          c.Name,
		"status":        string(c.Status),
		"total_targets": c.TotalTargets,
		"sent_count":    c.SentCount,
		"fail_count":    c.FailCount,
		"created_at":    c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.ScheduledAt != nil {
		view["scheduled_at"] = c.ScheduledAt.UTC().Format(time.RFC3339)
	}
	if c.StartedAt != nil {
		view["started_at"] = c.StartedAt.UTC().Format(time.RFC3339)
	}
	if c.EndedAt != nil {
		view["ended_at"] = c.EndedAt.UTC().Format(time.RFC3339)
	}
	return view
}

// --- HELP ---

func printUsage() {
	fmt.Print(`herald - Async execution kernel and campaign dispatcher

Usage:
  herald <noun> <action> [flags]
  herald start [--config <path>]

Core Resources (Nouns):
  request   Execution requests and their audit trails
  campaign  Bulk-send campaigns
  target    Target lists
  session   Sender sessions
  user      Billing identities

System Commands:
  start             Run the daemon in the foreground
  version           Show build metadata

Request Commands:
  request enqueue   Queue a function invocation
  request invoke    Run one queued request to completion
  request status    Show a request's state and result
  request audit     Print a request's audit trail

Campaign Commands:
  campaign create   Register a campaign
  campaign schedule Schedule a draft campaign
  campaign status   Show campaign progress

Other Commands:
  target import     Load a newline-delimited targets file
  target list       List a user's target lists
  session add       Register a sender session
  session set-status  Mark a session ACTIVE, BANNED, or LIMITED
  user seed         Create a user with an active subscription

Run 'herald <noun> --help' for details.
`)
}

func printRequestHelp() {
	fmt.Print(`Usage: herald request <action> [flags]

Actions:
  enqueue --function <code> --user <id> [--payload <json>]
  invoke  <request-id>
  status  <request-id>
  audit   <request-id>

Enqueue returns the request id; a running daemon picks it up on the next
worker poll. Invoke runs it in-process instead, for one-off executions.
`)
}

func printCampaignHelp() {
	fmt.Print(`Usage: herald campaign <action> [flags]

Actions:
  create   --user <id> --name <name> --targets <list-id> --message <text>
           [--tag <tag>] [--delay-min N] [--delay-max N] [--at <rfc3339>]
  schedule <campaign-id> --at <rfc3339>
  status   <campaign-id>

A campaign without --at stays in DRAFT until scheduled. The daemon's
scheduler promotes due campaigns on its tick.
`)
}

func printTargetHelp() {
	fmt.Print(`Usage: herald target <action> [flags]

Actions:
  import --user <id> --name <name> <file>
  list   --user <id>

Import reads one target per line, deduplicates, and stores the list with a
content fingerprint that is verified on every later read.
`)
}

func printSessionHelp() {
	fmt.Print(`Usage: herald session <action> [flags]

Actions:
  add        --user <id> --locator <locator> [--phone <phone>] [--tag <tag>]
  set-status <session-id> <ACTIVE|BANNED|LIMITED|UNCHECKED>

Only ACTIVE sessions receive campaign batches. Senders demote sessions to
BANNED or LIMITED automatically on permanent provider errors.
`)
}

func printUserHelp() {
	fmt.Print(`Usage: herald user <action> [flags]

Actions:
  seed --id <user-id> [--name <name>] [--tier <tier>] [--plan <plan>]

Creates the user row and an ACTIVE subscription so the billing gate admits
their requests. Tier UNLIMITED bypasses ledger limits.
`)
}
