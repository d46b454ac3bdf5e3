// Command ems-core is the CLI harness around the planner: it loads a
// plant configuration, wires a data provider (Postgres-backed or
// fixture-replay), and either serves the HTTP/WebSocket plan surface
// or runs the fixture capture/replay workflow spec.md §4.9 describes.
// Everything beyond dispatching to those packages — the real
// home-automation provider transport, secret resolution, and any
// richer CLI — stays out of scope (spec.md §1).
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/devskill-org/ems-core/fixture"
	"github.com/devskill-org/ems-core/httpapi"
	"github.com/devskill-org/ems-core/intentexec"
	"github.com/devskill-org/ems-core/plan"
	"github.com/devskill-org/ems-core/planner"
	"github.com/devskill-org/ems-core/provider"
	"github.com/devskill-org/ems-core/resolver"
	"github.com/devskill-org/ems-core/sigenergy"
	"github.com/devskill-org/ems-core/solve"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		help       = flag.Bool("help", false, "Show help message")
		serverOnly = flag.Bool("serverOnly", false, "Serve the HTTP/WebSocket plan surface without running an initial solve")
		capture    = flag.String("capture", "", "Capture a fixture snapshot into this directory and exit")
		replay     = flag.String("replay", "", "Replay a fixture bundle from this directory and exit")
		strict     = flag.Bool("strict", false, "Exit 2 if the solver does not report Optimal")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := LoadAppConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[ems] ", log.LstdFlags)

	switch {
	case *capture != "":
		os.Exit(runCapture(cfg, *capture, logger))
	case *replay != "":
		os.Exit(runReplay(cfg, *replay, *strict, logger))
	default:
		os.Exit(runServe(cfg, *serverOnly, logger))
	}
}

// runCapture connects to the configured live provider, snapshots every
// entity the plant configuration touches, and writes the fixture
// bundle (spec.md §6 "Persisted state"). Exit code 1 on any I/O or
// provider failure, 3 if the bundle itself can't be written.
func runCapture(cfg *AppConfig, dir string, logger *log.Logger) int {
	dp, closeProvider, err := openProvider(cfg, logger)
	if err != nil {
		fmt.Println("Error opening provider:", err)
		return 1
	}
	defer closeProvider()

	ids, historyDays := collectEntityIDs(&cfg.Plant)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	snap, err := fixture.Capture(ctx, dp, ids, historyDays, now)
	if err != nil {
		fmt.Println("Error capturing snapshot:", err)
		return 1
	}

	solveFn := buildSolveFunc(cfg, snap.Provider(), func() time.Time { return now }, logger)
	out, _, err := solveFn(ctx)
	if err != nil {
		fmt.Println("Error solving captured snapshot:", err)
		return 1
	}
	summary := fixture.Summarize(out, fixture.DefaultBucketMinutes)

	if err := fixture.WriteBundle(dir, snap, &cfg.Plant, out, summary); err != nil {
		fmt.Println("Error writing fixture bundle:", err)
		return 3
	}

	logger.Printf("captured fixture bundle to %s (hash %s)", dir, fixture.Hash(summary))
	return 0
}

// runReplay replays a previously captured fixture with the wall clock
// frozen at its capture time, re-solves, and reports whether the
// resulting plan hash matches the bundle on disk.
func runReplay(cfg *AppConfig, dir string, strict bool, logger *log.Logger) int {
	snapBytes, err := os.ReadFile(filepath.Join(dir, fixture.SnapshotFile))
	if err != nil {
		fmt.Println("Error reading fixture snapshot:", err)
		return 1
	}
	var snap fixture.Snapshot
	if err := json.Unmarshal(snapBytes, &snap); err != nil {
		fmt.Println("Error parsing fixture snapshot:", err)
		return 1
	}
	wantHash, _ := os.ReadFile(filepath.Join(dir, fixture.HashFile))

	var out plan.Output
	err = fixture.Replay(&snap, func() error {
		solveFn := buildSolveFunc(cfg, snap.Provider(), func() time.Time { return snap.CapturedAt }, logger)
		planOut, _, solveErr := solveFn(context.Background())
		out = planOut
		return solveErr
	})
	if err != nil {
		fmt.Println("Error replaying fixture:", err)
		return 1
	}

	summary := fixture.Summarize(out, fixture.DefaultBucketMinutes)
	gotHash := fixture.Hash(summary)
	logger.Printf("replayed %s: status=%s hash=%s", dir, out.Header.Status, gotHash)

	if len(wantHash) > 0 && string(wantHash) != gotHash {
		fmt.Printf("hash mismatch: want %s, got %s\n", wantHash, gotHash)
		return 1
	}
	if strict && out.Header.Status != solve.StatusOptimal {
		fmt.Printf("solver status %s is not optimal (strict mode)\n", out.Header.Status)
		return 2
	}
	return 0
}

// runServe starts the planner and the HTTP/WebSocket surface, then
// blocks until SIGINT/SIGTERM, mirroring the teacher's main loop
// (context cancellation + a blocking signal channel).
func runServe(cfg *AppConfig, serverOnly bool, logger *log.Logger) int {
	dp, closeProvider, err := openProvider(cfg, logger)
	if err != nil {
		fmt.Println("Error opening provider:", err)
		return 1
	}
	defer closeProvider()

	solveFn := buildSolveFunc(cfg, dp, time.Now, logger)
	p := planner.New(solveFn, cfg.debounceWindow(), logger)
	defer p.Stop()

	server := httpapi.New(p, &cfg.Plant, cfg.ListenAddress, logger)
	server.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Stop(ctx)
	}()

	stopExecutor := startExecutorLoop(cfg, p, logger)
	defer stopExecutor()

	if !serverOnly {
		_, _ = p.TriggerRun()
		logger.Printf("initial solve triggered")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	logger.Printf("serving on %s, press Ctrl+C to stop...", cfg.ListenAddress)
	<-sigChan
	logger.Printf("shutdown signal received, stopping...")
	return 0
}

// startExecutorLoop wires the illustrative downstream executor
// (SPEC_FULL.md §4) to the planner: every publication, it applies the
// first inverter's projected intent over Modbus. A single Modbus
// address stands in for the full multi-inverter fleet a production
// deployment would address individually; returns a no-op stop func
// when no modbus_address is configured.
func startExecutorLoop(cfg *AppConfig, p *planner.Planner, logger *log.Logger) func() {
	if cfg.ModbusAddress == "" || len(cfg.Plant.Inverters) == 0 {
		return func() {}
	}
	client, err := sigenergy.NewTCPClient(cfg.ModbusAddress, byte(cfg.ModbusSlaveID))
	if err != nil {
		logger.Printf("executor: could not connect to inverter at %s: %v", cfg.ModbusAddress, err)
		return func() {}
	}
	executor := intentexec.NewExecutor(client, cfg.DryRun, logger)
	invID := cfg.Plant.Inverters[0].ID

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		var lastSeen time.Time
		for {
			pub, ok := p.AwaitLatest(ctx, lastSeen, 0)
			if !ok {
				return
			}
			lastSeen = pub.Plan.Header.GeneratedAt
			in, ok := pub.Intent.Inverters[invID]
			if !ok {
				continue
			}
			if err := executor.Apply(in); err != nil {
				logger.Printf("executor: apply failed: %v", err)
			}
		}
	}()
	return func() {
		cancel()
		client.Close()
	}
}

func openProvider(cfg *AppConfig, logger *log.Logger) (resolver.DataProvider, func(), error) {
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		pg := provider.NewPostgres(db, logger)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, nil, err
		}
		return pg, func() { db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("no data provider configured: set postgres_dsn, or use -capture/-replay against an existing fixture")
}

func showHelp() {
	fmt.Println("ems-core - home energy management planner")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  ems-core [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  ems-core -config=config.yaml")
	fmt.Println("  ems-core -capture=fixtures/scenario1")
	fmt.Println("  ems-core -replay=fixtures/scenario1 -strict")
}
