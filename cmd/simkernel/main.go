// Command simkernel is the simulation kernel's process entry point (spec
// §6): load the process shell and a scenario document, build the fleet,
// run the simulator to completion, and exit with the contract's status
// code. Grounded on the teacher's root main.go bootstrap shape (parse
// config, build a logger, wire optional servers, run until done) scaled
// down from an always-on network broker to a one-shot batch process.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"simkernel/internal/broker"
	"simkernel/internal/builtins"
	"simkernel/internal/config"
	"simkernel/internal/factory"
	"simkernel/internal/liveview"
	"simkernel/internal/logging"
	"simkernel/internal/node"
	"simkernel/internal/recordlog"
	"simkernel/internal/scriptadapter"
	"simkernel/internal/servicebus"
	"simkernel/internal/sim"
)

// Exit codes per spec.md §6.
const (
	exitClean          = 0
	exitConfigError    = 1
	exitNodeZombified  = 2
	exitFatalSimulator = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("simkernel", flag.ContinueOnError)
	scenarioPath := fs.String("scenario", "", "path to the scenario YAML document")
	dumpConfig := fs.Bool("dump-config", false, "validate the scenario and process config, print them, and exit")
	recordDir := fs.String("record-dir", "", "directory to write the record-log bundle to (disabled if empty)")
	snapshotPeriod := fs.Float64("snapshot-period", 1.0, "minimum logical-time gap between full-fleet snapshots")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "simkernel: -scenario is required")
		return exitConfigError
	}

	processCfg, err := config.LoadProcess()
	if err != nil {
		fmt.Fprintf(os.Stderr, "simkernel: process config: %v\n", err)
		return exitConfigError
	}

	scenario, err := config.LoadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simkernel: scenario config: %v\n", err)
		return exitConfigError
	}

	if *dumpConfig {
		fmt.Printf("%+v\n%+v\n", processCfg, scenario)
		return exitClean
	}

	logger, err := logging.New(processCfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simkernel: logger: %v\n", err)
		return exitConfigError
	}
	defer logger.Sync()

	b := broker.New()
	bus := servicebus.New()
	metaRegistry := node.NewRegistry()

	registry := factory.NewRegistry()
	builtins.RegisterDefaults(registry)
	scriptadapter.RegisterDefaults(registry, http.DefaultClient)

	nodes, err := registry.Build(scenario, b, bus, metaRegistry)
	if err != nil {
		logger.Error("failed to build fleet from scenario", logging.Error(err))
		return exitConfigError
	}

	simulator := sim.New(nodes, b, bus, logger)

	var recorders sim.FanOutRecorder
	if *recordDir != "" {
		writer, manifest, err := recordlog.NewWriter(*recordDir, float32(*snapshotPeriod))
		if err != nil {
			logger.Error("failed to open record log", logging.Error(err))
			return exitConfigError
		}
		defer writer.Close()
		logger.Info("record log opened", logging.String("path", writer.Directory()), logging.String("created_at", manifest.CreatedAt))
		recorders = append(recorders, writer)
	}

	var liveServer *liveview.Server
	if processCfg.LiveViewEnabled {
		var authenticator liveview.Authenticator
		if processCfg.AdminToken != "" {
			authenticator, err = liveview.NewHMACAuthenticator(processCfg.AdminToken)
			if err != nil {
				logger.Error("failed to configure liveview authenticator", logging.Error(err))
				return exitConfigError
			}
		}
		liveServer = liveview.New(authenticator, logger)
		recorders = append(recorders, liveServer)
		httpServer := &http.Server{Addr: processCfg.LiveViewAddr, Handler: http.HandlerFunc(liveServer.ServeHTTP)}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("liveview server stopped", logging.Error(err))
			}
		}()
		defer httpServer.Close()
		logger.Info("liveview server listening", logging.String("addr", processCfg.LiveViewAddr))
	}
	if len(recorders) > 0 {
		simulator.WithRecorder(recorders)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := simulator.Run(ctx, scenario.DurationSeconds)
	if err != nil {
		logger.Error("simulator run failed", logging.Error(err))
		return exitFatalSimulator
	}

	logger.Info("simulation finished",
		logging.Int("steps_run", result.StepsRun),
		logging.Float64("final_time", float64(result.FinalTime)),
		logging.Int("zombie_count", len(result.ZombieNodes)))

	if len(result.ZombieNodes) > 0 {
		logger.Warn("one or more nodes zombified abnormally", logging.Strings("nodes", result.ZombieNodes))
		return exitNodeZombified
	}
	return exitClean
}
