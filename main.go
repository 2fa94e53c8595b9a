package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"procwatch/api"
	"procwatch/config"
	"procwatch/db"
	"procwatch/hostexec"
	"procwatch/monitoring"
	"procwatch/websockets"
)

const version = "v0.1.0"

func main() {
	root := &cobra.Command{
		Use:          "procwatch",
		Short:        "procwatch: process, GPU and port monitoring daemon",
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return serve(cfg)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the procwatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("procwatch %s\n", version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	if err := monitoring.InitializeLogging(monitoring.ParseLogLevel(cfg.LogLevel), cfg.LogFile); err != nil {
		return err
	}
	defer monitoring.CloseLogging()

	// Sandbox detection happens once; every collector shares the runner.
	runner := hostexec.New()
	monitoring.LogInfo("Host runner initialized",
		"sandboxed", runner.Sandboxed(), "proc_root", runner.ProcRoot())

	// --- Database ---
	dsn, err := db.EnsureDB(cfg.DBDir, cfg.DBFile)
	if err != nil {
		return err
	}
	database, err := db.InitDB(dsn)
	if err != nil {
		return err
	}
	defer database.Close()

	// --- Collectors ---
	reader := monitoring.NewProcessReader(runner)
	controller := monitoring.NewProcessController(runner)
	ports := monitoring.NewPortStats(runner)
	gpu := monitoring.NewGPUStats(monitoring.NewGPUProviders(runner))
	gpu.Start()
	defer gpu.Stop()

	tracker := monitoring.NewHistoryTracker(db.NewStore(database),
		time.Duration(cfg.HistoryMaxDays)*24*time.Hour)

	// --- Fan-out ---
	hub := websockets.NewHub()
	wsChan := make(chan *monitoring.Snapshot, 1)
	dbChan := make(chan *monitoring.Snapshot, 8)
	go hub.Run(wsChan)
	go db.BatchInsertResourceLogs(dbChan, database)

	poller := monitoring.NewPoller(reader, gpu, tracker, time.Duration(cfg.PollIntervalSeconds)*time.Second)
	poller.Start(wsChan, dbChan)
	defer poller.Stop()

	// --- HTTP server ---
	r := mux.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		websockets.ServeWs(hub, w, req)
	})
	api.RegisterRoutes(r, api.NewHandler(reader, controller, gpu, ports, tracker))

	addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	monitoring.LogInfo("HTTP server started", "addr", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
		monitoring.LogInfo("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
