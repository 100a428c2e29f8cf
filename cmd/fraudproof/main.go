// fraudproof assembles fraud proofs for disputed query results.
//
//	serve      run the task API and the orchestrator
//	submit     queue a task on a running service
//	status     show one task, or all of them
//	trie-root  build the assignment trie for a snapshot and print its root
//	snapshots  list the snapshots in a local snapshot cache
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/colorfulnotion/fraudproof/api"
	"github.com/colorfulnotion/fraudproof/assignment"
	"github.com/colorfulnotion/fraudproof/chain"
	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/config"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/prover"
	"github.com/colorfulnotion/fraudproof/storage"
	"github.com/colorfulnotion/fraudproof/task"
	"github.com/colorfulnotion/fraudproof/telemetry"
	"github.com/colorfulnotion/fraudproof/trie"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "fraudproof",
		Short: "Fraud-proof evidence assembly service",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var configFile string
	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the task API and the evidence orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	serveCmd.Flags().StringVar(&configFile, "config", "", "optional config file (yaml, toml or json)")
	config.BindFlags(serveCmd.Flags())

	var apiURL string
	var submitCmd = &cobra.Command{
		Use:   "submit <query-id> <timestamp>",
		Short: "Queue a fraud-proof task on a running service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ts uint64
			if _, err := fmt.Sscan(args[1], &ts); err != nil {
				return fmt.Errorf("timestamp %q: %w", args[1], err)
			}
			body, err := json.Marshal(types.TaskDescription{QueryID: args[0], Timestamp: ts})
			if err != nil {
				return err
			}
			var resp api.SubmitResponse
			if err := call(http.MethodPost, apiURL+"/tasks", body, &resp); err != nil {
				return err
			}
			fmt.Println(resp.TaskID)
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status [task-id]",
		Short: "Show one task, or every task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				var t types.Task
				if err := call(http.MethodGet, apiURL+"/tasks/"+args[0], nil, &t); err != nil {
					return err
				}
				printTask(t)
				return nil
			}
			var tasks []types.Task
			if err := call(http.MethodGet, apiURL+"/tasks", nil, &tasks); err != nil {
				return err
			}
			for _, t := range tasks {
				printTask(t)
			}
			return nil
		},
	}
	for _, c := range []*cobra.Command{submitCmd, statusCmd} {
		c.Flags().StringVar(&apiURL, "api", "http://localhost:8000", "task API base URL")
	}

	var (
		network  string
		location string
		cacheDir string
		prove    []string
	)
	var trieRootCmd = &cobra.Command{
		Use:   "trie-root <assignment-id>",
		Short: "Build the assignment trie for a snapshot and print its root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lc := assignment.DefaultLoaderConfig()
			lc.Network = network
			if location != "" {
				lc.URLTemplate = location
			}
			loader := assignment.NewLoader(lc)
			if cacheDir != "" {
				blobs, err := storage.NewBlobStore(cacheDir)
				if err != nil {
					return err
				}
				defer blobs.Close()
				loader.WithCache(blobs)
			}
			snap, err := loader.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t, err := trie.Build(snap)
			if err != nil {
				return err
			}
			fmt.Printf("root:    %s\n", t.Root().Hex())
			fmt.Printf("entries: %d\n", t.Len())
			if len(prove) == 0 {
				return nil
			}
			if len(prove) != 3 {
				return fmt.Errorf("--prove takes dataset,chunk,worker")
			}
			proof, err := t.ProveMembership(prove[0], prove[1], prove[2])
			if err != nil {
				return err
			}
			for i, node := range proof {
				fmt.Printf("proof[%d]: %s\n", i, common.Bytes2Hex(node))
			}
			return nil
		},
	}
	trieRootCmd.Flags().StringVar(&network, "network", "mainnet", "network the assignment belongs to")
	trieRootCmd.Flags().StringVar(&location, "snapshot-url", "", "snapshot location template or file path")
	trieRootCmd.Flags().StringVar(&cacheDir, "snapshot-cache-dir", "", "LevelDB snapshot cache shared with serve")
	trieRootCmd.Flags().StringSliceVar(&prove, "prove", nil, "also prove dataset,chunk,worker")

	var snapshotsCmd = &cobra.Command{
		Use:   "snapshots <cache-dir>",
		Short: "List the snapshots held in a local snapshot cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobs, err := storage.NewBlobStore(args[0])
			if err != nil {
				return err
			}
			defer blobs.Close()
			keys, err := blobs.Keys([]byte(assignment.CacheKeyPrefix))
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(strings.TrimPrefix(k, assignment.CacheKeyPrefix))
			}
			return nil
		},
	}

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fraudproof %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}

	rootCmd.AddCommand(serveCmd, submitCmd, statusCmd, trieRootCmd, snapshotsCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func serve(cfg config.Config) error {
	if err := log.InitLogger(cfg.LogLevel); err != nil {
		return err
	}
	log.EnableModules(cfg.LogModules)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	logs, err := storage.NewClickHouseStore(cfg.ClickHouse())
	if err != nil {
		return err
	}
	defer logs.Close()
	if err := logs.Ping(ctx); err != nil {
		log.Warn(log.APIMonitoring, "clickhouse not reachable yet", "err", err)
	}

	gw, err := chain.Dial(ctx, cfg.Eth())
	if err != nil {
		return err
	}

	loader := assignment.NewLoader(cfg.Loader())
	if cfg.SnapshotCache != "" {
		blobs, err := storage.NewBlobStore(cfg.SnapshotCache)
		if err != nil {
			return err
		}
		defer blobs.Close()
		loader.WithCache(blobs)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := task.NewStore()
	reg.MustRegister(task.NewStoreCollector(store))
	orch, err := task.NewOrchestrator(cfg.Orchestrator(), store, task.Deps{
		Logs:      logs,
		Chain:     gw,
		Snapshots: loader,
		Prover:    prover.NewHTTPProver(cfg.ProverURL, cfg.ProverTimeout),
		Metrics:   task.NewMetricsCollector(reg),
	})
	if err != nil {
		return err
	}

	hub := api.NewHub(ctx)
	store.SetStatusChangeCallback(hub.Publish)
	server := api.NewServer(orch, hub, reg)
	if err := server.Start(cfg.ListenAddr); err != nil {
		return err
	}
	if err := orch.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("fraudproof %s ready\n", Version)
	fmt.Printf("  API:     http://%s\n", server.Addr())
	fmt.Printf("  Network: %s\n", cfg.Network)
	fmt.Printf("  Prover:  %s\n", cfg.ProverURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\nShutting down...\n")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn(log.APIMonitoring, "api shutdown", "err", err)
	}
	// A task still waiting on the prover or a confirmation fails instead of
	// holding up the exit.
	cancel()
	orch.Stop()
	return nil
}

func call(method, url string, body []byte, out any) error {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %d %s", method, url, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

func printTask(t types.Task) {
	fmt.Printf("%s  %-9s  %s @ %d  %s\n", t.ID, t.Status, t.QueryID, t.Timestamp, t.Comment)
}
