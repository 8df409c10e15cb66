package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/sitosync/reasoner/internal/bayes"
	"github.com/sitosync/reasoner/internal/evolution"
	"github.com/sitosync/reasoner/internal/graph"
	"github.com/sitosync/reasoner/internal/host"
	"github.com/sitosync/reasoner/internal/metrics"
	"github.com/sitosync/reasoner/internal/operation"
	"github.com/sitosync/reasoner/internal/provenance"
	"github.com/sitosync/reasoner/internal/reasoner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "load a situation graph and run the host driver until interrupted",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := cfgHolder
	sugar := logger.Sugar()

	data, err := os.ReadFile(cfg.GraphPath)
	if err != nil {
		return fmt.Errorf("read graph file: %w", err)
	}
	store := evolution.NewStore()
	sg, err := graph.LoadJSON(data, store)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	metrics.GraphNodes.Set(float64(sg.NumNodes()))

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open provenance db: %w", err)
	}
	defer db.Close()
	log, err := provenance.NewLog(db)
	if err != nil {
		return fmt.Errorf("init provenance log: %w", err)
	}

	engine := bayes.NewEngine(sugar)
	r := reasoner.New(sg, store, engine, sugar)
	gen := operation.New(sg, store)

	driver := host.New(cfg, &stdinArranger{}, &stdoutEmitter{}, r, gen, log, sugar)

	stop := make(chan struct{})
	defer close(stop)
	if cfg.WatchGraph {
		reloads, err := host.WatchGraphFile(cfg.GraphPath, sugar, stop)
		if err != nil {
			return fmt.Errorf("watch graph file: %w", err)
		}
		go func() {
			for reloaded := range reloads {
				sugar.Infow("graph file changed; reloading", "graph_nodes", reloaded.Graph.NumNodes())
				driver.Reload(
					reasoner.New(reloaded.Graph, reloaded.Store, engine, sugar),
					operation.New(reloaded.Graph, reloaded.Store),
				)
				metrics.GraphNodes.Set(float64(reloaded.Graph.NumNodes()))
			}
		}()
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			sugar.Warnw("metrics server stopped", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		sugar.Info("received shutdown signal")
		cancel()
	}()

	sugar.Infow("starting host driver",
		"graph_nodes", sg.NumNodes(),
		"eg_timeout", cfg.EGTimeout,
		"se_timeout", cfg.SETimeout,
		"sc_timeout", cfg.SCTimeout,
	)
	driver.Run(ctx)
	return nil
}

// stdinArranger treats each newline-delimited JSON object on stdin as
// one sensor trigger: {"id": 1, "trigger": true}. A minimal, dependency-
// free Arranger suitable for piping in a fixture or a replay trace.
type stdinArranger struct {
	decoder *json.Decoder
}

type sensorEvent struct {
	ID      int64 `json:"id"`
	Trigger bool  `json:"trigger"`
}

func (a *stdinArranger) PollTriggered(ctx context.Context) (map[int64]bool, error) {
	if a.decoder == nil {
		a.decoder = json.NewDecoder(os.Stdin)
	}
	out := make(map[int64]bool)
	for {
		var ev sensorEvent
		if err := a.decoder.Decode(&ev); err != nil {
			break
		}
		if ev.Trigger {
			out[ev.ID] = true
		}
	}
	return out, nil
}

// stdoutEmitter writes each emitted envelope to stdout as JSON, one line
// per envelope.
type stdoutEmitter struct {
	encoder *json.Encoder
}

func (e *stdoutEmitter) Emit(ctx context.Context, envelope host.Envelope) error {
	if e.encoder == nil {
		e.encoder = json.NewEncoder(os.Stdout)
	}
	return e.encoder.Encode(envelope)
}
