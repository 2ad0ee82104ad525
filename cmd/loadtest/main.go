// Command loadtest hammers one account with deposits from several Envs
// sharing a store, so commands race and get retried.
//
// NOTE: run nats: docker run --net=host nats:latest -js
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codewandler/esgo/adapters/nats"
	promadapter "github.com/codewandler/esgo/adapters/prometheus"
	"github.com/codewandler/esgo/adapters/sqlite"
	"github.com/codewandler/esgo/core/es"
	"github.com/codewandler/esgo/examples/accounting"
)

// === Config ===

type config struct {
	N           int           `env:"N" envDefault:"10000"`
	BatchSize   int           `env:"B" envDefault:"1000"`
	Workers     int           `env:"WORKERS" envDefault:"8"`
	Envs        int           `env:"ENVS" envDefault:"2"`
	Backend     string        `env:"BACKEND" envDefault:"memory"`
	Snapshot    bool          `env:"SNAPSHOT" envDefault:"true"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"loadtest.db"`
	NatsURL     string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	MetricsAddr string        `env:"METRICS_ADDR"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"2m"`
	LogLevel    slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
}

// countingMetrics counts races on top of the prometheus metrics.
type countingMetrics struct {
	es.ESMetrics
	conflicts atomic.Int64
	retries   atomic.Int64
}

func (c *countingMetrics) ConcurrencyConflict(aggType string) {
	c.conflicts.Add(1)
	c.ESMetrics.ConcurrencyConflict(aggType)
}

func (c *countingMetrics) CommandRetried(aggType string) {
	c.retries.Add(1)
	c.ESMetrics.CommandRetried(aggType)
}

func main() {
	var cfg config
	checkErr(env.Parse(&cfg))

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	fmt.Printf("Snapshot: %t\n", cfg.Snapshot)
	fmt.Printf("Backend: %s\n", cfg.Backend)
	fmt.Printf("Envs: %d, Workers: %d\n", cfg.Envs, cfg.Workers)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := &countingMetrics{ESMetrics: promadapter.NewESMetrics(reg)}
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	store, snapshotter, closeBackend := createBackend(ctx, cfg, log)
	defer closeBackend()

	var (
		bus      = es.NewInMemoryBus(log)
		envs     = make([]*es.Env, cfg.Envs)
		deposits atomic.Int64
	)
	balances, err := accounting.NewBalances(func(context.Context, es.State, es.Event) error {
		deposits.Add(1)
		return nil
	})
	checkErr(err)

	for i := range envs {
		account, err := accounting.NewAccount(es.WithLog(log), es.WithMetrics(metrics))
		checkErr(err)
		opts := []es.EnvOption{
			es.WithLog(log),
			es.WithMetrics(metrics),
			es.WithStore(store),
			es.WithSnapshotter(snapshotter),
			es.WithBus(bus),
			es.WithSnapshot(cfg.Snapshot),
			es.WithMaxRetries(100),
			es.WithAggregates(account),
		}
		// one projection for all envs, they share the bus
		if i == 0 {
			opts = append(opts, es.WithProjections(balances))
		}
		envs[i], err = es.NewEnv(opts...)
		checkErr(err)
		defer envs[i].Shutdown()
	}

	id := fmt.Sprintf("acct-%d", time.Now().UnixNano())
	_, err = envs[0].Execute(ctx, accounting.AccountType, id, accounting.Open("loadtest"))
	checkErr(err)

	// === START ===

	log.Info("==================================")
	log.Info("Starting ...")

	var (
		startAt  = time.Now()
		next     atomic.Int64
		wg       sync.WaitGroup
		failures atomic.Int64
		batchMu  sync.Mutex
		lastTime = startAt
	)
	for w := range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := envs[w%len(envs)]
			for {
				i := next.Add(1)
				if i > int64(cfg.N) {
					return
				}
				if _, err := e.Execute(ctx, accounting.AccountType, id, accounting.Deposit(1)); err != nil {
					failures.Add(1)
					log.Error("deposit failed", slog.Any("error", err))
					continue
				}
				if i%int64(cfg.BatchSize) == 0 {
					batchMu.Lock()
					mu := getMemUsage()
					n := time.Now()
					took := n.Sub(lastTime)
					fmt.Printf(" | %5d events | %6d ms | %6d events/s | (%d / %d) MiB mem (sys) |\n",
						cfg.BatchSize, took.Milliseconds(), int(float64(cfg.BatchSize)/took.Seconds()), mu.Alloc/1024/1024, mu.Sys/1024/1024)
					lastTime = n
					batchMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// === stats ===

	took := time.Since(startAt)
	runtime.GC()

	st, err := envs[0].State(ctx, accounting.AccountType, id)
	checkErr(err)

	fmt.Println("==========================================")
	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("      balance: %d\n", accounting.Balance(st))
	fmt.Printf("    conflicts: %d\n", metrics.conflicts.Load())
	fmt.Printf("      retries: %d\n", metrics.retries.Load())
	fmt.Printf("     failures: %d\n", failures.Load())
	fmt.Printf("    projected: %d events\n", deposits.Load())
	fmt.Printf("avg. writes/s: %d\n", int(float64(cfg.N)/took.Seconds()))
}

// === Backend ===

func createBackend(ctx context.Context, cfg config, log *slog.Logger) (es.EventStore, es.Snapshotter, func()) {
	switch cfg.Backend {
	case "sqlite":
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath, Log: log})
		checkErr(err)
		return store, es.NewCachedSnapshotter(store, es.CachedSnapshotterOpts{Size: 16}), func() { _ = store.Close() }

	case "nats":
		connect := nats.ReuseConnection(nats.ConnectURL(cfg.NatsURL))
		store, err := nats.NewEventStore(nats.EventStoreConfig{
			Log:           log,
			Connect:       connect,
			SubjectPrefix: "esgo.loadtest",
			StreamName:    "esgo_loadtest",
		})
		checkErr(err)
		snapshotter, err := nats.NewSnapshotter(nats.KvConfig{
			Connect: connect,
			TTL:     5 * time.Minute,
			Bucket:  "loadtest_snapshots",
		})
		checkErr(err)
		cached := es.NewCachedSnapshotter(snapshotter, es.CachedSnapshotterOpts{Size: 16, TTL: time.Minute})
		return store, cached, func() { _ = store.Close() }

	default:
		return es.NewInMemoryStore(), es.NewInMemorySnapshotter(), func() {}
	}
}

// === stats helpers ===

type memUsage struct {
	Alloc uint64 // bytes allocated and not yet freed (heap)
	Sys   uint64 // total bytes obtained from OS
}

func getMemUsage() memUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return memUsage{Alloc: m.Alloc, Sys: m.Sys}
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}
