package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"matchcore/api/grpcserver"
	"matchcore/config"
	"matchcore/domain/orderbook"
	"matchcore/infra/codec"
	"matchcore/infra/journal"
	"matchcore/infra/kafka"
	"matchcore/infra/logging"
	"matchcore/infra/metrics"
	"matchcore/infra/outbox"
	"matchcore/infra/sequence"
	"matchcore/jobs/broadcaster"
	"matchcore/service"
	"matchcore/snapshot"
)

func main() {
	path := flag.String("config", "", "path to YAML config (defaults when empty)")
	flag.Parse()

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Domain ----------------

	engineCfg := orderbook.Config{
		MaxOrders:         cfg.Engine.MaxOrders,
		MaxPriceLevels:    cfg.Engine.MaxPriceLevels,
		MaxOrdersPerLevel: cfg.Engine.MaxOrdersPerLevel,
	}
	engine, snapSeq, err := loadEngine(cfg, engineCfg, log)
	if err != nil {
		return err
	}
	seqGen := sequence.New(snapSeq)
	opts := service.Options{Logger: log.Named("service")}

	// ---------------- Journal (replay first) ----------------

	if cfg.Journal.Enabled {
		last, err := service.ReplayJournal(cfg.Journal.Dir, engine, snapSeq, log.Named("replay"))
		if err != nil {
			return err
		}
		seqGen.ResumeFrom(last)

		j, err := journal.Open(journal.Config{
			Dir:         cfg.Journal.Dir,
			SegmentSize: cfg.Journal.SegmentSize,
			SyncEvery:   cfg.Journal.SyncEvery,
		})
		if err != nil {
			return err
		}
		defer j.Close()
		opts.Journal = j
	}

	// ---------------- Outbox ----------------

	var ob *outbox.Outbox
	if cfg.Outbox.Enabled {
		if ob, err = outbox.Open(outbox.Config{Dir: cfg.Outbox.Dir}); err != nil {
			return err
		}
		defer ob.Close()

		last, err := ob.LastSeq()
		if err != nil {
			return err
		}
		seqGen.ResumeFrom(last)

		if opts.Codec, err = codec.ByName(cfg.Outbox.Codec); err != nil {
			return err
		}
		opts.Outbox = ob
	}

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	opts.Metrics = m

	st := engine.Stats()
	m.Book(st.Orders, st.BidLevels, st.AskLevels)

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		hs := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(sctx)
		}()
	}

	// ---------------- Service ----------------

	svc, err := service.NewOrderService(engine, seqGen, opts)
	if err != nil {
		return err
	}
	log.Info("engine ready",
		zap.Uint64("seq", seqGen.Current()),
		zap.Int("orders", st.Orders),
		zap.Int("bid_levels", st.BidLevels),
		zap.Int("ask_levels", st.AskLevels),
	)

	// ---------------- Background Jobs ----------------

	var jobs sync.WaitGroup

	if cfg.Snapshot.Enabled {
		w := &snapshot.Writer{Dir: cfg.Snapshot.Dir, Keep: cfg.Snapshot.Keep}
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			svc.RunSnapshotJob(ctx, w, cfg.Snapshot.Interval)
		}()
	}

	if cfg.Broadcast.Enabled {
		pub, err := kafka.New(cfg.Broadcast.Driver, cfg.Broadcast.Brokers, cfg.Broadcast.Topic)
		if err != nil {
			return err
		}
		defer pub.Close()

		bc, err := broadcaster.New(broadcaster.Config{
			Interval:   cfg.Broadcast.Interval,
			MaxRetries: cfg.Broadcast.MaxRetries,
			StreamKey:  cfg.Broadcast.StreamKey,
		}, ob, pub, m, log.Named("broadcaster"))
		if err != nil {
			return err
		}
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			bc.Run(ctx)
		}()
	}

	// journal, outbox and publisher close after the jobs exit
	defer func() {
		stop()
		jobs.Wait()
	}()

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.UnaryLogger(log.Named("grpc"))))
	grpcserver.Register(grpcSrv, grpcserver.NewServer(svc, log.Named("grpc")))

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		grpcSrv.GracefulStop()
	}()

	log.Info("matchcore listening", zap.String("grpc", cfg.Server.GRPCAddr), zap.String("metrics", cfg.Server.MetricsAddr))
	return grpcSrv.Serve(lis)
}

// loadEngine restores the newest snapshot when there is one and returns the
// command sequence it covers.
func loadEngine(cfg config.Config, engineCfg orderbook.Config, log *zap.Logger) (*orderbook.Engine, uint64, error) {
	if !cfg.Snapshot.Enabled {
		e, err := orderbook.New(engineCfg)
		return e, 0, err
	}
	snap, found, err := snapshot.LoadLatest(cfg.Snapshot.Dir)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		e, err := orderbook.New(engineCfg)
		return e, 0, err
	}
	if snap.State.Config != engineCfg {
		log.Warn("engine ceilings differ from snapshot, keeping the snapshot's",
			zap.Any("snapshot", snap.State.Config),
			zap.Any("config", engineCfg),
		)
	}
	e, err := orderbook.Restore(snap.State)
	if err != nil {
		return nil, 0, err
	}
	log.Info("snapshot restored", zap.Uint64("seq", snap.Seq), zap.Int("orders", len(snap.State.Orders)))
	return e, snap.Seq, nil
}
