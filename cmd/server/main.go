package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"

	"voxelrelay.ai/internal/netsys"
	persistlog "voxelrelay.ai/internal/persistence/log"
	"voxelrelay.ai/internal/persistence/r2s3"
	"voxelrelay.ai/internal/persistence/snapshot"
	"voxelrelay.ai/internal/sim/tuning"
	"voxelrelay.ai/internal/transport/observer"
	"voxelrelay.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory (traffic logs, index)")
		seed       = flag.Int64("seed", 0, "world seed (0 keeps the tuning seed)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite session/traffic index")
		profMode   = flag.String("profile", "", "write a cpu or mem profile to <data>/profile on exit")
		fresh      = flag.Bool("fresh", false, "ignore existing world snapshots on boot")
		snapEvery  = flag.Duration("snapshot_every", 5*time.Minute, "periodic world snapshot interval (0 disables)")
		snapKeep   = flag.Int("snapshot_keep", 24, "snapshots kept on disk (0 keeps all)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	switch strings.TrimSpace(*profMode) {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(filepath.Join(*dataDir, "profile")), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(filepath.Join(*dataDir, "profile")), profile.NoShutdownHook).Stop()
	default:
		logger.Fatalf("unknown -profile %q (want cpu or mem)", *profMode)
	}

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("WARN index backend: upsert tuning: %v", err)
		}
	}

	mirror, err := buildMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("mirror: %v", err)
	}
	// Closed last so the traffic files closed on shutdown still upload.
	defer mirror.Close()

	traffic := persistlog.NewTrafficLogger(*dataDir, logger)
	defer traffic.Close()
	if mirror != nil {
		traffic.OnFileClosed(mirror.Enqueue)
	}
	out := sinks{traffic}
	if idx != nil {
		out = append(out, idx)
	}

	m, err := netsys.New(netsys.Config{
		Tuning:   tune,
		Logger:   log.New(os.Stdout, "[netsys] ", log.LstdFlags|log.Lmicroseconds),
		Recorder: out,
		Index:    out,
	})
	if err != nil {
		logger.Fatalf("netsys: %v", err)
	}
	snaps := &snapshot.Store{Dir: filepath.Join(*dataDir, "snapshots"), Keep: *snapKeep}
	if mirror != nil {
		snaps.OnWritten = mirror.Enqueue
	}
	if !*fresh {
		if err := restoreLatest(m, snaps.Dir); err != nil {
			logger.Fatalf("restore world: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := m.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("ERROR simulation stopped: %v", err)
		}
	}()
	go func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := traffic.Flush(); err != nil {
					logger.Printf("WARN traffic flush: %v", err)
				}
			}
		}
	}()
	if *snapEvery > 0 {
		go snapshotLoop(ctx, m, snaps, *snapEvery, logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		var st *indexStats
		if idx != nil {
			s := indexStats(idx.Stats())
			st = &s
		}
		var ms *r2s3.Stats
		if mirror != nil {
			s := mirror.Stats()
			ms = &s
		}
		writeMetrics(rw, m.Metrics(), st, ms, traffic.Errors())
	})

	if envBool("VR_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		obsSrv := observer.NewServer(m, snaps, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/sessions", obsSrv.SessionsHandler())
		mux.HandleFunc("/admin/v1/snapshot", obsSrv.SnapshotHandler())
		mux.HandleFunc("/admin/v1/families", obsSrv.FamiliesHandler())
	} else {
		logger.Printf("admin endpoints disabled (VR_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VR_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VR_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(m, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (tick=%dHz seed=%d)", *addr, tune.TickRateHz, tune.Seed)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	<-runDone

	// Run has returned, so the world can be read from this goroutine.
	final := m.Capture()
	if path, err := snaps.Save(final); err != nil {
		logger.Printf("ERROR final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot tick=%d regions=%d path=%s", final.Header.Tick, len(final.Regions), path)
	}
}

func restoreLatest(m *netsys.Manager, dir string) error {
	path, err := snapshot.Latest(dir)
	if err != nil || path == "" {
		return err
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m.Restore(snap)
}

func snapshotLoop(ctx context.Context, m *netsys.Manager, snaps *snapshot.Store, every time.Duration, logger *log.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			snap, err := m.RequestSnapshot(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Printf("WARN snapshot: %v", err)
				}
				continue
			}
			if _, err := snaps.Save(snap); err != nil {
				logger.Printf("ERROR snapshot: %v", err)
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
