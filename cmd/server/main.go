package main

import (
	"context"
	"errors"
	"flag"
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

	"github.com/dustin/go-humanize"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"

	persistlog "lifesupport.ai/internal/persistence/log"
	"lifesupport.ai/internal/sim/atmosphere"
	"lifesupport.ai/internal/sim/lifesupport"
	"lifesupport.ai/internal/sim/planets"
	"lifesupport.ai/internal/sim/tuning"
	"lifesupport.ai/internal/sim/zone"
	"lifesupport.ai/internal/transport/api"
	"lifesupport.ai/internal/transport/observer"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		planetsPath = flag.String("planets", "", "path to planets.yaml (default: <configs>/planets.yaml)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite zone event index")
		auditEvery  = flag.Duration("audit_unset_every", 0, "log owned coordinates without zone state at this interval (0 disables)")
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
	deadlock.Opts.Disable = !tune.Locks.DeadlockDetection
	deadlock.Opts.DeadlockTimeout = time.Duration(tune.Locks.DeadlockTimeoutMs) * time.Millisecond

	pp := strings.TrimSpace(*planetsPath)
	if pp == "" {
		pp = filepath.Join(*configDir, "planets.yaml")
	}
	cat := planets.New()
	if err := cat.Load(pp); err != nil {
		// Planet data stays unloaded; every world-space reads as breathable until a reload.
		logger.Printf("load planets (%s): %v", pp, err)
	} else {
		logger.Printf("planets loaded: %d worlds digest=%s", len(cat.List()), cat.Digest())
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	svc := lifesupport.New(lifesupport.Config{
		Namespace: tune.Namespace,
		Planets:   cat,
		Side:      zone.SideHost,
		Suffocation: atmosphere.Config{
			IntervalTicks: tune.Suffocation.IntervalTicks,
			Damage:        tune.Suffocation.Damage,
			AirLoss:       tune.Suffocation.AirLoss,
		},
		Logger: logger,
	})

	audit := persistlog.NewAuditLogger(*dataDir)
	defer audit.Close()
	svc.AddSink(audit)

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertPlanets(cat); err != nil {
			logger.Printf("index planets: %v", err)
		}
		svc.AddSink(idx)
	}

	hub := observer.NewHub(observer.Config{
		MaxClients:   tune.Observer.MaxClients,
		SendBuffer:   tune.Observer.SendBuffer,
		WriteTimeout: time.Duration(tune.Observer.WriteTimeout) * time.Millisecond,
		AllowRemote:  envBool("LS_OBSERVER_ALLOW_REMOTE", false),
	}, logger)
	defer hub.Close()
	svc.AddSink(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok\n"))
	})
	var recorder api.PlanetRecorder
	if idx != nil {
		recorder = idx
	}
	api.NewServer(api.Config{
		Service:          svc,
		Planets:          cat,
		PlanetsPath:      pp,
		Recorder:         recorder,
		Limits:           tune.Limits,
		Logger:           logger,
		AllowRemoteAdmin: envBool("LS_ADMIN_ALLOW_REMOTE", false),
	}).Register(mux)
	mux.HandleFunc("/v1/observe", hub.Handler())
	if envBool("LS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Printf("listening on %s (namespace=%s)", *addr, tune.Namespace)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		return srv.Shutdown(ctx2)
	})
	if *auditEvery > 0 {
		g.Go(func() error {
			runUnsetZoneAudit(ctx, svc, *auditEvery, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Printf("server: %v", err)
	}
	for _, ws := range svc.WorldSpaces() {
		st := svc.Stats(ws)
		logger.Printf("shutdown %s: oxygen=%s gravity=%s", ws,
			humanize.Comma(int64(st.OxygenOccupied)), humanize.Comma(int64(st.GravityOccupied)))
	}
}

func runUnsetZoneAudit(ctx context.Context, svc *lifesupport.Service, every time.Duration, logger *log.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, ws := range svc.WorldSpaces() {
				u := svc.AuditUnsetZones(ws)
				if len(u.Oxygen) > 0 || len(u.Gravity) > 0 {
					logger.Printf("audit %s: %d oxygen and %d gravity coords owned without zone state", ws, len(u.Oxygen), len(u.Gravity))
				}
			}
		}
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
