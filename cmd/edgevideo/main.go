// Command edgevideo runs the video transformation edge service: it loads
// configuration, connects the configured caches, builds the HTTP router
// and serves requests until told to shut down.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cacheregistration "github.com/cdnforge/edgevideo/internal/cache/registration"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/fetch"
	routing "github.com/cdnforge/edgevideo/internal/routing/registration"
	"github.com/cdnforge/edgevideo/internal/util/log"
	"github.com/cdnforge/edgevideo/internal/util/runtime"
	"github.com/cdnforge/edgevideo/internal/util/tracing"
)

func main() {
	if err := config.ParseFlags(runtime.ApplicationName, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if config.Flags.PrintVersion {
		fmt.Printf("%s %s\n", runtime.ApplicationName, runtime.ApplicationVersion)
		return
	}

	if err := config.Load(config.Flags.ConfigPath); err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	cfg := config.Get()

	log.Init(cfg.Logging.LogLevel, cfg.Logging.LogFile)
	for _, w := range config.LoaderWarnings {
		log.Warn("configuration warning", log.Pairs{"message": w})
	}
	log.Info("starting", log.Pairs{"application": runtime.ApplicationName, "version": runtime.ApplicationVersion})

	if cfg.Tracing != nil && cfg.Tracing.Implementation != "" {
		impl, ok := tracing.TracerImplementations[cfg.Tracing.Implementation]
		if !ok {
			log.Warn("unknown tracer implementation, falling back to stdout", log.Pairs{"implementation": cfg.Tracing.Implementation})
			impl = tracing.StdoutTracerImplementation
		}
		flush, err := tracing.SetTracer(impl, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			log.Warn("tracer initialization failed, continuing without it", log.Pairs{"error": err.Error()})
		} else {
			defer flush()
		}
	}

	if err := cacheregistration.LoadCachesFromConfig(cfg); err != nil {
		log.Fatal(1, "cache initialization failed", log.Pairs{"error": err.Error()})
	}
	defer cacheregistration.CloseAll()

	fetcher := fetch.New(objectStoreBinder(cfg))

	if err := routing.RegisterRoutes(fetcher); err != nil {
		log.Fatal(1, "route registration failed", log.Pairs{"error": err.Error()})
	}

	handler := handlers.RecoveryHandler()(handlers.CompressHandler(routing.Router))

	addr := cfg.Frontend.ListenAddress + ":" + strconv.Itoa(cfg.Frontend.ListenPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go serveMetrics(cfg)

	go func() {
		log.Info("listening", log.Pairs{"address": addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(1, "listener failed", log.Pairs{"error": err.Error()})
		}
	}()

	waitForShutdown(srv)
}

// objectStoreBinder builds an S3 binder over every binding_name referenced
// by an object_store source across all configured origins. It returns nil
// when no origin uses one, so the fetcher's object-store path only ever
// fails at request time for a config that actually asks for it.
func objectStoreBinder(cfg *config.EdgeConfig) fetch.ObjectStoreBinder {
	seen := map[string]bool{}
	var names []string
	for _, o := range cfg.Origins {
		for _, src := range o.Sources {
			if src.Type != config.SourceObjectStore || src.BindingName == "" || seen[src.BindingName] {
				continue
			}
			seen[src.BindingName] = true
			names = append(names, src.BindingName)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return fetch.NewS3Binder(fetch.BindingSpecsFromEnv(names))
}

// serveMetrics runs the Prometheus metrics listener on its own port,
// separate from the proxy listener so a scrape never competes with a slow
// origin for a connection slot.
func serveMetrics(cfg *config.EdgeConfig) {
	addr := cfg.Metrics.ListenAddress + ":" + strconv.Itoa(cfg.Metrics.ListenPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listening", log.Pairs{"address": addr})
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics listener stopped", log.Pairs{"error": err.Error()})
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM, then drains in-flight
// requests before returning.
func waitForShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down", log.Pairs{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", log.Pairs{"error": err.Error()})
	}
}
