package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"quotecache/internal/cache"
	"quotecache/internal/config"
	"quotecache/internal/httpx"
	"quotecache/internal/provider"
	"quotecache/internal/provider/finnhub"
	"quotecache/internal/provider/fmp"
	"quotecache/internal/provider/twelvedata"
	"quotecache/internal/service"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	if level, err := log.ParseLevel(cfg.Server.LogLevel); err == nil {
		log.SetLevel(level)
	}

	providers := buildProviders(cfg)
	if len(providers) == 0 {
		log.Fatal("no providers enabled; set at least one vendor API key")
	}

	var shared cache.SharedBackend
	if cfg.Redis.Enabled {
		shared = cache.NewRedisBackend(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}

	svc, err := service.New(cfg, service.Deps{
		Providers: providers,
		Shared:    shared,
		// Portfolio and recommendation stores live in the host application;
		// this binary runs on the priority list alone.
	})
	if err != nil {
		log.WithError(err).Fatal("service")
	}
	svc.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/price", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if strings.TrimSpace(symbol) == "" {
			http.Error(w, "missing symbol query param", http.StatusBadRequest)
			return
		}
		q, ok := svc.GetPrice(r.Context(), symbol)
		if !ok {
			http.Error(w, "no price available", http.StatusNotFound)
			return
		}
		writeJSON(w, q)
	})
	mux.HandleFunc("/api/prices", func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("symbols")
		if strings.TrimSpace(raw) == "" {
			http.Error(w, "missing symbols query param", http.StatusBadRequest)
			return
		}
		symbols := strings.Split(raw, ",")
		if len(symbols) > 200 {
			http.Error(w, "too many symbols (max 200)", http.StatusBadRequest)
			return
		}
		writeJSON(w, svc.GetPrices(r.Context(), symbols))
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(recoverPanic(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.RequestTimeoutSec+5) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	svc.Shutdown()
}

func buildProviders(cfg config.Config) []provider.Provider {
	httpClient := httpx.New(cfg.ProviderTimeout())

	var providers []provider.Provider
	if cfg.Providers.Finnhub.Enabled {
		if cfg.Providers.Finnhub.APIKey == "" {
			log.Warn("finnhub enabled but FINNHUB_API_KEY not set; skipping")
		} else {
			providers = append(providers, finnhub.New(finnhub.Config{
				Endpoint: cfg.Providers.Finnhub.Endpoint,
				APIKey:   cfg.Providers.Finnhub.APIKey,
			}, httpClient))
		}
	}
	if cfg.Providers.TwelveData.Enabled {
		if cfg.Providers.TwelveData.APIKey == "" {
			log.Warn("twelvedata enabled but TWELVEDATA_API_KEY not set; skipping")
		} else {
			opts := []twelvedata.APIClientOption{twelvedata.WithHTTPClient(httpClient.HTTP)}
			if cfg.Providers.TwelveData.Endpoint != "" {
				opts = append(opts, twelvedata.WithBaseURL(cfg.Providers.TwelveData.Endpoint))
			}
			client, err := twelvedata.NewAPIClient(cfg.Providers.TwelveData.APIKey, opts...)
			if err != nil {
				log.WithError(err).Warn("twelvedata client error; skipping")
			} else {
				providers = append(providers, twelvedata.NewProvider("", client))
			}
		}
	}
	if cfg.Providers.FMP.Enabled {
		if cfg.Providers.FMP.APIKey == "" {
			log.Warn("fmp enabled but FMP_API_KEY not set; skipping")
		} else {
			providers = append(providers, fmp.New(fmp.Config{
				Endpoint: cfg.Providers.FMP.Endpoint,
				APIKey:   cfg.Providers.FMP.APIKey,
			}, httpClient))
		}
	}
	return providers
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("panic", rec).Error("handler panicked")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
