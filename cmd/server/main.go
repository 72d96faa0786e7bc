// Command server runs the data aggregation and policy-trigger pipeline: the
// flight and weather aggregators, the data router, the policy monitor, the
// payout engine, and the internal HTTP API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/triggerr/core/internal/aggregator"
	aggcache "github.com/triggerr/core/internal/aggregator/cache"
	flightagg "github.com/triggerr/core/internal/aggregator/flight"
	"github.com/triggerr/core/internal/aggregator/resolve"
	aggrouter "github.com/triggerr/core/internal/aggregator/router"
	"github.com/triggerr/core/internal/aggregator/source"
	weatheragg "github.com/triggerr/core/internal/aggregator/weather"
	"github.com/triggerr/core/internal/app/storage"
	storagepg "github.com/triggerr/core/internal/app/storage/postgres"
	"github.com/triggerr/core/internal/chain"
	"github.com/triggerr/core/internal/crypto"
	"github.com/triggerr/core/internal/httpapi"
	"github.com/triggerr/core/internal/services/monitor"
	payoutengine "github.com/triggerr/core/internal/services/payout"
	"github.com/triggerr/core/internal/services/wallet"
	"github.com/triggerr/core/pkg/config"
	"github.com/triggerr/core/pkg/logger"
	"github.com/triggerr/core/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)
	m := metrics.New("core")

	store, err := buildStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initialize store")
	}

	flightCache, weatherCache := buildCaches(cfg)
	resolveOpts := resolve.DefaultOptions()
	resolveOpts.OutlierSigma = cfg.Aggregation.OutlierSigma
	resolveOpts.NTarget = cfg.Aggregation.QualitySaturationSources
	flights := flightagg.New(flightagg.Config{
		Pipeline: aggregator.Config{
			Domain:           "flight",
			MaxSources:       cfg.Aggregation.MaxSources,
			PerSourceTimeout: cfg.Aggregation.PerSourceTimeout(),
			Timeout:          cfg.Aggregation.AggregatorTimeout(),
			MinQualityScore:  cfg.Aggregation.MinAcceptableQualityScore,
		},
		Resolve: resolveOpts,
	}, flightCache, buildFlightClients(cfg, log), log, m)
	weather := weatheragg.New(weatheragg.Config{
		Pipeline: aggregator.Config{
			Domain:           "weather",
			MaxSources:       cfg.Aggregation.MaxSources,
			PerSourceTimeout: cfg.Aggregation.PerSourceTimeout(),
			Timeout:          cfg.Aggregation.AggregatorTimeout(),
			MinQualityScore:  cfg.Aggregation.MinAcceptableQualityScore,
		},
		Resolve:      resolveOpts,
		GridDecimals: cfg.Aggregation.CoordinateGridDecimals,
	}, weatherCache, buildWeatherClients(cfg, log), log, m)

	dataRouter := aggrouter.New(aggrouter.Config{
		Timeout:                      cfg.Aggregation.RouterTimeout(),
		MaxConcurrentWeatherRequests: cfg.Aggregation.MaxConcurrentWeatherRequests,
	}, flights, weather, log)

	registry := buildChainRegistry(cfg, log)
	engine := payoutengine.New(store, registry, log, m)
	wallets := buildWalletService(cfg, store, registry, log)

	mon := monitor.New(monitor.Config{
		Interval:                     cfg.Monitor.Interval(),
		MaxPoliciesPerCheck:          cfg.Monitor.MaxPoliciesPerCheck,
		DefaultDelayThresholdMinutes: cfg.Monitor.DefaultDelayThresholdMinutes,
		RequestedBy:                  cfg.Monitor.RequestedBy,
	}, store, dataRouter, engine, log, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Monitor.Enabled {
		if err := mon.Start(ctx); err != nil {
			log.WithError(err).Fatal("start policy monitor")
		}
	} else {
		log.Info("policy monitor disabled; running in on-demand mode")
	}

	api := httpapi.New(dataRouter, engine, mon, wallets, cfg.Security.InternalAPIKey, log, m)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := mon.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("stop policy monitor")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown http server")
	}
}

func buildStore(cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		log.Warn("no database configured; using in-memory store")
		return storage.NewMemory(), nil
	}
	db, err := storagepg.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	return storagepg.New(db), nil
}

// buildWalletService wires wallet provisioning: keypair from the chain
// registry, secret sealed by the vault, row persisted for the payout path. A
// missing encryption secret disables provisioning only; the rest of the
// system continues.
func buildWalletService(cfg *config.Config, store storage.Store, registry *chain.Registry, log *logger.Logger) *wallet.Service {
	vault, err := crypto.NewVault(cfg.Security.SecretEncryptionKey)
	if err != nil {
		log.WithError(err).Warn("wallet provisioning disabled")
		return nil
	}
	return wallet.New(store, registry, vault, log)
}

func buildCaches(cfg *config.Config) (aggcache.Store, aggcache.Store) {
	if cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		return aggcache.NewRedis(client, cfg.Aggregation.FlightTTL(), "flight"),
			aggcache.NewRedis(client, cfg.Aggregation.WeatherTTL(), "weather")
	}
	return aggcache.NewMemory(cfg.Aggregation.FlightTTL()),
		aggcache.NewMemory(cfg.Aggregation.WeatherTTL())
}

// buildFlightClients assembles the flight source set. A misconfigured adapter
// is fatal for that adapter only; the rest of the system continues.
func buildFlightClients(cfg *config.Config, log *logger.Logger) []source.FlightClient {
	if !cfg.Providers.UseRealProviders {
		log.Info("real providers disabled; using fixture flight sources")
		return []source.FlightClient{
			source.NewFlightFixture("fixture-flight-primary", 100, 0.92, 0),
			source.NewFlightFixture("fixture-flight-secondary", 60, 0.85, 3),
		}
	}

	var clients []source.FlightClient
	if c, err := source.NewFlightAwareClient(cfg.Providers.FlightAware.Endpoint, cfg.Providers.FlightAware.APIKey, nil, log); err != nil {
		log.WithError(err).Warn("flightaware adapter disabled")
	} else {
		clients = append(clients, c)
	}
	if c, err := source.NewAviationStackClient(cfg.Providers.AviationStack.Endpoint, cfg.Providers.AviationStack.APIKey, nil, log); err != nil {
		log.WithError(err).Warn("aviationstack adapter disabled")
	} else {
		clients = append(clients, c)
	}
	if c, err := source.NewOpenSkyClient(cfg.Providers.OpenSky.Endpoint, nil, log); err != nil {
		log.WithError(err).Warn("opensky adapter disabled")
	} else {
		clients = append(clients, c)
	}
	return clients
}

func buildWeatherClients(cfg *config.Config, log *logger.Logger) []source.WeatherClient {
	if !cfg.Providers.UseRealProviders {
		log.Info("real providers disabled; using fixture weather sources")
		return []source.WeatherClient{
			source.NewWeatherFixture("fixture-weather-primary", 100, 0.9, 0),
			source.NewWeatherFixture("fixture-weather-secondary", 60, 0.82, 1.5),
		}
	}

	var clients []source.WeatherClient
	if c, err := source.NewGoogleWeatherClient(cfg.Providers.GoogleWeather.Endpoint, cfg.Providers.GoogleWeather.APIKey, nil, log); err != nil {
		log.WithError(err).Warn("google weather adapter disabled")
	} else {
		clients = append(clients, c)
	}
	if c, err := source.NewOpenWeatherClient(cfg.Providers.OpenWeather.Endpoint, cfg.Providers.OpenWeather.APIKey, nil, log); err != nil {
		log.WithError(err).Warn("openweather adapter disabled")
	} else {
		clients = append(clients, c)
	}
	return clients
}

func buildChainRegistry(cfg *config.Config, log *logger.Logger) *chain.Registry {
	registry := chain.NewRegistry(cfg.Chains.Primary, log)
	for tag, chainCfg := range cfg.Chains.Clients {
		client, err := chain.NewRPCClient(chain.RPCConfig{
			Chain:     tag,
			RPCURL:    chainCfg.RPCURL,
			NetworkID: chainCfg.NetworkID,
			Timeout:   time.Duration(chainCfg.TimeoutMs) * time.Millisecond,
		}, log)
		if err != nil {
			log.WithError(err).WithField("chain", tag).Warn("chain client disabled")
			continue
		}
		registry.Register(client)
	}
	if _, ok := registry.Get(cfg.Chains.Primary); !ok {
		log.Warn("no chain clients configured; registering mock settlement service")
		registry.Register(chain.NewMock(cfg.Chains.Primary))
	}
	return registry
}
