package main

import (
	"context"
	"fmt"
	"github.com/Aero25x/ton-wallet-tracker/business/domain/tracker"
	"github.com/Aero25x/ton-wallet-tracker/external/console"
	"github.com/Aero25x/ton-wallet-tracker/external/elastic"
	"github.com/Aero25x/ton-wallet-tracker/external/kafka"
	"github.com/Aero25x/ton-wallet-tracker/external/notifier"
	"github.com/Aero25x/ton-wallet-tracker/external/toncenter"
	"github.com/Aero25x/ton-wallet-tracker/infrastructure/api"
	"github.com/ardanlabs/conf"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jellydator/ttlcache/v3"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const prefix = "TON_WALLET_TRACKER"

type config struct {
	Account   string `conf:"required"`
	Toncenter struct {
		BaseUrl   string        `conf:"default:https://toncenter.com/api/v2"`
		ApiKey    string        `conf:"noprint"`
		Timeout   time.Duration `conf:"default:10s"`
		PageLimit int           `conf:"default:20"`
	}
	Notifier struct {
		Enabled          bool          `conf:"default:true"`
		Url              string        `conf:"default:wss://scaleton.io/ws"`
		HandshakeTimeout time.Duration `conf:"default:10s"`
		PingInterval     time.Duration `conf:"default:20s"`
		ReadTimeout      time.Duration `conf:"default:60s"`
		WriteTimeout     time.Duration `conf:"default:10s"`
	}
	Detector struct {
		PollInterval        time.Duration `conf:"default:5s"`
		PollBackoff         time.Duration `conf:"default:10s"`
		EventMaxRetries     int           `conf:"default:3"`
		EventRetryBackoff   time.Duration `conf:"default:5s"`
		EventConnectGrace   time.Duration `conf:"default:10s"`
		EventSafetyInterval time.Duration `conf:"default:30s"`
		SeedAttempts        int           `conf:"default:3"`
		DeliverTimeout      time.Duration `conf:"default:10s"`
		SeenLtWindow        uint64        `conf:"default:1000000000000"`
		SeenMaxEntries      int           `conf:"default:10000"`
	}
	Sink struct {
		Console bool `conf:"default:true"`
		Kafka   struct {
			Enabled          bool     `conf:"default:false"`
			BootstrapServers []string `conf:"default:localhost:9092"`
			Topic            string   `conf:"default:ton-wallet-transactions"`
		}
		Elastic struct {
			Enabled         bool     `conf:"default:false"`
			Addresses       []string `conf:"default:https://localhost:9200"`
			Username        string   `conf:"default:tracker"`
			Password        string   `conf:"noprint"`
			CertificatePath string   `conf:"default:http_ca.crt"`
			Index           string   `conf:"default:ton-wallet-transactions"`
			MaxRetries      int      `conf:"default:10"`
		}
	}
	Server struct {
		HttpHost       string        `conf:"default:0.0.0.0:8000"`
		GrpcHost       string        `conf:"default:0.0.0.0:8001"`
		StatusCacheTTL time.Duration `conf:"default:1s"`
	}
	MetricsNamespace string `conf:"default:ton_wallet_tracker"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	// a missing .env file is fine, the environment may already be set
	_ = godotenv.Load()

	var cfg config
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %v", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %v", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %v", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %v", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	loggerConfig := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("creating logger: %v", err)
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	sinks, closeSinks, err := createSinks(cfg)
	if err != nil {
		return errors.Wrap(err, "creating sinks")
	}
	defer closeSinks()

	historyClient := toncenter.NewClient(cfg.Toncenter.BaseUrl, cfg.Toncenter.ApiKey, cfg.Toncenter.Timeout, sLogger)

	var subscriber tracker.Subscriber
	if cfg.Notifier.Enabled {
		subscriber = notifier.NewClient(cfg.Notifier.Url, notifier.Config{
			HandshakeTimeout: cfg.Notifier.HandshakeTimeout,
			PingInterval:     cfg.Notifier.PingInterval,
			ReadTimeout:      cfg.Notifier.ReadTimeout,
			WriteTimeout:     cfg.Notifier.WriteTimeout,
		}, sLogger)
	}

	engine := tracker.NewEngine(tracker.NewSeenWindow(cfg.Detector.SeenLtWindow, cfg.Detector.SeenMaxEntries))
	detector := tracker.NewDetector(historyClient, subscriber, sinks, engine, tracker.Config{
		Account:             cfg.Account,
		PageLimit:           cfg.Toncenter.PageLimit,
		FetchTimeout:        cfg.Toncenter.Timeout,
		DeliverTimeout:      cfg.Detector.DeliverTimeout,
		SeedAttempts:        cfg.Detector.SeedAttempts,
		PollInterval:        cfg.Detector.PollInterval,
		PollBackoff:         cfg.Detector.PollBackoff,
		EventMaxRetries:     cfg.Detector.EventMaxRetries,
		EventRetryBackoff:   cfg.Detector.EventRetryBackoff,
		EventConnectGrace:   cfg.Detector.EventConnectGrace,
		EventSafetyInterval: cfg.Detector.EventSafetyInterval,
	}, sLogger, tracker.NewMetrics(cfg.MetricsNamespace))

	statusCache := ttlcache.New[string, tracker.Status](
		ttlcache.WithTTL[string, tracker.Status](cfg.Server.StatusCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, tracker.Status](), // don't refresh ttl upon getting the item from cache
	)
	go statusCache.Start()
	defer statusCache.Stop()

	healthServer := api.NewHealthServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		healthServer.SetServing(true)
		defer healthServer.SetServing(false)
		err := detector.Run(gctx)
		if ctx.Err() != nil {
			sLogger.Infow("Received shutdown signal, shutting down...")
			return nil
		}
		return errors.Wrap(err, "running detector")
	})
	g.Go(func() error {
		handler := api.NewHandler(api.NewStatusCache(detector, statusCache))
		return errors.Wrap(api.RunHTTPServer(gctx, cfg.Server.HttpHost, handler, sLogger), "running http server")
	})
	g.Go(func() error {
		return errors.Wrap(healthServer.Serve(gctx, cfg.Server.GrpcHost, sLogger), "running grpc server")
	})

	sLogger.Infow("Tracking wallet", "account", cfg.Account)
	return g.Wait()
}

func createSinks(cfg config) (tracker.Sinks, func(), error) {
	var sinks tracker.Sinks
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Sink.Console {
		sinks = append(sinks, console.NewPrinter(os.Stdout, time.Local))
	}

	if cfg.Sink.Kafka.Enabled {
		m := kprom.NewMetrics(cfg.MetricsNamespace,
			kprom.Registerer(prometheus.DefaultRegisterer),
			kprom.Gatherer(prometheus.DefaultGatherer))
		kcl, err := kgo.NewClient(
			kgo.WithHooks(m),
			kgo.SeedBrokers(cfg.Sink.Kafka.BootstrapServers...),
			kgo.DefaultProduceTopic(cfg.Sink.Kafka.Topic),
			kgo.ProducerBatchCompression(kgo.ZstdCompression()),
		)
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrap(err, "creating kafka client")
		}
		closers = append(closers, kcl.Close)
		sinks = append(sinks, kafka.NewClient(kcl, cfg.Account))
	}

	if cfg.Sink.Elastic.Enabled {
		cert, err := os.ReadFile(cfg.Sink.Elastic.CertificatePath)
		if err != nil {
			log.Printf("[WARN] main: could not read elastic certificate: %v", err)
		}
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses:     cfg.Sink.Elastic.Addresses,
			Username:      cfg.Sink.Elastic.Username,
			Password:      cfg.Sink.Elastic.Password,
			CACert:        cert,
			RetryOnStatus: []int{502, 503, 504, 429},
			MaxRetries:    cfg.Sink.Elastic.MaxRetries,
			RetryBackoff:  calculateBackoff(),
		})
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrap(err, "creating elasticsearch client")
		}
		sinks = append(sinks, elastic.NewClient(esClient, cfg.Sink.Elastic.Index, cfg.Account))
	}

	return sinks, closeAll, nil
}

func calculateBackoff() func(i int) time.Duration {
	return func(i int) time.Duration {
		var d time.Duration
		if i < 10 {
			d = time.Second*time.Duration(i) + randomMillis()
		} else {
			d = time.Second*30 + randomMillis()
		}
		log.Printf("[WARN] elasticsearch client retry [%d] in %v.", i, d)
		return d
	}
}

func randomMillis() time.Duration {
	return time.Duration(rand.Intn(1000)) * time.Millisecond
}
