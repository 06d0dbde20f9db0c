package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/blobtree/featureflag"
	"github.com/aukilabs/blobtree/geometry"
	blobtreehttp "github.com/aukilabs/blobtree/http"
	"github.com/aukilabs/blobtree/models"
	"github.com/aukilabs/blobtree/modules"
	"github.com/aukilabs/blobtree/modules/dagaz"
	"github.com/aukilabs/blobtree/smoketest"
	bwebsocket "github.com/aukilabs/blobtree/websocket"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The blobtree version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "blobtree_info",
		Help:        "Blobtree information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"BLOBTREE_ADDR"                  help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"BLOBTREE_ADMIN_ADDR"            help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"BLOBTREE_PUBLIC_ENDPOINT"       help:"The public endpoint where this blobtree server is reachable."`
	LogLevel           string        `cli:""        env:"BLOBTREE_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"BLOBTREE_LOG_INDENT"            help:"Indent logs."`
	ScratchLayerExtent float64       `cli:""        env:"BLOBTREE_SCRATCH_LAYER_EXTENT"  help:"Half size of the cube centered on the origin that bounds the scratch layer of a client."`
	SyncClockInterval  time.Duration `cli:",hidden" env:"BLOBTREE_SYNC_CLOCK_INTERVAL"   help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"BLOBTREE_CLIENT_IDLE_TIMEOUT"   help:"Time until an idle client will be disconnected"`
	LogSummaryInterval time.Duration `cli:",hidden" env:"BLOBTREE_LOG_SUMMARY_INTERVAL"  help:"The duration between each log summary by connection."`
	Events             eventsConfig  `cli:",hidden" env:"-"                              help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"BLOBTREE_FEATURE_FLAGS"         help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                              help:"Show version."`
	Help               bool          `cli:""        env:"-"                              help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"BLOBTREE_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"BLOBTREE_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"BLOBTREE_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"BLOBTREE_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		ScratchLayerExtent: 1000,
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts blobtree server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "blobtree",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	layers := &models.LayerStore{}
	scratchLayerBounds := geometry.NewBox(
		-conf.ScratchLayerExtent, conf.ScratchLayerExtent,
		-conf.ScratchLayerExtent, conf.ScratchLayerExtent,
		-conf.ScratchLayerExtent, conf.ScratchLayerExtent,
	)

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}

	var service http.ServeMux
	service.HandleFunc("/health", blobtreehttp.HandleHealthCheck)
	service.HandleFunc("/version", blobtreehttp.HandleVersion(version))
	service.HandleFunc("/ready", blobtreehttp.HandleReadyCheck(readinessCheck))

	api := blobtreehttp.API{
		Layers:       layers,
		FeatureFlags: featureFlags,
	}
	api.Register(&service)

	featureFlags.IfNotSet(featureflag.FlagDisableSmokeTest, func() {
		service.HandleFunc("POST /smoke-test", smoketest.HandleSmokeTest(smoketest.Options{
			Layers: layers,
			SendResult: func(ctx context.Context, res smoketest.Results) error {
				logs.WithTag("layer_id", res.LayerID).
					WithTag("succeeded", res.Succeeded).
					WithTag("latency_ms", res.LatencyMilliSec).
					Info("smoke test done")
				return nil
			},
		}))
	})

	service.Handle("/", blobtreehttp.LayerHandshakeHandler(layers, websocket.Server{
		Handshake: blobtreehttp.LayerHandshake(layers),
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh bwebsocket.Handler = &bwebsocket.RealtimeHandler{
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				Layers:                  layers,
				ScratchLayerBounds:      scratchLayerBounds,
				Modules:                 newModules(featureFlags),
			}
			h := bwebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			h = bwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			bwebsocket.Handle(ctx, conn, h)
		},
	}))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", blobtreehttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", blobtreehttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("scratch_layer_bounds", scratchLayerBounds.String()).
		WithTag("feature_flags", featureFlags.List()).
		Info("starting blobtree server")

	blobtreehttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(
			blobtreehttp.HandleWithCORS(&service),
			blobtreehttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func newModules(featureFlags featureflag.FeatureFlag) []modules.Module {
	var m []modules.Module
	featureFlags.IfNotSet(featureflag.FlagDisableDagazModule, func() {
		m = append(m, &dagaz.Module{})
	})
	return m
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if e := conf.ScratchLayerExtent; e <= 0 || math.IsInf(e, 0) || math.IsNaN(e) {
		return errors.New("scratch layer extent must be a positive finite number").
			WithTag("scratch_layer_extent", e)
	}

	return nil
}
