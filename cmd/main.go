package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/laguz/autoplace"
	"github.com/aukilabs/laguz/catalog"
	"github.com/aukilabs/laguz/command"
	"github.com/aukilabs/laguz/featureflag"
	lhttp "github.com/aukilabs/laguz/http"
	"github.com/aukilabs/laguz/models"
	"github.com/aukilabs/laguz/spatial"
	"github.com/aukilabs/laguz/store"
	lwebsocket "github.com/aukilabs/laguz/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Laguz version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "laguz_info",
		Help:        "Laguz information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr                 string        `cli:""        env:"LAGUZ_ADDR"                   help:"Listening address for client connections."`
	AdminAddr            string        `cli:""        env:"LAGUZ_ADMIN_ADDR"             help:"Admin listening address."`
	LogLevel             string        `cli:""        env:"LAGUZ_LOG_LEVEL"              help:"Log level (debug|info|warning|error)."`
	LogIndent            bool          `cli:""        env:"LAGUZ_LOG_INDENT"             help:"Indent logs."`
	ServerID             string        `cli:""        env:"LAGUZ_SERVER_ID"              help:"The prefix of the facility ids."`
	AuthToken            string        `cli:""        env:"LAGUZ_AUTH_TOKEN"             help:"The bearer token required by clients. No token disables authentication."`
	CatalogFile          string        `cli:""        env:"LAGUZ_CATALOG_FILE"           help:"The YAML file that contains the object definitions. Reloaded on change."`
	DatabaseFile         string        `cli:""        env:"LAGUZ_DATABASE_FILE"          help:"The SQLite file where layouts are saved. No file disables persistence."`
	AutosaveInterval     time.Duration `cli:",hidden" env:"LAGUZ_AUTOSAVE_INTERVAL"      help:"The duration between each save of the modified layouts."`
	WorldMin             string        `cli:""        env:"LAGUZ_WORLD_MIN"              help:"The minimum corner of the facilities (x,y,z)."`
	WorldMax             string        `cli:""        env:"LAGUZ_WORLD_MAX"              help:"The maximum corner of the facilities (x,y,z)."`
	GridSize             float64       `cli:",hidden" env:"LAGUZ_GRID_SIZE"              help:"The grid positions are snapped to."`
	SnapTolerance        float64       `cli:",hidden" env:"LAGUZ_SNAP_TOLERANCE"         help:"The distance under which a position is considered snapped."`
	MaxSolverIterations  int           `cli:",hidden" env:"LAGUZ_MAX_SOLVER_ITERATIONS"  help:"The maximum number of constraint solver iterations."`
	AutoplaceMaxAttempts int           `cli:",hidden" env:"LAGUZ_AUTOPLACE_MAX_ATTEMPTS" help:"The maximum number of positions tried when searching a free spot."`
	ClientIdleTimeout    time.Duration `cli:",hidden" env:"LAGUZ_CLIENT_IDLE_TIMEOUT"    help:"Time until an idle client will be disconnected"`
	LogSummaryInterval   time.Duration `cli:",hidden" env:"LAGUZ_LOG_SUMMARY_INTERVAL"   help:"The duration between each log summary by connection."`
	Events               eventsConfig  `cli:",hidden" env:"-"                            help:"Event pusher configuration."`
	FeatureFlags         []string      `cli:",hidden" env:"LAGUZ_FEATURE_FLAGS"          help:"Comma separated feature flags"`
	Version              bool          `cli:""        env:"-"                            help:"Show version."`
	Help                 bool          `cli:""        env:"-"                            help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"LAGUZ_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. No endpoint disables the pusher."`
	FlushInterval time.Duration `cli:",hidden" env:"LAGUZ_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"LAGUZ_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"LAGUZ_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:                 ":4100",
		AdminAddr:            ":18191",
		LogLevel:             logs.InfoLevel.String(),
		ServerID:             "laguz",
		AutosaveInterval:     time.Second * 30,
		WorldMin:             "-500,-10,-500",
		WorldMax:             "500,100,500",
		GridSize:             command.DefaultGridSize,
		SnapTolerance:        command.DefaultSnapTolerance,
		MaxSolverIterations:  command.DefaultMaxSolverIterations,
		AutoplaceMaxAttempts: 100,
		ClientIdleTimeout:    time.Minute * 5,
		LogSummaryInterval:   time.Minute,
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
		Help("Starts Laguz facility layout server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	bounds, err := parseBounds(conf.WorldMin, conf.WorldMax)
	if err != nil {
		logs.Fatal(errors.New("invalid world bounds").Wrap(err))
	}

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
			SDKType:          "laguz",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	var wg sync.WaitGroup

	library := catalog.Default()
	if conf.CatalogFile != "" {
		watcher := catalog.Watcher{
			Catalog: library,
			Path:    conf.CatalogFile,
			OnReload: func(err error) {
				if err != nil {
					logs.WithTag("path", conf.CatalogFile).Warn(err)
				}
			},
		}
		if err := watcher.Reload(); err != nil {
			logs.Fatal(errors.New("loading catalog failed").Wrap(err))
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logs.Error(errors.New("watching catalog failed").Wrap(err))
			}
		}()
	}

	facilities := models.FacilityStore{ServerID: conf.ServerID}
	facilityConfig := models.FacilityConfig{
		Name:    "facility",
		Bounds:  bounds,
		Library: library,
		Commands: command.Config{
			GridSize:            float32(conf.GridSize),
			SnapTolerance:       float32(conf.SnapTolerance),
			MaxSolverIterations: conf.MaxSolverIterations,
		},
		StrictBounds: featureFlags.IsSet(featureflag.FlagStrictWorldBounds),
	}
	searcher := autoplace.Searcher{
		GridSize:    float32(conf.GridSize),
		MaxAttempts: conf.AutoplaceMaxAttempts,
	}

	api := lhttp.API{
		Facilities:   &facilities,
		Facility:     facilityConfig,
		Searcher:     searcher,
		FeatureFlags: featureFlags,
	}

	// Stopped after the servers so that the last changes are saved.
	stopAutosave := func() {}
	if conf.DatabaseFile != "" {
		db, err := store.OpenSQLite(conf.DatabaseFile)
		if err != nil {
			logs.Fatal(errors.New("opening layout database failed").Wrap(err))
		}
		defer db.Close()

		autosaver := &store.Autosaver{
			Saver:      db,
			Facilities: &facilities,
			Interval:   conf.AutosaveInterval,
		}
		api.Store = db
		api.Autosaver = autosaver

		var autosaveCtx context.Context
		autosaveCtx, stopAutosave = context.WithCancel(context.Background())

		wg.Add(1)
		go func() {
			defer wg.Done()
			autosaver.Run(autosaveCtx)
		}()
	}

	var ready atomic.Bool
	readinessCheck := ready.Load

	var layouts http.ServeMux
	api.Register(&layouts)

	var service http.ServeMux
	service.Handle("/", lhttp.VerifyAuthTokenHandler(conf.AuthToken, &layouts))

	service.Handle("/health", http.HandlerFunc(lhttp.HandleHealthCheck))
	service.Handle("/ready", lhttp.HandleReadyCheck(readinessCheck))
	service.Handle("/version", lhttp.HandleVersion(version))

	service.Handle("/ws", websocket.Server{
		Handshake: lhttp.VerifyAuthToken(ctx, conf.AuthToken),
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh lwebsocket.Handler = &lwebsocket.RealtimeHandler{
				ClientIdleTimeout: conf.ClientIdleTimeout,
				Facilities:        &facilities,
				Facility:          facilityConfig,
				Searcher:          searcher,
				FeatureFlags:      featureFlags,
			}
			h := lwebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			h = lwebsocket.HandlerWithMetrics(h, conf.ServerID)
			defer h.Close()

			lwebsocket.Handle(ctx, conn, h)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", lhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", lhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("server_id", conf.ServerID).
		WithTag("catalog_types", len(library.Types())).
		WithTag("persistence", conf.DatabaseFile != "").
		WithTag("feature_flags", featureFlags.Flags()).
		Info("starting laguz server")

	ready.Store(true)
	lhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(lhttp.HandleWithCORS(&service),
			lhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)

	stopAutosave()
	wg.Wait()
}

func parseBounds(min, max string) (spatial.AABB, error) {
	minVec, err := parseVector(min)
	if err != nil {
		return spatial.AABB{}, errors.New("invalid world min").Wrap(err)
	}

	maxVec, err := parseVector(max)
	if err != nil {
		return spatial.AABB{}, errors.New("invalid world max").Wrap(err)
	}

	bounds := spatial.AABB{Min: minVec, Max: maxVec}
	if !bounds.IsValid() {
		return spatial.AABB{}, errors.New("world min is greater than world max").
			WithTag("min", min).
			WithTag("max", max)
	}
	return bounds, nil
}

func parseVector(s string) (spatial.Vector3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return spatial.Vector3{}, errors.New("vector must have 3 comma separated components").
			WithTag("value", s)
	}

	var components [3]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return spatial.Vector3{}, errors.New("invalid vector component").
				WithTag("value", s).
				Wrap(err)
		}
		components[i] = float32(f)
	}

	return spatial.Vector3{X: components[0], Y: components[1], Z: components[2]}, nil
}
