package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"devsync/internal/api"
	"devsync/internal/auth"
	"devsync/internal/config"
	"devsync/internal/coordinator"
	"devsync/internal/directory"
	"devsync/internal/discovery"
	"devsync/internal/mirror"
	"devsync/internal/ws"
)

const (
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator",
		Long: `Run the coordinator HTTP server.

Participants connect to /ws. The room API lives under /api. When Redis is
configured, every room event is mirrored to Redis and /observe/{roomId} streams
a room read-only. When a database is configured, rooms must exist in the
directory before they can be joined.

Example:
  devsync serve --config devsync.yaml
  REDIS_ADDR=localhost:6379 devsync serve -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), rootOpts.Config, rootOpts.Log)
		},
	}
}

func wsOptions(cfg config.Config) ws.Options {
	return ws.Options{
		WriteWait:       cfg.WS.WriteWait,
		PongWait:        cfg.WS.PongWait,
		PingPeriod:      cfg.WS.PingPeriod,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		SendBuffer:      cfg.WS.SendBuffer,
		JoinTimeout:     cfg.JoinTimeout,
		AllowedOrigins:  cfg.AllowedOrigins,
	}
}

// connectWithRetry retries op with exponential backoff until it succeeds,
// connectTimeout passes, or ctx ends.
func connectWithRetry(ctx context.Context, log *zap.Logger, target string, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectTimeout
	return backoff.RetryNotify(func() error { return op(ctx) }, backoff.WithContext(b, ctx),
		func(err error, wait time.Duration) {
			log.Warn("connect failed, retrying", zap.String("target", target), zap.Duration("wait", wait), zap.Error(err))
		})
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	var (
		coordOpts []coordinator.Option
		rdb       *redis.Client
		pub       *mirror.Publisher
		verifier  *auth.Verifier
	)

	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		err := connectWithRetry(ctx, log, "redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		if err != nil {
			return err
		}
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		pub = mirror.NewPublisher(rdb, cfg.Redis.ChannelPrefix, cfg.Redis.Buffer, log.Named("mirror"))
		coordOpts = append(coordOpts, coordinator.WithSink(pub))
	}

	var (
		dir   directory.Directory = directory.NewMemory()
		hopts []ws.HandlerOption
	)
	if cfg.Database.URL != "" {
		var pg *directory.Postgres
		err := connectWithRetry(ctx, log, "postgres", func(ctx context.Context) error {
			var err error
			pg, err = directory.Connect(ctx, cfg.Database.URL)
			return err
		})
		if err != nil {
			return err
		}
		defer pg.Close()
		log.Info("connected to postgres")
		dir = pg
		hopts = append(hopts, ws.WithRoomChecker(pg))
	}

	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.Auth.JWTSecret)
		hopts = append(hopts, ws.WithVerifier(verifier))
	} else {
		log.Warn("token checks disabled; set auth.jwt_secret to require tokens")
	}

	hub := coordinator.NewHub(coordinator.New(log.Named("coordinator"), coordOpts...), log.Named("hub"))
	wsOpts := wsOptions(cfg)
	handler := ws.NewHandler(hub, wsOpts, log.Named("ws"), hopts...)

	router := mux.NewRouter()
	router.Handle("/ws", handler)
	if rdb != nil {
		spectator := ws.NewSpectator(rdb, cfg.Redis.ChannelPrefix, wsOpts, log.Named("spectator"))
		router.Handle("/observe/{roomId}", auth.Middleware(verifier, func(w http.ResponseWriter, err error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})(spectator))
	}
	api.New(dir, hub, verifier, log.Named("api")).Routes(router)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	port, err := cfg.Port()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	if pub != nil {
		g.Go(func() error { return pub.Run(ctx) })
	}
	if cfg.MDNS.Enabled {
		g.Go(func() error {
			return discovery.Advertise(ctx, cfg.MDNS.Instance, cfg.MDNS.Service, port, Version, log.Named("mdns"))
		})
	}
	g.Go(func() error {
		log.Info("coordinator listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(sctx)
		// WebSocket sessions are hijacked, so Shutdown does not wait for them.
		<-hub.Done()
		handler.Wait()
		log.Info("coordinator stopped")
		return err
	})
	return g.Wait()
}
