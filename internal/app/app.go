// Package app wires configuration, logging, storage and the HTTP and gRPC
// surfaces together and runs them until the process is told to stop.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/userapi/internal/apispec"
	"github.com/patric-chuzhbe/userapi/internal/auth"
	"github.com/patric-chuzhbe/userapi/internal/config"
	"github.com/patric-chuzhbe/userapi/internal/counter"
	"github.com/patric-chuzhbe/userapi/internal/db/jsondb"
	"github.com/patric-chuzhbe/userapi/internal/db/memorystorage"
	"github.com/patric-chuzhbe/userapi/internal/db/postgresdb"
	"github.com/patric-chuzhbe/userapi/internal/grpcserver"
	"github.com/patric-chuzhbe/userapi/internal/ipchecker"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/metrics"
	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/router"
	"github.com/patric-chuzhbe/userapi/internal/service"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

// ServiceName identifies the process in telemetry.
const ServiceName = "userapi"

// ServiceVersion is overridden at build time with -ldflags.
var ServiceVersion = "dev"

// systemd passes activated sockets starting at this descriptor.
const listenFDsStart = 3

type usersKeeper interface {
	ListUsers(ctx context.Context, limit int) ([]user.User, error)
	GetUserByID(ctx context.Context, id int64) (*user.User, bool, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	usersKeeper
	pinger
	Close() error
}

// App owns every long-lived component of the service.
type App struct {
	cfg          *config.Config
	db           storage
	metrics      *metrics.HTTPMetrics
	httpHandler  http.Handler
	grpcServer   *grpc.Server
	grpcListener net.Listener
}

// InitOption customizes New.
type InitOption func(*initOptions)

type initOptions struct {
	cfg *config.Config
}

// WithConfig makes New use cfg instead of reading flags, environment and files.
func WithConfig(cfg *config.Config) InitOption {
	return func(options *initOptions) {
		options.cfg = cfg
	}
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - building the HTTP router and the optional gRPC server
func New(optionsProto ...InitOption) (*App, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	var err error
	app := &App{cfg: options.cfg}

	if app.cfg == nil {
		app.cfg, err = config.New()
		if err != nil {
			return nil, err
		}
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	if _, err := apispec.Load(ctx); err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(ctx, app.cfg)
	if err != nil {
		return nil, err
	}

	signingKey, err := base64.URLEncoding.DecodeString(app.cfg.AuthSigningKey)
	if err != nil {
		return nil, app.abort(fmt.Errorf("in internal/app/app.go/New(): error while `base64.URLEncoding.DecodeString()` calling: %w", err))
	}
	authenticator := auth.New(app.cfg.AuthCookieName, signingKey)

	checker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, app.abort(err)
	}

	app.metrics, err = metrics.New(ctx, ServiceName, ServiceVersion)
	if err != nil {
		return nil, app.abort(err)
	}

	svc := service.New(app.db, counter.New())

	app.httpHandler = router.New(
		svc,
		authenticator,
		checker,
		app.metrics,
		app.cfg.CORSAllowedOrigins,
	)

	if app.cfg.GRPCRunAddr != "" {
		app.grpcServer, app.grpcListener, err = grpcserver.NewGRPCServer(
			app.cfg.GRPCRunAddr,
			grpcserver.NewUserHandler(svc),
			authenticator,
		)
		if err != nil {
			return nil, app.abort(fmt.Errorf("in internal/app/app.go/New(): error while `grpcserver.NewGRPCServer()` calling: %w", err))
		}
	}

	return app, nil
}

// Run binds the HTTP listener and serves until SIGINT or SIGTERM.
// A bind failure is returned as is and is meant to be fatal.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := listen(a.cfg.RunAddr)
	if err != nil {
		if a.grpcListener != nil {
			a.grpcListener.Close()
		}
		return errors.Join(fmt.Errorf("failed to bind %s: %w", a.cfg.RunAddr, err), a.closeResources())
	}

	return a.Serve(ctx, lis)
}

// Serve runs the HTTP server on lis, and the gRPC server if configured,
// until ctx is done or one of them fails. Shutdown is bounded by the
// configured timeout; storage and telemetry are released afterwards.
func (a *App) Serve(ctx context.Context, lis net.Listener) error {
	server := &http.Server{
		Handler:           a.httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Log.Infow("server running", "addr", lis.Addr().String())

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if a.grpcServer != nil {
		logger.Log.Infow("gRPC server running", "addr", a.grpcListener.Addr().String())
		g.Go(func() error {
			if err := a.grpcServer.Serve(a.grpcListener); err != nil {
				return fmt.Errorf("gRPC server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		logger.Log.Infoln("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if a.grpcServer != nil {
			stopGRPC(shutdownCtx, a.grpcServer)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	err := g.Wait()

	return errors.Join(err, a.closeResources())
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func (a *App) closeResources() error {
	var errs []error

	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *App) abort(err error) error {
	if closeErr := a.closeResources(); closeErr != nil {
		logger.Log.Debugln("Error calling the `a.closeResources()`: ", zap.Error(closeErr))
	}
	return err
}

func stopGRPC(ctx context.Context, server *grpc.Server) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		server.Stop()
	}
}

// listen returns the socket handed over by systemd socket activation
// when the process was started that way, and binds addr otherwise.
func listen(addr string) (net.Listener, error) {
	if lis, ok, err := activatedListener(); ok || err != nil {
		return lis, err
	}

	return net.Listen("tcp", addr)
}

func activatedListener() (net.Listener, bool, error) {
	pid, err := strconv.Atoi(os.Getenv("LISTEN_PID"))
	if err != nil || pid != os.Getpid() {
		return nil, false, nil
	}

	fds, err := strconv.Atoi(os.Getenv("LISTEN_FDS"))
	if err != nil || fds < 1 {
		return nil, false, nil
	}

	file := os.NewFile(uintptr(listenFDsStart), "LISTEN_FD_3")
	defer file.Close()

	lis, err := net.FileListener(file)
	if err != nil {
		return nil, true, fmt.Errorf("in internal/app/app.go/activatedListener(): error while `net.FileListener()` calling: %w", err)
	}

	logger.Log.Infoln("using socket passed by the service manager")

	return lis, true, nil
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(ctx context.Context, cfg *config.Config) (storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			ctx,
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.DBQueryTimeout,
			postgresdb.WithPool(cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime),
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
