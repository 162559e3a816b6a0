// Package app initializes and runs the BeeRich service.
// It configures logging, storage, sessions, and the HTTP and gRPC servers,
// and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/beerich/internal/auth"
	"github.com/patric-chuzhbe/beerich/internal/config"
	"github.com/patric-chuzhbe/beerich/internal/credentials"
	"github.com/patric-chuzhbe/beerich/internal/db/memorystorage"
	"github.com/patric-chuzhbe/beerich/internal/db/postgresdb"
	"github.com/patric-chuzhbe/beerich/internal/db/sqlitedb"
	"github.com/patric-chuzhbe/beerich/internal/grpcserver"
	"github.com/patric-chuzhbe/beerich/internal/guard"
	"github.com/patric-chuzhbe/beerich/internal/ipchecker"
	"github.com/patric-chuzhbe/beerich/internal/logger"
	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/revocationcleaner"
	"github.com/patric-chuzhbe/beerich/internal/router"
	"github.com/patric-chuzhbe/beerich/internal/service"
	"github.com/patric-chuzhbe/beerich/internal/user"
)

const shutdownTimeout = 10 * time.Second

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) (string, error)
	FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error)
	GetUserByID(ctx context.Context, userID string) (*user.User, bool, error)
}

type recordsKeeper interface {
	InsertRecord(ctx context.Context, rec *models.Record) error

	FindRecordByIDAndOwner(
		ctx context.Context,
		recordType models.RecordType,
		recordID, ownerID string,
	) (*models.Record, bool, error)

	UpdateRecordByIDAndOwner(
		ctx context.Context,
		recordType models.RecordType,
		recordID, ownerID string,
		patch models.RecordPatch,
	) (*models.Record, bool, error)

	DeleteRecordByIDAndOwner(
		ctx context.Context,
		recordType models.RecordType,
		recordID, ownerID string,
	) (bool, error)

	DeleteRecordsByIDsAndOwner(
		ctx context.Context,
		recordType models.RecordType,
		recordIDs []string,
		ownerID string,
	) (int64, error)

	ListRecordsByOwner(
		ctx context.Context,
		recordType models.RecordType,
		ownerID string,
		filter models.RecordFilter,
	) ([]models.Record, error)

	FindLatestRecordByOwner(
		ctx context.Context,
		recordType models.RecordType,
		ownerID string,
	) (*models.Record, bool, error)
}

type revocationKeeper interface {
	RevokeSession(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsSessionRevoked(ctx context.Context, tokenID string) (bool, error)
	PurgeExpiredRevocations(ctx context.Context, now time.Time) (int64, error)
}

type statsKeeper interface {
	GetNumberOfUsers(ctx context.Context) (int64, error)
	GetNumberOfRecords(ctx context.Context) (int64, error)
}

// Storage is what the service needs from a backend.
type Storage interface {
	userKeeper
	recordsKeeper
	revocationKeeper
	statsKeeper
	Ping(ctx context.Context) error
	Close() error
}

// App holds the configuration, storage, servers and background cleaner of the service.
type App struct {
	cfg         *config.Config
	db          Storage
	httpHandler http.Handler
	grpcServer  *grpc.Server
	cleaner     *revocationcleaner.RevocationCleaner
	stopCleaner context.CancelFunc
}

// New initializes an App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - starting the revocation cleaner
// - building the HTTP router and the gRPC server
func New(configOptions ...config.InitOption) (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New(configOptions...)
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = NewStorage(context.Background(), app.cfg)
	if err != nil {
		return nil, err
	}

	signingKey, err := app.cfg.SessionSecret()
	if err != nil {
		return nil, err
	}

	theAuth := auth.New(
		app.db,
		app.cfg.SessionCookieName,
		signingKey,
		app.cfg.SessionTTL,
		auth.WithSecureCookie(app.cfg.SessionCookieSecure),
	)

	verifier, err := credentials.New(app.db)
	if err != nil {
		return nil, err
	}

	ipChecker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	svc := service.New(app.db, guard.New(app.db))

	app.httpHandler = router.New(svc, verifier, theAuth, ipChecker)
	app.grpcServer = grpcserver.NewServer(
		grpcserver.NewBeeRichHandler(svc, verifier, theAuth),
		theAuth,
	)

	app.cleaner = revocationcleaner.New(app.db, app.cfg.RevocationPurgeInterval)
	cleanerRunCtx, stopCleaner := context.WithCancel(context.Background())
	app.stopCleaner = stopCleaner

	app.cleaner.Run(cleanerRunCtx)
	app.cleaner.ListenErrors(func(err error) {
		logger.Log.Debugln("Error passed from the `app.cleaner.ListenErrors()`:", zap.Error(err))
	})

	return app, nil
}

// Handler returns the HTTP handler of the service.
func (a *App) Handler() http.Handler {
	return a.httpHandler
}

// Run starts the HTTP and gRPC servers and blocks until a termination signal
// arrives or a server fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr, "GRPCAddr", a.cfg.GRPCAddr)

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcListener net.Listener
	if a.cfg.GRPCAddr != "" {
		var err error
		grpcListener, err = net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("in internal/app/app.go/Run(): error while `net.Listen()` calling: %w", err)
		}
	}

	serverErrCh := make(chan error, 2)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()
	if grpcListener != nil {
		go func() {
			serverErrCh <- a.grpcServer.Serve(grpcListener)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Stopping servers and exiting...")
		return a.shutdown(server)

	case err := <-serverErrCh:
		if shutdownErr := a.shutdown(server); shutdownErr != nil {
			logger.Log.Debugln("Error calling the `a.shutdown()`: ", zap.Error(shutdownErr))
		}
		return fmt.Errorf("server error: %w", err)
	}
}

func (a *App) shutdown(server *http.Server) error {
	a.stopCleaner()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	a.grpcServer.GracefulStop()

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage close error: %w", err))
	}

	return errors.Join(errs...)
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

// GetAvailableStorageType picks PostgreSQL when a DSN is configured, then a
// SQLite file, then memory.
func GetAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeSQLite
	}

	return models.StorageTypeMemory
}

// NewStorage opens the backend chosen by GetAvailableStorageType.
func NewStorage(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch GetAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		db, err := postgresdb.New(ctx, cfg.DatabaseDSN, cfg.DBConnectionTimeout)
		if err != nil {
			return nil, err
		}
		return db, nil

	case models.StorageTypeSQLite:
		db, err := sqlitedb.New(ctx, cfg.DBFileName, cfg.DBConnectionTimeout)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	return memorystorage.New()
}
