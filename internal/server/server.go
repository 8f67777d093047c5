package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/getactive/apiserver/config"
	"github.com/getactive/apiserver/internal/db"
	"github.com/getactive/apiserver/internal/handlers"
	"github.com/getactive/apiserver/internal/logging"
	"github.com/getactive/apiserver/internal/mail"
	"github.com/getactive/apiserver/internal/metrics"
	"github.com/getactive/apiserver/internal/mq"
	"github.com/getactive/apiserver/internal/services"
	"github.com/getactive/apiserver/internal/storage"
	"github.com/getactive/apiserver/internal/store"
	"github.com/getactive/apiserver/internal/token"
)

const (
	// requestTimeout must stay below writeTimeout so the 503 can still be written.
	requestTimeout  = 10 * time.Second
	writeTimeout    = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server wraps the HTTP server, router and the resources they own.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	worker     *mail.Worker
	logger     logrus.FieldLogger
}

// New connects to the database, broker and object storage and builds the router.
func New(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to open mq: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = broker.Close()
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	// A nil *Storage must not become a non-nil AvatarStore.
	var avatars services.AvatarStore
	if objects != nil {
		avatars = objects
	}

	codec, err := token.NewCodec(cfg.Auth.JWTSecret, logger)
	if err != nil {
		_ = broker.Close()
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	activityRepo := store.NewActivityRepository(dbConn)
	membershipRepo := store.NewMembershipRepository(dbConn)
	commentRepo := store.NewCommentRepository(dbConn)

	appMetrics := metrics.New()

	accounts := services.NewAccountStateMachine(userRepo, logger)
	authService := services.NewAuthService(services.AuthDeps{
		Users:    userRepo,
		Codec:    codec,
		Accounts: accounts,
		Hasher:   services.NewBcryptHasher(services.DefaultBcryptCost),
		Mail:     mail.NewPublisher(broker, cfg.Mail.Channel),
		Observer: appMetrics,
		Logger:   logger,
	}, cfg.Auth.TokenTTL, cfg.Auth.ConfirmationTTL)
	permissions := services.NewPermissionEvaluator(membershipRepo)
	activityService := services.NewActivityService(activityRepo, membershipRepo, commentRepo, permissions)
	userService := services.NewUserService(userRepo, avatars, logger)

	var worker *mail.Worker
	if broker.Inline() {
		worker = mail.NewWorker(broker, mail.NewMailer(cfg.Mail.SMTP, logger), cfg.Mail, logger)
	}

	authn := handlers.NewAuthenticator(authService, accounts, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		appMetrics.Middleware,
		middleware.Timeout(requestTimeout),
		authn.Authenticate,
	)
	router.Handle("/metrics", appMetrics.Handler())
	router.Route("/v1", func(r chi.Router) {
		r.Get("/health", handlers.Health(dbConn, logger))
		handlers.AuthRouter(r, handlers.NewAuthHandler(authService, cfg.Auth.ExposeConfirmationToken, logger))
		r.Route("/activities", func(r chi.Router) {
			handlers.ActivityRouter(r, handlers.NewActivityHandler(activityService, logger), authn.RequireVerified)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(
				r,
				handlers.NewUserHandler(userService, activityService, logger),
				authn.RequireAuth,
				authn.RequireVerified,
			)
		})
	})

	return &Server{
		httpServer: newHTTPServer(cfg.ServerPort, router),
		router:     router,
		db:         dbConn,
		broker:     broker,
		worker:     worker,
		logger:     logger,
	}, nil
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	if port == 0 {
		port = 8080
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP, and consumes verification mail when the broker is
// in-process, until ctx is cancelled. It then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.WithField("addr", s.httpServer.Addr).Info("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.worker != nil {
		g.Go(func() error {
			return s.worker.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		if closeErr := s.broker.Close(); closeErr != nil {
			s.logger.WithError(closeErr).Warn("failed to close mq")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
