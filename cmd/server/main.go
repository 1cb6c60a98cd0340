package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-tenant-auth/audit"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/auth/federation"
	"github.com/jrsteele09/go-tenant-auth/cache"
	"github.com/jrsteele09/go-tenant-auth/events"
	"github.com/jrsteele09/go-tenant-auth/internal/config"
	"github.com/jrsteele09/go-tenant-auth/internal/logger"
	"github.com/jrsteele09/go-tenant-auth/internal/redis"
	"github.com/jrsteele09/go-tenant-auth/isolation"
	"github.com/jrsteele09/go-tenant-auth/lockout"
	"github.com/jrsteele09/go-tenant-auth/server"
	"github.com/jrsteele09/go-tenant-auth/store"
	"github.com/jrsteele09/go-tenant-auth/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := config.Load(ctx)
	if err != nil {
		return err
	}
	logr := logger.New(logger.Options{
		Level:   c.GetLogLevel(),
		Pretty:  c.GetLogPretty(),
		Service: c.GetAppName(),
	})
	log.Logger = logr

	displayAppname(c.GetAppName())

	exemptions := c.GetExemptions()
	scoper := isolation.NewScoper(
		isolation.WithTenantColumn(c.GetTenantColumn()),
		isolation.WithExemptTables(exemptions.Tables...),
		isolation.WithExemptStatements(exemptions.Statements...),
		isolation.WithLogger(logr),
	)

	st, err := store.Open(ctx, store.Config{Driver: c.GetDatabaseDriver(), DSN: c.GetDatabaseDSN()}, scoper, logr)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	if err := server.InitialiseSystem(ctx, c, st.Tenants(), st.Users(), st.Settings(), logr); err != nil {
		return err
	}

	lockStore, profileCache, closeRedis, err := backends(ctx, c, logr)
	if err != nil {
		return err
	}
	defer closeRedis()

	bus := events.NewBus(events.WithLogger(logr))

	guard, err := lockout.NewGuard(lockStore,
		lockout.WithMaxAttempts(c.GetMaxLoginAttempts()),
		lockout.WithLockDuration(c.GetLockDuration()),
		lockout.WithPublisher(bus),
		lockout.WithLogger(logr),
	)
	if err != nil {
		return err
	}
	bus.SubscribeInline(guard.Handle, events.LoginFailed, events.LoginSucceeded)

	recorder, err := audit.NewRecorder(st.LoginLogs(), audit.WithLogger(logr))
	if err != nil {
		return err
	}
	bus.Subscribe(recorder.Handle, audit.RecordedTypes...)

	signer, err := token.NewHMACSigner(c.GetSigningSecret())
	if err != nil {
		return err
	}
	tokens, err := token.New(signer,
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
		token.WithIssuer(c.GetIssuer()),
		token.WithClockSkew(c.GetClockSkew()),
		token.WithMaxSessions(c.GetMaxSessions()),
		token.WithPublisher(bus),
		token.WithLogger(logr),
	)
	if err != nil {
		return err
	}

	strategies, err := loginStrategies(c, st.Users())
	if err != nil {
		return err
	}
	registry, err := auth.NewRegistry(strategies...)
	if err != nil {
		return err
	}
	dispatcher, err := auth.NewDispatcher(registry, st.Tenants(), st.Users(), tokens,
		auth.WithLockChecker(guard),
		auth.WithPublisher(bus),
		auth.WithLogger(logr),
	)
	if err != nil {
		return err
	}
	accounts, err := auth.NewAccountService(st.Users(), tokens,
		auth.WithProfileCache(profileCache, c.GetProfileCacheTTL()),
		auth.WithUnlocker(guard),
		auth.WithAccountPublisher(bus),
		auth.WithAccountLogger(logr),
	)
	if err != nil {
		return err
	}
	bus.SubscribeInline(accounts.InvalidateProfile,
		events.PasswordChanged, events.AccountLocked, events.AccountUnlocked, events.LoginSucceeded)

	bus.Start(ctx)
	defer bus.Close()
	go tokens.RunJanitor(ctx, c.GetSessionJanitorInterval())

	srv, err := server.New(dispatcher, accounts, tokens,
		server.WithEnv(c.GetEnv()),
		server.WithLogger(logr),
		server.WithLoginLogs(st.LoginLogs()),
		server.WithHealthCheck(st),
		server.WithTrustedProxies(c.GetTrustedProxies()...),
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(httpServer) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// backends picks Redis for lockout counters and the profile cache when
// REDIS_ADDR is set, and in-process stores otherwise.
func backends(ctx context.Context, c config.Config, logr zerolog.Logger) (lockout.Store, cache.Cache, func(), error) {
	if c.GetRedisAddr() == "" {
		logr.Info().Msg("Using in-memory lockout counters and profile cache")
		return lockout.NewMemoryStore(time.Now), cache.NewMemoryCache(time.Now), func() {}, nil
	}
	client, err := redis.Connect(ctx, redis.Config{Addr: c.GetRedisAddr(), DB: c.GetRedisDB()})
	if err != nil {
		return nil, nil, nil, err
	}
	logr.Info().Str("addr", c.GetRedisAddr()).Msg("Using Redis for lockout counters and profile cache")
	return lockout.NewRedisStore(client), cache.NewRedisCache(client, "tenant-auth:"), func() { _ = client.Close() }, nil
}

func loginStrategies(c config.Config, userRepo *store.UserRepo) ([]auth.LoginStrategy, error) {
	strategies := []auth.LoginStrategy{auth.NewPasswordStrategy(userRepo)}
	timeout := auth.WithVerifierTimeout(c.GetVerifierTimeout())

	if iam := c.GetIAM(); iam.Enabled() {
		v, err := federation.NewOIDCVerifier(federation.OIDCConfig{
			IssuerURL:    iam.IssuerURL,
			ClientID:     iam.ClientID,
			ClientSecret: iam.ClientSecret,
			RedirectURL:  iam.RedirectURL,
		})
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, auth.NewIAMStrategy(v, userRepo, timeout))
	}

	if o := c.GetOAuth2(); o.Enabled() {
		v, err := federation.NewOAuth2Verifier(federation.OAuth2Config{
			AuthURL:      o.AuthURL,
			TokenURL:     o.TokenURL,
			UserInfoURL:  o.UserInfoURL,
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			RedirectURL:  o.RedirectURL,
			Scopes:       o.ScopeList(),
		})
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, auth.NewOAuth2Strategy(v, userRepo, timeout))
	}
	return strategies, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
