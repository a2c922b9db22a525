// Package iamcontainer is the composition root for the identity & session
// bounded context: it wires the durable/ephemeral stores into the
// credential, session, OAuth and CSRF engines, and exposes the handler and
// middleware cmd/ needs to mount the HTTP surface.
package iamcontainer

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/meridianid/authd/pkg/config"
	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/iam/auth/authapi"
	"github.com/meridianid/authd/pkg/iam/auth/authinfra"
	"github.com/meridianid/authd/pkg/iam/auth/credentialsrv"
	"github.com/meridianid/authd/pkg/iam/auth/csrfsrv"
	"github.com/meridianid/authd/pkg/iam/auth/oauthsrv"
	"github.com/meridianid/authd/pkg/iam/auth/sessionsrv"
	"github.com/meridianid/authd/pkg/iam/auth/usercache"
	"github.com/meridianid/authd/pkg/jobx"
	"github.com/meridianid/authd/pkg/jobx/jobxredis"
	"github.com/meridianid/authd/pkg/logx"
	"github.com/meridianid/authd/pkg/notifx"
	"github.com/meridianid/authd/pkg/notifx/notifxconsole"
	"github.com/meridianid/authd/pkg/notifx/notifxses"
)

// Deps are the external dependencies this bounded context requires. No
// hidden globals: everything the engines need comes through here.
type Deps struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Cfg   *config.Config

	// SESClient is only consulted when Cfg.Notifx.Provider == "ses"; leave
	// nil for the console provider used in development.
	SESClient *ses.Client
}

// Container is the public surface of the IAM module: the engines other
// bounded contexts may depend on through interfaces, plus the HTTP handler
// and middleware cmd/ mounts.
type Container struct {
	Credentials *credentialsrv.Service
	Sessions    *sessionsrv.Service
	OAuth       *oauthsrv.Service
	CSRF        *csrfsrv.Service
	UserCache   *usercache.Service

	Tokens auth.TokenService

	Handler        *authapi.Handler
	AuthMiddleware *auth.TokenMiddleware

	jobxClient *jobx.Client
	sweeper    *authinfra.Sweeper
}

// New builds the entire IAM dependency graph: repositories, ephemeral
// store, token service, engines, then the HTTP handler and background
// services. Order matters — each stage depends only on ones above it.
func New(deps Deps) *Container {
	logx.Info("iamcontainer: initializing")

	userRepo := authinfra.NewPostgresUserRepository(deps.DB)
	sessionRepo := authinfra.NewPostgresSessionRepository(deps.DB)
	oauthAccountRepo := authinfra.NewPostgresOAuthAccountRepository(deps.DB)
	verificationRepo := authinfra.NewPostgresEmailVerificationRepository(deps.DB)
	resetRepo := authinfra.NewPostgresPasswordResetRepository(deps.DB)
	profileRepo := authinfra.NewPostgresUserProfileRepository(deps.DB)

	store := authinfra.NewRedisStore(deps.Redis)

	tokens := auth.NewJWTService(
		deps.Cfg.JWT.AccessSecret,
		deps.Cfg.JWT.RefreshSecret,
		deps.Cfg.JWT.AccessTTL,
		deps.Cfg.JWT.RefreshTTL,
		deps.Cfg.JWT.Issuer,
		deps.Cfg.JWT.Audience,
	)

	audit := authinfra.NewLogxAuditService()

	jobQueue := jobxredis.NewRedisQueue(deps.Redis)
	jobxClient := jobx.NewClient(jobQueue,
		jobx.WithConcurrency(deps.Cfg.Jobx.Concurrency),
		jobx.WithQueues(deps.Cfg.Jobx.Queues...),
		jobx.WithPollInterval(deps.Cfg.Jobx.PollInterval),
		jobx.WithShutdownTimeout(deps.Cfg.Jobx.ShutdownTimeout),
		jobx.WithDequeueTimeout(deps.Cfg.Jobx.DequeueTimeout),
		jobx.WithDefaultRetryDelay(deps.Cfg.Jobx.DefaultRetryDelay),
	)
	authinfra.RegisterMailHandlers(jobxClient, newEmailSender(deps), deps.Cfg.Notifx.FromAddress, deps.Cfg.Server.FrontendBaseURL)
	mailer := authinfra.NewJobxMailer(jobxClient)

	userCache := usercache.NewService(userRepo, store, deps.Cfg.Security.UserCacheTTL)

	sessions := sessionsrv.NewService(sessionRepo, store, tokens, userCache, audit, sessionsrv.Config{
		SessionTTL:     deps.Cfg.Security.SessionTTL,
		SessionMetaTTL: deps.Cfg.Security.SessionMetaTTL,
		TokenFamilyTTL: deps.Cfg.Security.TokenFamilyTTL,
	})

	credentials := credentialsrv.NewService(userRepo, verificationRepo, resetRepo, store, sessions, userCache, audit, mailer, credentialsrv.Config{
		BcryptCost:       deps.Cfg.Security.BcryptCost,
		MaxLoginAttempts: deps.Cfg.Security.MaxLoginAttempts,
		LockoutDuration:  deps.Cfg.Security.LockoutDuration,
		LoginAttemptTTL:  deps.Cfg.Security.LoginAttemptTTL,
	})

	oauthSvc := oauthsrv.NewService(oauthProviders(deps), userRepo, oauthAccountRepo, profileRepo, store, sessions, audit, oauthsrv.Config{
		StateTTL: deps.Cfg.Security.OAuthStateTTL,
	})

	csrf := csrfsrv.NewService(store, deps.Cfg.Security.CSRFTokenTTL)

	authMW := auth.NewAuthMiddleware(tokens)
	handler := authapi.NewHandler(credentials, sessions, oauthSvc, csrf, userCache, deps.Cfg.Server.FrontendBaseURL)

	sweeper := authinfra.NewSweeper(sessionRepo, resetRepo, store, deps.Cfg.Security.SweepInterval)

	logx.Info("iamcontainer: initialized")

	return &Container{
		Credentials:    credentials,
		Sessions:       sessions,
		OAuth:          oauthSvc,
		CSRF:           csrf,
		UserCache:      userCache,
		Tokens:         tokens,
		Handler:        handler,
		AuthMiddleware: authMW,
		jobxClient:     jobxClient,
		sweeper:        sweeper,
	}
}

func newEmailSender(deps Deps) notifx.EmailSender {
	switch deps.Cfg.Notifx.Provider {
	case "ses":
		return notifx.NewClient(notifxses.NewSESProvider(deps.SESClient, deps.Cfg.Notifx.FromAddress))
	default:
		logx.Warn("iamcontainer: notifx provider is console, emails are logged rather than delivered")
		return notifx.NewClient(notifxconsole.NewConsoleProvider())
	}
}

func oauthProviders(deps Deps) map[iam.OAuthProvider]auth.OAuthProviderClient {
	providers := make(map[iam.OAuthProvider]auth.OAuthProviderClient)
	if deps.Cfg.OAuth.Google.ClientID != "" {
		providers[iam.OAuthProviderGoogle] = oauthsrv.NewGoogleProvider(
			deps.Cfg.OAuth.Google.ClientID, deps.Cfg.OAuth.Google.ClientSecret, deps.Cfg.OAuth.Google.RedirectURL,
		)
	}
	if deps.Cfg.OAuth.GitHub.ClientID != "" {
		providers[iam.OAuthProviderGitHub] = oauthsrv.NewGitHubProvider(
			deps.Cfg.OAuth.GitHub.ClientID, deps.Cfg.OAuth.GitHub.ClientSecret, deps.Cfg.OAuth.GitHub.RedirectURL,
		)
	}
	return providers
}

// StartBackgroundServices starts the session/reset sweeper and the jobx
// mail worker. Both run until ctx is cancelled.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	go c.sweeper.Run(ctx)
	go func() {
		if err := c.jobxClient.Start(ctx); err != nil {
			logx.WithError(err).Warn("iamcontainer: jobx client stopped")
		}
	}()
	logx.Info("iamcontainer: background services started")
}
