// Root composition root. Owns shared infrastructure (DB, Redis) and
// composes the bounded-context containers built on top of it.
package main

import (
	"context"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/meridianid/authd/pkg/config"
	"github.com/meridianid/authd/pkg/iam/iamcontainer"
	"github.com/meridianid/authd/pkg/logx"
)

// Container holds shared infrastructure and the composed module
// containers. This is the only place that knows about every module.
type Container struct {
	Config *config.Config

	DB    *sqlx.DB
	Redis *redis.Client

	IAM *iamcontainer.Container
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("initializing application container")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure — durable store, ephemeral store
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	db, err := sqlx.Connect("postgres", c.Config.Database.DSN)
	if err != nil {
		logx.Fatalf("failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	logx.Info("database connected")

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("failed to connect to redis: %v (redis is required)", err)
	}
	logx.Info("redis connected")
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	c.IAM = iamcontainer.New(iamcontainer.Deps{
		DB:        c.DB,
		Redis:     c.Redis,
		Cfg:       c.Config,
		SESClient: c.newSESClientIfConfigured(),
	})
}

// newSESClientIfConfigured loads the AWS SDK default config and builds an
// SES client only when the notification provider actually needs one;
// skipping it keeps local/dev runs from requiring AWS credentials.
func (c *Container) newSESClientIfConfigured() *ses.Client {
	if c.Config.Notifx.Provider != "ses" {
		return nil
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), awsConfig.WithRegion(c.Config.Notifx.AWSRegion))
	if err != nil {
		logx.Fatalf("unable to load AWS SDK config: %v", err)
	}
	return ses.NewFromConfig(awsCfg)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("starting background services")
	c.IAM.StartBackgroundServices(ctx)
}

func (c *Container) Cleanup() {
	logx.Info("cleaning up resources")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("error closing database: %v", err)
		} else {
			logx.Info("database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("error closing redis: %v", err)
		} else {
			logx.Info("redis connection closed")
		}
	}

	logx.Info("cleanup complete")
}
