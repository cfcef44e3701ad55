package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type APIConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// relay transport
	HeloDomain       string        `envconfig:"RELAY_HELO_DOMAIN" default:"localhost"`
	RelayDialTimeout time.Duration `envconfig:"RELAY_DIAL_TIMEOUT" default:"25s"`
	RelayIOTimeout   time.Duration `envconfig:"RELAY_IO_TIMEOUT" default:"30s"`

	// webhook transport
	WebhookTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"30s"`

	// pacing across a run (0 disables)
	SendRPS   float64 `envconfig:"SEND_RPS" default:"0"`
	SendBurst int     `envconfig:"SEND_BURST" default:"10"`

	// batch sizing overrides (0 keeps orchestrator defaults)
	ControlledBatchSize int           `envconfig:"CONTROLLED_BATCH_SIZE" default:"0"`
	MaxBatchSize        int           `envconfig:"MAX_BATCH_SIZE" default:"0"`
	ControlledDelay     time.Duration `envconfig:"CONTROLLED_DELAY" default:"0"`

	// DB pool
	DBMaxConns        int32         `envconfig:"DB_POOL_MAX_CONNS" default:"0"`
	DBMinConns        int32         `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBMaxConnLifetime time.Duration `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"0"`
	DBMaxConnIdleTime time.Duration `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"0"`

	// AWS / SQS (optional: enables async dispatch)
	AWSRegion          string `envconfig:"AWS_REGION"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type WorkerConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"600"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"2"`

	// relay transport
	HeloDomain       string        `envconfig:"RELAY_HELO_DOMAIN" default:"localhost"`
	RelayDialTimeout time.Duration `envconfig:"RELAY_DIAL_TIMEOUT" default:"25s"`
	RelayIOTimeout   time.Duration `envconfig:"RELAY_IO_TIMEOUT" default:"30s"`

	// webhook transport
	WebhookTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"30s"`

	// pacing across a run (0 disables)
	SendRPS   float64 `envconfig:"SEND_RPS" default:"0"`
	SendBurst int     `envconfig:"SEND_BURST" default:"10"`

	ControlledBatchSize int           `envconfig:"CONTROLLED_BATCH_SIZE" default:"0"`
	MaxBatchSize        int           `envconfig:"MAX_BATCH_SIZE" default:"0"`
	ControlledDelay     time.Duration `envconfig:"CONTROLLED_DELAY" default:"0"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
