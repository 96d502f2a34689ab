package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,required=true"`
	GRPCPort       int    `env:"GRPC_PORT,required=true"`
	DebugPort      int    `env:"DEBUG_PORT"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	JWTSecret string `env:"JWT_SECRET,required=true"`
	JWTIssuer string `env:"JWT_ISSUER"`

	PushTimeout           time.Duration `env:"PUSH_TIMEOUT,default=2s"`
	ConnectionBufferSize  int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	MaxConnections        int           `env:"MAX_CONNECTIONS"`
	MaxConnectionsPerUser int           `env:"MAX_CONNECTIONS_PER_USER"`
	RegistryShards        int           `env:"REGISTRY_SHARDS,default=32"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongTimeout           time.Duration `env:"PONG_TIMEOUT,default=60s"`
	AllowedOrigins        string        `env:"ALLOWED_ORIGINS"`

	NumberOfWorkers      int           `env:"NUMBER_OF_WORKERS,required=true"`
	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=80"`

	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,required=true"`
	EnableModeration bool   `env:"ENABLE_MODERATION"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
	LimitMessages    *int   `env:"LIMIT_MESSAGES"`
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}

// Origins splits ALLOWED_ORIGINS on commas. An empty value allows any origin.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
