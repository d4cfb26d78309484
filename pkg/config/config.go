package config

import (
	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// DB
	PGBookingDSN string `envconfig:"PG_BOOKING_DSN" required:"true"`
	// JWT
	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	JWTExpireMin int    `envconfig:"JWT_EXPIRE_MIN" default:"60"`
	// RabbitMQ
	RabbitURL        string `envconfig:"RABBIT_URL" required:"true"`
	TrackingExchange string `envconfig:"TRACKING_EXCHANGE" default:"tracking.exchange"`
	// Network
	TrackingHTTPAddr string `envconfig:"TRACKING_HTTP_ADDR" default:":8086"`
	// Tracking policy
	DefaultSpeedKmh float64 `envconfig:"TRACKING_DEFAULT_SPEED_KMH" default:"40"`
	HistoryLimit    int     `envconfig:"TRACKING_HISTORY_LIMIT" default:"100"`
	WatcherQueue    int     `envconfig:"TRACKING_WATCHER_QUEUE" default:"16"`
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
