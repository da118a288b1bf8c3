package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/slatecast/slatecast/pkg/config"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Broadcast BroadcastConfig
	Capture   CaptureConfig
	Outputs   OutputsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type BroadcastConfig struct {
	// Per-subscriber queue depth. A subscriber that falls this far
	// behind starts losing its oldest undelivered events.
	Buffer int
}

type CaptureConfig struct {
	FPS          int           `mapstructure:"fps"`
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	StopPoll     time.Duration `mapstructure:"stop_poll"`
	StopDeadline time.Duration `mapstructure:"stop_deadline"`
}

type OutputsConfig struct {
	RecordDir string `mapstructure:"record_dir"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 11451)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("broadcast.buffer", 64)
	v.SetDefault("capture.fps", 30)
	v.SetDefault("capture.width", 1920)
	v.SetDefault("capture.height", 1080)
	v.SetDefault("capture.stop_poll", "100ms")
	v.SetDefault("capture.stop_deadline", "5s")
	v.SetDefault("outputs.record_dir", "./recordings")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.host", "SLATECAST_HOST")
	v.BindEnv("server.port", "SLATECAST_PORT")
	v.BindEnv("outputs.record_dir", "SLATECAST_RECORD_DIR")
	v.BindEnv("log.level", "SLATECAST_LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Capture.StopPoll = parseDuration(v, "capture.stop_poll", 100*time.Millisecond)
	cfg.Capture.StopDeadline = parseDuration(v, "capture.stop_deadline", 5*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
