package config

import (
	"fmt"
	"strings"
	"time"

	libconfig "chargecore/libs/config"
)

// Config defines the central system configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"CS_HTTP_PORT"`
	} `yaml:"http"`
	WebSocket struct {
		WriteTimeout time.Duration `yaml:"writeTimeout" env:"CS_WS_WRITE_TIMEOUT"`
		ReadTimeout  time.Duration `yaml:"readTimeout" env:"CS_WS_READ_TIMEOUT"`
	} `yaml:"websocket"`
	Protocol struct {
		HeartbeatInterval   time.Duration `yaml:"heartbeatInterval" env:"CS_HEARTBEAT_INTERVAL"`
		CallTimeout         time.Duration `yaml:"callTimeout" env:"CS_CALL_TIMEOUT"`
		ConfigFollowUpDelay time.Duration `yaml:"configFollowUpDelay" env:"CS_CONFIG_FOLLOWUP_DELAY"`
	} `yaml:"protocol"`
	ControlPlane struct {
		Secret string `yaml:"secret" env:"CS_INTERNAL_SECRET"`
	} `yaml:"controlPlane"`
	Billing struct {
		EventsURL string `yaml:"eventsUrl" env:"BILLING_EVENTS_URL"`
		Secret    string `yaml:"secret" env:"BILLING_SECRET"`
	} `yaml:"billing"`
	LogPipeline struct {
		Dir           string        `yaml:"dir" env:"CS_LOG_DIR"`
		SinkURL       string        `yaml:"sinkUrl" env:"CS_LOG_SINK_URL"`
		Mode          string        `yaml:"mode" env:"CS_LOG_MODE"`
		FlushInterval time.Duration `yaml:"flushInterval" env:"CS_LOG_FLUSH_INTERVAL"`
		BatchSize     int           `yaml:"batchSize" env:"CS_LOG_BATCH_SIZE"`
		MaxBacklog    int           `yaml:"maxBacklog" env:"CS_LOG_MAX_BACKLOG"`
	} `yaml:"logPipeline"`
	Bridge struct {
		URL            string        `yaml:"url" env:"CS_BRIDGE_URL"`
		Secret         string        `yaml:"secret" env:"CS_BRIDGE_SECRET"`
		Channels       []string      `yaml:"channels" env:"CS_BRIDGE_CHANNELS"`
		ReconnectDelay time.Duration `yaml:"reconnectDelay" env:"CS_BRIDGE_RECONNECT_DELAY"`
		PingInterval   time.Duration `yaml:"pingInterval" env:"CS_BRIDGE_PING_INTERVAL"`
	} `yaml:"bridge"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
	} `yaml:"redis"`
}

// Load uses the shared config loader and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "9000"
	}
	if cfg.LogPipeline.Dir == "" {
		cfg.LogPipeline.Dir = "logs"
	}
	return cfg, nil
}

// HTTPAddress returns the :port style listen address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "9000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// WriteTimeout returns the websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	if c.WebSocket.WriteTimeout <= 0 {
		return 15 * time.Second
	}
	return c.WebSocket.WriteTimeout
}

// ReadTimeout returns the websocket read deadline window.
func (c *Config) ReadTimeout() time.Duration {
	if c.WebSocket.ReadTimeout <= 0 {
		return 5 * time.Minute
	}
	return c.WebSocket.ReadTimeout
}

// HeartbeatInterval returns the interval advertised in BootNotification
// replies.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.Protocol.HeartbeatInterval <= 0 {
		return 30 * time.Second
	}
	return c.Protocol.HeartbeatInterval
}

// CallTimeout returns the pending-call timeout.
func (c *Config) CallTimeout() time.Duration {
	if c.Protocol.CallTimeout <= 0 {
		return 30 * time.Second
	}
	return c.Protocol.CallTimeout
}

// ConfigFollowUpDelay returns the delay before the post-boot GetConfiguration.
func (c *Config) ConfigFollowUpDelay() time.Duration {
	if c.Protocol.ConfigFollowUpDelay <= 0 {
		return 2 * time.Second
	}
	return c.Protocol.ConfigFollowUpDelay
}
