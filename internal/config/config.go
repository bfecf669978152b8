package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrNoICEServers = errors.New("ice_servers must list at least one STUN or TURN server")

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	Secret       string        `mapstructure:"secret"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

// ICEServer is one STUN or TURN entry.
type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type ClientConfig struct {
	Server     string        `mapstructure:"server"`
	Room       string        `mapstructure:"room"`
	Name       string        `mapstructure:"name"`
	RTPIn      string        `mapstructure:"rtp_in"`
	RTPOut     string        `mapstructure:"rtp_out"`
	LogLevel   string        `mapstructure:"log_level"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	ICEServers []ICEServer   `mapstructure:"ice_servers"`
}

// WebRTC converts the configured servers for pion.
func (c *ClientConfig) WebRTC() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

func (c *ClientConfig) Validate() error {
	if c.Server == "" {
		return errors.New("server is required")
	}
	if len(c.ICEServers) == 0 {
		return ErrNoICEServers
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d]: no urls", i)
		}
		for _, u := range s.URLs {
			if !strings.HasPrefix(u, "stun:") && !strings.HasPrefix(u, "turn:") && !strings.HasPrefix(u, "turns:") {
				return fmt.Errorf("ice_servers[%d]: unsupported url %q", i, u)
			}
		}
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return v
}

func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("rate_limit", 50)
	v.SetDefault("rate_interval", "1s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		// sessions then only survive until restart
		cfg.Secret = uuid.NewString()
		log.Warn().Str("module", "config").Msg("no secret configured, generated an ephemeral one")
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Msg("server config")
	return &cfg, nil
}

// LoadClient merges defaults, the config file, VOICE_* environment
// variables and command line flags, in increasing priority.
func LoadClient(args []string) (*ClientConfig, error) {
	fs := pflag.NewFlagSet("voice", pflag.ContinueOnError)
	fs.String("server", "ws://localhost:8080/api/ws/signal", "relay websocket url")
	fs.String("room", "", "room to join on connect")
	fs.String("name", "", "username")
	fs.String("rtp-in", "", "UDP address receiving local Opus RTP (empty: listen only)")
	fs.String("rtp-out", "", "UDP address remote audio is played out to (empty: discard)")
	fs.String("log-level", "info", "zerolog level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetDefault("ping_period", "30s")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for flag, key := range map[string]string{
		"server":    "server",
		"room":      "room",
		"name":      "name",
		"rtp-in":    "rtp_in",
		"rtp-out":   "rtp_out",
		"log-level": "log_level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
