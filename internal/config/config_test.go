package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// inTempDir runs the test from an empty directory so no config file is found
// unless the test writes one.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func writeConfig(t *testing.T, dir, env, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config", "config."+env+".yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" || cfg.PingPeriod != 54*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RateLimit != 50 || cfg.RateInterval != time.Second || cfg.SendBuffer != 32 {
		t.Errorf("relay limits = %+v", cfg)
	}
	if cfg.Secret == "" {
		t.Error("no ephemeral secret generated")
	}
}

func TestLoad_File(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv("CONFIG_ENV", "test")
	writeConfig(t, dir, "test", "mode: debug\nport: 9000\nsecret: s3cret\nrate_limit: 5\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "debug" || cfg.Port != 9000 || cfg.Secret != "s3cret" || cfg.RateLimit != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadClient_DefaultICEServer(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := LoadClient([]string{"--name", "dave", "--room", "party"})
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Name != "dave" || cfg.Room != "party" {
		t.Errorf("cfg = %+v", cfg)
	}
	servers := cfg.WebRTC()
	if len(servers) != 1 || servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("ice servers = %+v", servers)
	}
}

func TestLoadClient_EnvAndFlagPriority(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("VOICE_NAME", "from-env")
	t.Setenv("VOICE_RTP_IN", "127.0.0.1:5004")

	cfg, err := LoadClient([]string{"--name", "from-flag"})
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Name != "from-flag" {
		t.Errorf("name = %q, want flag value", cfg.Name)
	}
	if cfg.RTPIn != "127.0.0.1:5004" {
		t.Errorf("rtp_in = %q, want env value", cfg.RTPIn)
	}
}

func TestLoadClient_ICEServersFromFile(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv("CONFIG_ENV", "test")
	writeConfig(t, dir, "test", `
ice_servers:
  - urls: ["turn:turn.example.org:3478"]
    username: u
    credential: p
`)
	cfg, err := LoadClient(nil)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	s := cfg.WebRTC()
	if len(s) != 1 || s[0].Username != "u" || s[0].Credential != "p" {
		t.Errorf("ice servers = %+v", s)
	}
}

func TestClientConfig_Validate(t *testing.T) {
	cfg := ClientConfig{Server: "ws://x"}
	if err := cfg.Validate(); !errors.Is(err, ErrNoICEServers) {
		t.Errorf("empty ice servers: err = %v", err)
	}
	cfg.ICEServers = []ICEServer{{URLs: []string{"http://nope"}}}
	if err := cfg.Validate(); err == nil {
		t.Error("http url accepted")
	}
	cfg.ICEServers = []ICEServer{{URLs: []string{"stun:stun.example.org"}}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config: %v", err)
	}
}
