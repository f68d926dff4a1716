package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:7000"
backends:
  - type: memory
    retention: 90s
  - type: text
    dir: /var/lib/tau/text
collect:
  targets:
    - host: switch1
      community: public
      interval: 15s
      signals:
        rpm: 1.3.6.1.4.1.42.1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:7000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if len(cfg.Backends) != 2 {
		t.Fatalf("Backends = %v", cfg.Backends)
	}
	if cfg.Backends[0].Retention.Duration() != 90*time.Second {
		t.Errorf("retention = %v", cfg.Backends[0].Retention.Duration())
	}
	if cfg.Backends[1].Dir != "/var/lib/tau/text" {
		t.Errorf("dir = %q", cfg.Backends[1].Dir)
	}
	if len(cfg.Collect.Targets) != 1 {
		t.Fatalf("Targets = %v", cfg.Collect.Targets)
	}
	target := cfg.Collect.Targets[0]
	if target.Host != "switch1" || target.Signals["rpm"] != "1.3.6.1.4.1.42.1" {
		t.Errorf("target = %+v", target)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TAU_DATA", "/data/tau")
	path := writeConfig(t, `
backends:
  - type: binary
    dir: ${TAU_DATA}/binary
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backends[0].Dir != "/data/tau/binary" {
		t.Errorf("dir = %q", cfg.Backends[0].Dir)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
backends:
  - type: memory
    retention: soon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("invalid duration should be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file should be an error")
	}
}

func TestLoadDefaultsBackends(t *testing.T) {
	path := writeConfig(t, `listen: "127.0.0.1:7000"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Backends) != 1 || cfg.Backends[0].Type != "memory" {
		t.Fatalf("Backends = %v", cfg.Backends)
	}
}

func TestBuildSingleMember(t *testing.T) {
	cfg := &Config{Backends: []BackendConfig{{Type: "memory"}}}
	b, closeStore, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer closeStore()
	if b == nil {
		t.Fatal("Build returned nil backend")
	}
	if err := b.Set("rpm", time.Now(), 8.0); err != nil {
		t.Fatalf("Set: %v", err)
	}
}

func TestBuildComposite(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Backends: []BackendConfig{
		{Type: "memory", Retention: Duration(time.Minute)},
		{Type: "text", Dir: filepath.Join(dir, "text")},
		{Type: "binary", Dir: filepath.Join(dir, "binary")},
	}}
	b, closeStore, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer closeStore()

	if err := b.Set("rpm", time.Now(), 8.0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := b.Get("rpm", nil, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || got[0].Value != 8.0 {
		t.Fatalf("Get = %v", got)
	}

	// The durable members leave files behind.
	if _, err := os.Stat(filepath.Join(dir, "text", "rpm.csv")); err != nil {
		t.Errorf("text log missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "binary", "rpm.TIME")); err != nil {
		t.Errorf("binary log missing: %v", err)
	}
}

func TestBuildBadger(t *testing.T) {
	cfg := &Config{Backends: []BackendConfig{
		{Type: "badger", Dir: t.TempDir()},
	}}
	b, closeStore, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := b.Set("rpm", time.Now(), 8.0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := closeStore(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBuildRejectsUnknownType(t *testing.T) {
	cfg := &Config{Backends: []BackendConfig{{Type: "etcd"}}}
	if _, _, err := cfg.Build(); err == nil {
		t.Fatal("unknown backend type should be rejected")
	}
}

func TestBuildRequiresDir(t *testing.T) {
	for _, typ := range []string{"text", "binary", "badger"} {
		cfg := &Config{Backends: []BackendConfig{{Type: typ}}}
		if _, _, err := cfg.Build(); err == nil {
			t.Errorf("%s backend without dir should be rejected", typ)
		}
	}
}

func TestCollectorTargetsDefaults(t *testing.T) {
	cfg := &Config{Collect: CollectConfig{Targets: []TargetConfig{
		{Host: "switch1", Community: "public", Signals: map[string]string{"rpm": "1.3"}},
	}}}
	targets := cfg.CollectorTargets()
	if len(targets) != 1 {
		t.Fatalf("targets = %v", targets)
	}
	if targets[0].Port == 0 {
		t.Error("port default not applied")
	}
	if targets[0].Interval <= 0 {
		t.Error("interval default not applied")
	}
}
