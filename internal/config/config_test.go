package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func validBase() *Config {
	cfg := Defaults()
	cfg.Instagram.Username = "bridgeuser"
	cfg.Instagram.Password = "secret"
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.OwnerChatID = 42
	return cfg
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validBase()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MissingToken(t *testing.T) {
	cfg := validBase()
	cfg.Telegram.Token = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty telegram token")
	}
}

func TestValidate_MissingOwner(t *testing.T) {
	cfg := validBase()
	cfg.Telegram.OwnerChatID = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for ownerChatId=0")
	}
}

func TestValidate_PollInterval_TooLow(t *testing.T) {
	cfg := validBase()
	cfg.Bridge.PollIntervalSeconds = 1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for pollIntervalSeconds=1")
	}
}

func TestValidate_RetryBounds(t *testing.T) {
	cfg := validBase()
	cfg.Bridge.MaxRetries = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxRetries=0")
	}

	cfg = validBase()
	cfg.Bridge.MaxRetries = 101
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxRetries=101")
	}

	cfg = validBase()
	cfg.Bridge.MaxRetries = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxRetries=1 should be valid: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validBase()
	cfg.LogLevel = "loud"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

// --- Load ---

func TestLoad_JSON_WithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_IG_PASSWORD", "hunter2")

	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"instagram": {"username": "bob", "password": "${TEST_IG_PASSWORD}"},
		"telegram": {"token": "${TEST_TG_TOKEN:-fallback-token}", "ownerChatId": 7}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Instagram.Password != "hunter2" {
		t.Errorf("password = %q, want hunter2", cfg.Instagram.Password)
	}
	if cfg.Telegram.Token != "fallback-token" {
		t.Errorf("token = %q, want fallback-token", cfg.Telegram.Token)
	}
	if cfg.Bridge.PollIntervalSeconds != 30 {
		t.Errorf("pollIntervalSeconds = %d, want default 30", cfg.Bridge.PollIntervalSeconds)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
instagram:
  username: bob
  password: pw
telegram:
  token: 123:abc
  ownerChatId: 7
bridge:
  allowedSenders: "alice, bob"
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	allow := cfg.Bridge.AllowedSenders.AllowSet()
	if len(allow) != 2 {
		t.Fatalf("allow set = %v, want 2 entries", allow)
	}
	if _, ok := allow["bob"]; !ok {
		t.Error("expected bob in allow set")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- SenderList ---

func TestSenderList_CommaString(t *testing.T) {
	var cfg Config
	raw := []byte(`{"bridge": {"allowedSenders": "alice,@bob , carol"}}`)
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatal(err)
	}
	allow := cfg.Bridge.AllowedSenders.AllowSet()
	for _, want := range []string{"alice", "bob", "carol"} {
		if _, ok := allow[want]; !ok {
			t.Errorf("expected %q in allow set %v", want, allow)
		}
	}
}

func TestSenderList_EmptyAfterTrim_AllowsAll(t *testing.T) {
	list := SenderList{"  ", "", " @ "}
	if set := list.AllowSet(); set != nil {
		t.Errorf("trim-to-empty list should mean allow all, got %v", set)
	}
}

func TestSenderList_Nil_AllowsAll(t *testing.T) {
	var list SenderList
	if set := list.AllowSet(); set != nil {
		t.Errorf("absent list should mean allow all, got %v", set)
	}
}

// --- path accessors ---

func TestGetSetByPath(t *testing.T) {
	cfg := validBase()

	if err := SetByPath(cfg, "bridge.pollIntervalSeconds", "45"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.Bridge.PollIntervalSeconds != 45 {
		t.Errorf("pollIntervalSeconds = %d, want 45", cfg.Bridge.PollIntervalSeconds)
	}

	val, err := GetByPath(cfg, "bridge.pollIntervalSeconds")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if n, ok := val.(float64); !ok || n != 45 {
		t.Errorf("GetByPath = %v, want 45", val)
	}

	if _, err := GetByPath(cfg, "bridge.nope"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := validBase()
	out := Sanitize(cfg)
	if out.Instagram.Password == cfg.Instagram.Password {
		t.Error("password should be masked")
	}
	if out.Telegram.Token == cfg.Telegram.Token {
		t.Error("token should be masked")
	}
	// Original must be untouched.
	if cfg.Instagram.Password != "secret" {
		t.Error("Sanitize mutated the original config")
	}
}
