package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bridge.
type Config struct {
	Instagram InstagramConfig `json:"instagram" yaml:"instagram"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Bridge    BridgeConfig    `json:"bridge" yaml:"bridge"`
	LogLevel  string          `json:"logLevel" yaml:"logLevel"`
}

type InstagramConfig struct {
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	TOTPSeed    string `json:"totpSeed,omitempty" yaml:"totpSeed,omitempty"`
	SessionPath string `json:"sessionPath" yaml:"sessionPath"`
	UserAgent   string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	Proxy       string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	ProfileDir  string `json:"profileDir,omitempty" yaml:"profileDir,omitempty"` // Chrome profile for browser login
}

type TelegramConfig struct {
	Token       string `json:"token" yaml:"token"`
	OwnerChatID int64  `json:"ownerChatId" yaml:"ownerChatId"`
}

type BridgeConfig struct {
	PollIntervalSeconds    int        `json:"pollIntervalSeconds" yaml:"pollIntervalSeconds"`
	DownloadTimeoutSeconds int        `json:"downloadTimeoutSeconds" yaml:"downloadTimeoutSeconds"`
	MaxFileSizeMB          int        `json:"maxFileSizeMb" yaml:"maxFileSizeMb"`
	ThreadLimit            int        `json:"threadLimit" yaml:"threadLimit"`
	MessagesPerThread      int        `json:"messagesPerThread" yaml:"messagesPerThread"`
	MaxRetries             int        `json:"maxRetries" yaml:"maxRetries"`
	RetryBaseDelaySeconds  int        `json:"retryBaseDelaySeconds" yaml:"retryBaseDelaySeconds"`
	AllowedSenders         SenderList `json:"allowedSenders,omitempty" yaml:"allowedSenders,omitempty"`
	DBPath                 string     `json:"dbPath" yaml:"dbPath"`
	TempDir                string     `json:"tempDir" yaml:"tempDir"`
}

// SenderList is a []string that unmarshals from either a list or a single
// comma-separated string ("alice, bob"), as the allow-list is commonly set
// through one environment variable.
type SenderList []string

func (s *SenderList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*s = ss
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*s = strings.Split(one, ",")
	return nil
}

func (s *SenderList) UnmarshalYAML(value *yaml.Node) error {
	var ss []string
	if err := value.Decode(&ss); err == nil {
		*s = ss
		return nil
	}
	var one string
	if err := value.Decode(&one); err != nil {
		return err
	}
	*s = strings.Split(one, ",")
	return nil
}

// AllowSet normalizes the allow-list into a set of trimmed usernames.
// nil means allow all; a configured list that trims to empty also means
// allow all (degenerate input, not an error).
func (s SenderList) AllowSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, u := range s {
		u = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(u), "@"))
		if u != "" {
			set[u] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// DefaultConfigDir returns the default config directory (~/.igbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".igbridge"
	}
	return filepath.Join(home, ".igbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file (JSON, or YAML when the extension is .yaml/.yml),
// expands environment variables, fills defaults, and validates.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Instagram.SessionPath = ExpandPath(cfg.Instagram.SessionPath)
	cfg.Instagram.ProfileDir = ExpandPath(cfg.Instagram.ProfileDir)
	cfg.Bridge.DBPath = ExpandPath(cfg.Bridge.DBPath)
	cfg.Bridge.TempDir = ExpandPath(cfg.Bridge.TempDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Bridge.PollIntervalSeconds < 5 {
		errs = append(errs, "bridge.pollIntervalSeconds must be >= 5")
	}
	if cfg.Bridge.DownloadTimeoutSeconds < 1 {
		errs = append(errs, "bridge.downloadTimeoutSeconds must be >= 1")
	}
	if cfg.Bridge.MaxFileSizeMB < 1 || cfg.Bridge.MaxFileSizeMB > 2000 {
		errs = append(errs, "bridge.maxFileSizeMb must be between 1 and 2000")
	}
	if cfg.Bridge.MaxRetries < 1 || cfg.Bridge.MaxRetries > 100 {
		errs = append(errs, "bridge.maxRetries must be between 1 and 100")
	}
	if cfg.Bridge.RetryBaseDelaySeconds < 1 {
		errs = append(errs, "bridge.retryBaseDelaySeconds must be >= 1")
	}
	if cfg.Bridge.ThreadLimit < 1 || cfg.Bridge.ThreadLimit > 100 {
		errs = append(errs, "bridge.threadLimit must be between 1 and 100")
	}
	if cfg.Bridge.MessagesPerThread < 1 || cfg.Bridge.MessagesPerThread > 50 {
		errs = append(errs, "bridge.messagesPerThread must be between 1 and 50")
	}
	if cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required")
	}
	if cfg.Telegram.OwnerChatID == 0 {
		errs = append(errs, "telegram.ownerChatId is required")
	}
	if cfg.Instagram.Username == "" {
		errs = append(errs, "instagram.username is required")
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "logLevel must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Sanitize returns a copy of the config with sensitive values masked, for
// the config list command.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Instagram.Password = mask(cfg.Instagram.Password)
	out.Instagram.TOTPSeed = mask(cfg.Instagram.TOTPSeed)
	out.Telegram.Token = mask(cfg.Telegram.Token)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// GetByPath retrieves a config value by dot-notation path
// (e.g. "bridge.pollIntervalSeconds").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
		current, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
	}
	return current, nil
}

// SetByPath sets a config value by dot-notation path. String values are
// coerced to bool/int/float where they parse as such.
func SetByPath(cfg *Config, path, value string) error {
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			return fmt.Errorf("cannot traverse into %q", key)
		}
		parent = child
	}
	parent[parts[len(parts)-1]] = parseValue(value)

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func parseValue(s string) any {
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
