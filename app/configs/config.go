package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/sjson"
)

type Config struct {
	AI        AIConfig        `json:"ai"`
	Store     StoreConfig     `json:"store"`
	Assistant AssistantConfig `json:"assistant"`
}

// AIConfig carries everything the language-model gateway needs. The
// assistant treats it as opaque resolved configuration.
type AIConfig struct {
	Provider       string            `json:"provider"`
	APIKey         string            `json:"api_key"`
	SecretKey      string            `json:"secret_key,omitempty"` // baidu only
	Model          string            `json:"model"`
	CustomEndpoint string            `json:"custom_endpoint,omitempty"`
	AccountID      string            `json:"account_id,omitempty"` // cloudflare only
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	CustomHeaders  map[string]string `json:"custom_headers,omitempty"`
}

type StoreConfig struct {
	DataDir string `json:"data_dir"`
}

type AssistantConfig struct {
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	UserID            string `json:"user_id"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

// SetKey patches a single dotted JSON path (e.g. "ai.model") in the
// config file, preserving unknown keys written by other revisions,
// then reloads the struct view.
func (m *Manager) SetKey(key string, value string) (Config, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Config{}, fmt.Errorf("config key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, err
		}
		raw, err = json.MarshalIndent(m.cfg, "", "  ")
		if err != nil {
			return Config{}, err
		}
	}

	patched, err := sjson.Set(string(raw), key, coerceValue(value))
	if err != nil {
		return Config{}, fmt.Errorf("set %s: %w", key, err)
	}

	var fileCfg Config
	if err := json.Unmarshal([]byte(patched), &fileCfg); err != nil {
		return Config{}, fmt.Errorf("config after set %s is invalid: %w", key, err)
	}
	applyDefaults(&fileCfg)
	m.cfg = fileCfg

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return Config{}, err
	}
	if err := os.WriteFile(m.path, []byte(patched), 0644); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

// coerceValue keeps numeric and boolean settings typed in the file.
func coerceValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	var n json.Number
	if err := json.Unmarshal([]byte(value), &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return value
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		AI: AIConfig{
			Provider:    "groq",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Store: StoreConfig{
			DataDir: filepath.Join("output", "db"),
		},
		Assistant: AssistantConfig{
			RequestTimeoutSec: 60,
			UserID:            "local_user",
		},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.AI.Provider) == "" {
		cfg.AI.Provider = "groq"
	}
	if cfg.AI.Temperature <= 0 || cfg.AI.Temperature > 2 {
		cfg.AI.Temperature = 0.7
	}
	if cfg.AI.MaxTokens <= 0 {
		cfg.AI.MaxTokens = 2048
	}
	if strings.TrimSpace(cfg.Store.DataDir) == "" {
		cfg.Store.DataDir = filepath.Join("output", "db")
	}
	if cfg.Assistant.RequestTimeoutSec <= 0 {
		cfg.Assistant.RequestTimeoutSec = 60
	}
	if strings.TrimSpace(cfg.Assistant.UserID) == "" {
		cfg.Assistant.UserID = "local_user"
	}
}
