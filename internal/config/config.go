package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Assistant names used as keys across the config sections.
const (
	AssistantYouTube  = "youtube"
	AssistantChrome   = "chrome"
	AssistantLinkedIn = "linkedin"
	AssistantCalendar = "calendar"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig   BasicConfig               `json:"basic_config"`
	HuggingFace   HuggingFaceConfig         `json:"huggingface"`
	Pinecone      PineconeConfig            `json:"pinecone"`
	Providers     map[string]ProviderConfig `json:"providers"`
	AgentProvider string                    `json:"agent_provider"`
	Google        GoogleConfig              `json:"google"`
	Databases     map[string]DatabaseConfig `json:"databases"`
	Redis         RedisConfig               `json:"redis"`
	Search        SearchConfig              `json:"search"`
	Setup         SetupConfig               `json:"setup"`
}

type BasicConfig struct {
	ServerAddress  string `json:"server_address"`
	AppURL         string `json:"app_url"`
	SimulationMode bool   `json:"simulation_mode"`
	EnforceSetup   bool   `json:"enforce_setup"`
	RequestTimeout int    `json:"request_timeout_seconds"`
	// 0 keeps exchanges forever
	HistoryRetentionDays int `json:"history_retention_days"`
}

type HuggingFaceConfig struct {
	BaseURL        string            `json:"base_url"`
	APIKey         string            `json:"api_key"`
	EmbeddingModel string            `json:"embedding_model"`
	Models         map[string]string `json:"models"`
}

type PineconeConfig struct {
	APIKey  string                 `json:"api_key"`
	Indexes map[string]IndexConfig `json:"indexes"`
}

type IndexConfig struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Namespace string `json:"namespace"`
	TopK      int    `json:"top_k"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type GoogleConfig struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURL  string   `json:"redirect_url"`
	Scopes       []string `json:"scopes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type SearchConfig struct {
	GoogleAPIKey         string `json:"google_api_key"`
	GoogleSearchEngineID string `json:"google_search_engine_id"`
}

type SetupConfig struct {
	RequiredEnv []string `json:"required_env"`
}

// DefaultRequiredEnv lists the variables the setup check reports on.
var DefaultRequiredEnv = []string{
	"PINECONE_API_KEY",
	"HF_API_KEY",
	"OPENAI_API_KEY",
	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"APP_URL",
}

// Default returns a configuration populated with the stock models and indexes.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:  ":8090",
			RequestTimeout: 60,
		},
		HuggingFace: HuggingFaceConfig{
			BaseURL:        "https://api-inference.huggingface.co",
			EmbeddingModel: "sentence-transformers/all-MiniLM-L6-v2",
			Models: map[string]string{
				AssistantYouTube:  "Vishal3041/falcon_finetuned_llm",
				AssistantChrome:   "Vishal3041/TransNormerLLM_finetuned",
				AssistantLinkedIn: "HarshGahlaut/gpt-neo-linkedin",
				AssistantCalendar: "HarshGahlaut/openELM-calender",
			},
		},
		Pinecone: PineconeConfig{
			Indexes: map[string]IndexConfig{
				AssistantYouTube: {Name: "youtube-data-index", TopK: 3},
				AssistantChrome:  {Name: "chrome-history-index", TopK: 5},
			},
		},
		Providers: map[string]ProviderConfig{
			"openai": {Model: "gpt-4o"},
		},
		AgentProvider: "openai",
		Google: GoogleConfig{
			Scopes: []string{"https://www.googleapis.com/auth/calendar"},
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "./data/assistanthub.db"},
		},
		Setup: SetupConfig{
			RequiredEnv: DefaultRequiredEnv,
		},
	}
}

// Load reads configuration from the provided path (defaults to config.json) on top of Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	cfg := Default()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	if sqliteCfg, ok := cfg.Databases["sqlite3"]; ok && sqliteCfg.DSN != "" && sqliteCfg.DSN != ":memory:" && !filepath.IsAbs(sqliteCfg.DSN) {
		sqliteCfg.DSN = filepath.Join(filepath.Dir(absPath), sqliteCfg.DSN)
		cfg.Databases["sqlite3"] = sqliteCfg
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and deployment settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("HF_API_KEY"); ok {
		c.HuggingFace.APIKey = v
	}
	if v, ok := get("PINECONE_API_KEY"); ok {
		c.Pinecone.APIKey = v
	}
	for env, provider := range map[string]string{
		"OPENAI_API_KEY":    "openai",
		"ANTHROPIC_API_KEY": "claude",
		"GEMINI_API_KEY":    "gemini",
	} {
		if v, ok := get(env); ok {
			if c.Providers == nil {
				c.Providers = make(map[string]ProviderConfig)
			}
			p := c.Providers[provider]
			p.APIKey = v
			c.Providers[provider] = p
		}
	}
	if v, ok := get("GOOGLE_CLIENT_ID"); ok {
		c.Google.ClientID = v
	}
	if v, ok := get("GOOGLE_CLIENT_SECRET"); ok {
		c.Google.ClientSecret = v
	}
	if v, ok := get("APP_URL"); ok {
		c.BasicConfig.AppURL = strings.TrimRight(v, "/")
	}
	if v, ok := get("ASSISTANTHUB_SIMULATION"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.BasicConfig.SimulationMode = b
		}
	}
}

// ModelFor returns the inference model path configured for an assistant.
func (c *Config) ModelFor(assistant string) string {
	return c.HuggingFace.Models[assistant]
}

// AgentProviderConfig returns the provider config backing the calendar agent.
func (c *Config) AgentProviderConfig() (string, ProviderConfig, bool) {
	name := c.AgentProvider
	if name == "" {
		name = "openai"
	}
	p, ok := c.Providers[name]
	if !ok || p.APIKey == "" {
		return name, p, false
	}
	return name, p, true
}
