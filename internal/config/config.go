package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appDirName  = "librarian"
	fileName    = "config.yml"
	envPrefix   = "LIBRARIAN_"
)

// Config is the full set of recognized settings. Every field is
// optional; an absent key keeps its default or falls back to
// auto-detection at the call site.
type Config struct {
	GitHub   GitHubConfig   `yaml:"github"`
	HF       HFConfig       `yaml:"hf"`
	Models   ModelsConfig   `yaml:"models"`
	Search   SearchConfig   `yaml:"search"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Headless HeadlessConfig `yaml:"headless"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

// GitHubConfig configures access to the GitHub archive/tags API.
type GitHubConfig struct {
	// Token raises the unauthenticated rate limit and is required once
	// a source's archive downloads start returning 403 with
	// x-ratelimit-remaining: 0.
	Token string `yaml:"token"`
}

// HFConfig configures access to Hugging Face for model downloads.
type HFConfig struct {
	Token string `yaml:"token"`
}

// ModelsConfig names the embedding, query-expansion, and rerank models.
type ModelsConfig struct {
	Embed  string `yaml:"embed"`
	Query  string `yaml:"query"`
	Rerank string `yaml:"rerank"`
}

// SearchConfig tunes when hybrid search treats a result as decisively
// strong rather than fusing it with the rest of the ranked list.
type SearchConfig struct {
	StrongScore float64 `yaml:"strongScore"`
	StrongGap   float64 `yaml:"strongGap"`
}

// ProxyConfig routes outbound source/network requests through an HTTP
// proxy.
type ProxyConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// HeadlessConfig controls the best-effort headless-browser fallback
// used when a crawled page looks sparse or script-rendered.
type HeadlessConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ChromePath string `yaml:"chromePath"`
	Proxy      string `yaml:"proxy"`
	Timeout    string `yaml:"timeout"`
}

// CrawlConfig tunes the web crawler.
type CrawlConfig struct {
	Concurrency         int  `yaml:"concurrency"`
	MinBodyChars        int  `yaml:"minBodyChars"`
	RequireCodeSnippets bool `yaml:"requireCodeSnippets"`
}

// IngestConfig tunes the GitHub sync orchestrator.
type IngestConfig struct {
	// MaxMajorVersions caps how many version series (besides the
	// default branch) a source's version plan tracks.
	MaxMajorVersions int `yaml:"maxMajorVersions"`
}

// NewConfig returns a Config populated with the library's defaults.
func NewConfig() *Config {
	return &Config{
		Search: SearchConfig{
			StrongScore: 0.75,
			StrongGap:   0.15,
		},
		Headless: HeadlessConfig{
			Enabled: true,
			Timeout: "20s",
		},
		Crawl: CrawlConfig{
			Concurrency:         5,
			MinBodyChars:        200,
			RequireCodeSnippets: false,
		},
		Ingest: IngestConfig{
			MaxMajorVersions: 3,
		},
	}
}

// GetConfigDir returns the directory holding config.yml. It honors
// LIBRARIAN_CONFIG_DIR before falling back to the per-OS user config
// directory (os.UserConfigDir, itself XDG_CONFIG_HOME-aware on Linux).
func GetConfigDir() string {
	if dir := os.Getenv(envPrefix + "CONFIG_DIR"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName, "config")
}

// GetConfigPath returns the path to config.yml.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), fileName)
}

// UserConfigExists reports whether config.yml exists.
func UserConfigExists() bool {
	return fileExists(GetConfigPath())
}

// GetCacheDir returns the directory holding the index DB, the
// per-library DB directory, and downloaded models. It honors
// LIBRARIAN_CACHE_DIR before falling back to the per-OS user cache
// directory.
func GetCacheDir() string {
	if dir := os.Getenv(envPrefix + "CACHE_DIR"); dir != "" {
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName, "cache")
}

// GetIndexDBPath returns the path to the index DB, honoring
// LIBRARIAN_DB_PATH.
func GetIndexDBPath() string {
	if path := os.Getenv(envPrefix + "DB_PATH"); path != "" {
		return path
	}
	return filepath.Join(GetCacheDir(), "index.db")
}

// GetLibraryDBDir returns the directory holding one SQLite file per
// library, honoring LIBRARIAN_LIBRARY_DB_DIR.
func GetLibraryDBDir() string {
	if dir := os.Getenv(envPrefix + "LIBRARY_DB_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(GetCacheDir(), "db")
}

// GetModelsDir returns the directory where downloaded embedding and
// expansion models are cached.
func GetModelsDir() string {
	return filepath.Join(GetCacheDir(), "models")
}

// Load reads config.yml (if present), applies environment overrides,
// and validates the result. Hardcoded defaults fill every key the file
// and environment leave unset.
func Load() (*Config, error) {
	cfg := NewConfig()

	if UserConfigExists() {
		if err := cfg.loadYAML(GetConfigPath()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", GetConfigPath(), err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML reads path and merges its non-zero values over c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.GitHub.Token != "" {
		c.GitHub.Token = other.GitHub.Token
	}
	if other.HF.Token != "" {
		c.HF.Token = other.HF.Token
	}

	if other.Models.Embed != "" {
		c.Models.Embed = other.Models.Embed
	}
	if other.Models.Query != "" {
		c.Models.Query = other.Models.Query
	}
	if other.Models.Rerank != "" {
		c.Models.Rerank = other.Models.Rerank
	}

	if other.Search.StrongScore != 0 {
		c.Search.StrongScore = other.Search.StrongScore
	}
	if other.Search.StrongGap != 0 {
		c.Search.StrongGap = other.Search.StrongGap
	}

	if other.Proxy.Endpoint != "" {
		c.Proxy.Endpoint = other.Proxy.Endpoint
	}

	if other.Headless.ChromePath != "" {
		c.Headless.ChromePath = other.Headless.ChromePath
	}
	if other.Headless.Proxy != "" {
		c.Headless.Proxy = other.Headless.Proxy
	}
	if other.Headless.Timeout != "" {
		c.Headless.Timeout = other.Headless.Timeout
	}
	// Enabled defaults to true; only a config file that sets any other
	// headless field is taken as evidence the section was present, so
	// an explicit `enabled: false` alongside it still takes effect.
	if other.Headless.ChromePath != "" || other.Headless.Proxy != "" || other.Headless.Timeout != "" {
		c.Headless.Enabled = other.Headless.Enabled
	}

	if other.Crawl.Concurrency != 0 {
		c.Crawl.Concurrency = other.Crawl.Concurrency
	}
	if other.Crawl.MinBodyChars != 0 {
		c.Crawl.MinBodyChars = other.Crawl.MinBodyChars
	}
	if other.Crawl.RequireCodeSnippets {
		c.Crawl.RequireCodeSnippets = true
	}

	if other.Ingest.MaxMajorVersions != 0 {
		c.Ingest.MaxMajorVersions = other.Ingest.MaxMajorVersions
	}
}

// applyEnvOverrides applies LIBRARIAN_* environment variable overrides,
// highest precedence. GITHUB_TOKEN is honored as a fallback for
// github.token since it's the convention most GitHub tooling expects.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv(envPrefix + "GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv(envPrefix + "HF_TOKEN"); v != "" {
		c.HF.Token = v
	}

	if v := os.Getenv(envPrefix + "EMBED_MODEL"); v != "" {
		c.Models.Embed = v
	}
	if v := os.Getenv(envPrefix + "QUERY_MODEL"); v != "" {
		c.Models.Query = v
	}
	if v := os.Getenv(envPrefix + "RERANK_MODEL"); v != "" {
		c.Models.Rerank = v
	}

	if v := os.Getenv(envPrefix + "PROXY"); v != "" {
		c.Proxy.Endpoint = v
	}

	if v := os.Getenv(envPrefix + "CRAWL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Crawl.Concurrency = n
		}
	}
}

// Validate returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.Search.StrongScore < 0 || c.Search.StrongScore > 1 {
		return fmt.Errorf("search.strongScore must be between 0 and 1, got %f", c.Search.StrongScore)
	}
	if c.Search.StrongGap < 0 || c.Search.StrongGap > 1 {
		return fmt.Errorf("search.strongGap must be between 0 and 1, got %f", c.Search.StrongGap)
	}
	if c.Crawl.Concurrency < 0 {
		return fmt.Errorf("crawl.concurrency must be non-negative, got %d", c.Crawl.Concurrency)
	}
	if c.Crawl.MinBodyChars < 0 {
		return fmt.Errorf("crawl.minBodyChars must be non-negative, got %d", c.Crawl.MinBodyChars)
	}
	if c.Ingest.MaxMajorVersions < 0 {
		return fmt.Errorf("ingest.maxMajorVersions must be non-negative, got %d", c.Ingest.MaxMajorVersions)
	}
	if c.Headless.Timeout != "" {
		if _, err := time.ParseDuration(c.Headless.Timeout); err != nil {
			return fmt.Errorf("headless.timeout must be a duration string (e.g. \"20s\"), got %q", c.Headless.Timeout)
		}
	}
	if c.Proxy.Endpoint != "" {
		if u, err := url.Parse(c.Proxy.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy.endpoint must be an absolute URL, got %q", c.Proxy.Endpoint)
		}
	}
	return nil
}

// WriteYAML writes the configuration to path, creating its parent
// directory if needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
