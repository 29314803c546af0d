package config

import (
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"FeedPress/internal/domain"
	"FeedPress/internal/ports"
)

const (
	defaultTimezone        = "UTC"
	configPathEnv          = "FEEDPRESS_CONFIG"
	databaseDSNEnv         = "DATABASE_DSN"
	openAIAPIKeyEnv        = "OPENAI_API_KEY"
	openAIModelEnv         = "OPENAI_MODEL"
	openAIBaseURLEnv       = "OPENAI_BASE_URL"
	indexingAPIKeyEnv      = "INDEXING_API_KEY"
	indexingCredentialsEnv = "INDEXING_CREDENTIALS_FILE"
	siteBaseURLEnv         = "SITE_BASE_URL"
	httpAddrEnv            = "FEEDPRESS_HTTP_ADDR"
	logLevelEnv            = "LOG_LEVEL"
)

// Queue backend names accepted in queue.backend.
const (
	BackendAuto     = "auto"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig     `yaml:"logging"`
	Database   DatabaseConfig    `yaml:"database"`
	Queue      QueueConfig       `yaml:"queue"`
	Scheduler  SchedulerConfig   `yaml:"scheduler"`
	Fetcher    FetcherConfig     `yaml:"fetcher"`
	Extractor  ExtractorConfig   `yaml:"extractor"`
	AI         AIConfig          `yaml:"ai"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Indexing   IndexingConfig    `yaml:"indexing"`
	Site       SiteConfig        `yaml:"site"`
	Features   FeatureConfig     `yaml:"features"`
	HTTP       HTTPConfig        `yaml:"http"`
	Rules      []ports.TextRule  `yaml:"rules"`
	Feeds      []FeedConfig      `yaml:"feeds"`
	Categories []domain.Category `yaml:"categories"`
}

// LoggingConfig selects log verbosity and output encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects in-memory stores.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// QueueConfig tunes the indexing queue.
type QueueConfig struct {
	Backend        string        `yaml:"backend"`
	BoltPath       string        `yaml:"boltPath"`
	MaxRetries     int           `yaml:"maxRetries"`
	RateLimitDelay time.Duration `yaml:"rateLimitDelay"`
	DrainInterval  time.Duration `yaml:"drainInterval"`
}

// SchedulerConfig defines when the periodic tasks run.
type SchedulerConfig struct {
	SweepInterval time.Duration  `yaml:"sweepInterval"`
	ResetInterval time.Duration  `yaml:"resetInterval"`
	Timezone      string         `yaml:"timezone"`
	location      *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// FetcherConfig configures feed and page retrieval.
type FetcherConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"userAgent"`
}

// ExtractorConfig configures image fallbacks.
type ExtractorConfig struct {
	PlaceholderImage  string `yaml:"placeholderImage"`
	FetchOriginalPage *bool  `yaml:"fetchOriginalPage"`
}

// FetchOriginal reports whether the linked article page may be fetched for an image.
func (e ExtractorConfig) FetchOriginal() bool { return boolValue(e.FetchOriginalPage, true) }

// AIConfig defines how to contact an OpenAI-compatible API.
type AIConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// ClassifierConfig carries the keyword dictionary keyed by category name.
type ClassifierConfig struct {
	Keywords map[string][]string `yaml:"keywords"`
}

// IndexingConfig wires the external indexing API.
type IndexingConfig struct {
	Enabled         *bool         `yaml:"enabled"`
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"apiKey"`
	CredentialsFile string        `yaml:"credentialsFile"`
	Timeout         time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether published articles are queued for indexing.
func (i IndexingConfig) IsEnabled() bool { return boolValue(i.Enabled, false) }

// SiteConfig describes where published articles live.
type SiteConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	ArticlePath string `yaml:"articlePath"`
}

// FeatureConfig holds site-wide feature flags.
type FeatureConfig struct {
	AutoCategory *bool `yaml:"autoCategory"`
	AIRewrite    *bool `yaml:"aiRewrite"`
}

// AutoCategoryEnabled reports the site-wide auto-category flag.
func (f FeatureConfig) AutoCategoryEnabled() bool { return boolValue(f.AutoCategory, true) }

// AIRewriteEnabled reports the site-wide AI rewrite flag.
func (f FeatureConfig) AIRewriteEnabled() bool { return boolValue(f.AIRewrite, false) }

func boolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// HTTPConfig configures the admin server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// FeedConfig seeds a feed source for the in-memory feed store.
type FeedConfig struct {
	ID               string              `yaml:"id"`
	Name             string              `yaml:"name"`
	URL              string              `yaml:"url"`
	Active           *bool               `yaml:"active"`
	AuthorID         string              `yaml:"authorId"`
	MinContentLength int                 `yaml:"minContentLength"`
	MaxPostsPerDay   int                 `yaml:"maxPostsPerDay"`
	Settings         domain.FeedSettings `yaml:"settings"`
}

// Source converts the seed entry into a feed source.
func (f FeedConfig) Source() domain.FeedSource {
	active := true
	if f.Active != nil {
		active = *f.Active
	}
	id := f.ID
	if id == "" {
		id = f.Name
	}
	return domain.FeedSource{
		ID:               id,
		Name:             f.Name,
		URL:              f.URL,
		Active:           active,
		AuthorID:         f.AuthorID,
		MinContentLength: f.MinContentLength,
		MaxPostsPerDay:   f.MaxPostsPerDay,
		Settings:         f.Settings,
	}
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// Parse decodes raw YAML on top of the defaults without consulting the environment.
func Parse(raw []byte) (Config, error) {
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, err
	}
	cfg := mergeConfig(defaultConfig(), fileCfg)
	cfg.bindTimezone()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.AI.APIKey = v
	}

	if v := os.Getenv(openAIModelEnv); v != "" {
		c.AI.Model = v
	}

	if v := os.Getenv(openAIBaseURLEnv); v != "" {
		c.AI.BaseURL = v
	}

	if v := os.Getenv(indexingAPIKeyEnv); v != "" {
		c.Indexing.APIKey = v
	}

	if v := os.Getenv(indexingCredentialsEnv); v != "" {
		c.Indexing.CredentialsFile = v
	}

	if v := os.Getenv(siteBaseURLEnv); v != "" {
		c.Site.BaseURL = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Queue.Backend != "" {
		base.Queue.Backend = override.Queue.Backend
	}
	if override.Queue.BoltPath != "" {
		base.Queue.BoltPath = override.Queue.BoltPath
	}
	if override.Queue.MaxRetries > 0 {
		base.Queue.MaxRetries = override.Queue.MaxRetries
	}
	if override.Queue.RateLimitDelay > 0 {
		base.Queue.RateLimitDelay = override.Queue.RateLimitDelay
	}
	if override.Queue.DrainInterval > 0 {
		base.Queue.DrainInterval = override.Queue.DrainInterval
	}

	if override.Scheduler.SweepInterval > 0 {
		base.Scheduler.SweepInterval = override.Scheduler.SweepInterval
	}
	if override.Scheduler.ResetInterval > 0 {
		base.Scheduler.ResetInterval = override.Scheduler.ResetInterval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Fetcher.Timeout > 0 {
		base.Fetcher.Timeout = override.Fetcher.Timeout
	}
	if override.Fetcher.UserAgent != "" {
		base.Fetcher.UserAgent = override.Fetcher.UserAgent
	}

	if override.Extractor.PlaceholderImage != "" {
		base.Extractor.PlaceholderImage = override.Extractor.PlaceholderImage
	}
	if override.Extractor.FetchOriginalPage != nil {
		base.Extractor.FetchOriginalPage = override.Extractor.FetchOriginalPage
	}

	if override.AI.BaseURL != "" {
		base.AI.BaseURL = override.AI.BaseURL
	}
	if override.AI.Model != "" {
		base.AI.Model = override.AI.Model
	}
	if override.AI.APIKey != "" {
		base.AI.APIKey = override.AI.APIKey
	}
	if override.AI.Timeout > 0 {
		base.AI.Timeout = override.AI.Timeout
	}

	if len(override.Classifier.Keywords) > 0 {
		base.Classifier.Keywords = override.Classifier.Keywords
	}

	if override.Indexing.Enabled != nil {
		base.Indexing.Enabled = override.Indexing.Enabled
	}
	if override.Indexing.Endpoint != "" {
		base.Indexing.Endpoint = override.Indexing.Endpoint
	}
	if override.Indexing.APIKey != "" {
		base.Indexing.APIKey = override.Indexing.APIKey
	}
	if override.Indexing.CredentialsFile != "" {
		base.Indexing.CredentialsFile = override.Indexing.CredentialsFile
	}
	if override.Indexing.Timeout > 0 {
		base.Indexing.Timeout = override.Indexing.Timeout
	}

	if override.Site.BaseURL != "" {
		base.Site.BaseURL = override.Site.BaseURL
	}
	if override.Site.ArticlePath != "" {
		base.Site.ArticlePath = override.Site.ArticlePath
	}

	if override.Features.AutoCategory != nil {
		base.Features.AutoCategory = override.Features.AutoCategory
	}
	if override.Features.AIRewrite != nil {
		base.Features.AIRewrite = override.Features.AIRewrite
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}

	if len(override.Rules) > 0 {
		base.Rules = override.Rules
	}
	if len(override.Feeds) > 0 {
		base.Feeds = override.Feeds
	}
	if len(override.Categories) > 0 {
		base.Categories = override.Categories
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Queue: QueueConfig{
			Backend:        BackendAuto,
			MaxRetries:     3,
			RateLimitDelay: time.Second,
			DrainInterval:  5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			SweepInterval: 30 * time.Minute,
			ResetInterval: time.Hour,
			Timezone:      defaultTimezone,
			location:      tz,
		},
		Fetcher: FetcherConfig{
			Timeout:   30 * time.Second,
			UserAgent: "FeedPress/1.0 (+feed ingestion)",
		},
		Extractor: ExtractorConfig{
			PlaceholderImage: "https://placehold.co/1200x630?text=No+Image",
		},
		AI: AIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Classifier: ClassifierConfig{Keywords: DefaultKeywords()},
		Indexing: IndexingConfig{
			Endpoint: "https://indexing.googleapis.com/v3/urlNotifications:publish",
			Timeout:  15 * time.Second,
		},
		Site: SiteConfig{
			BaseURL:     "http://localhost:8080",
			ArticlePath: "/articles/",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// DefaultKeywords is the built-in keyword dictionary for fallback classification.
func DefaultKeywords() map[string][]string {
	return map[string][]string{
		"technology":    {"technology", "software", "computer", "internet", "ai", "digital", "app", "smartphone", "startup", "cyber"},
		"sports":        {"sport", "sports", "football", "soccer", "basketball", "tennis", "match", "league", "tournament", "olympic"},
		"business":      {"business", "market", "economy", "company", "finance", "stock", "investment", "trade", "revenue", "bank"},
		"politics":      {"politics", "government", "election", "minister", "president", "parliament", "policy", "vote", "senate", "law"},
		"health":        {"health", "medical", "doctor", "hospital", "disease", "vaccine", "treatment", "patient", "medicine", "wellness"},
		"science":       {"science", "research", "study", "scientist", "space", "physics", "biology", "climate", "discovery", "nasa"},
		"entertainment": {"movie", "film", "music", "celebrity", "actor", "singer", "album", "concert", "television", "series"},
	}
}
