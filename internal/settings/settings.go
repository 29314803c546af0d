package settings

import (
	"strings"

	"FeedPress/internal/config"
	"FeedPress/internal/ports"
)

// Static serves site settings from the loaded configuration.
type Static struct {
	autoCategory bool
	aiRewrite    bool
	indexing     bool
	baseURL      string
	articlePath  string
	rules        []ports.TextRule
}

var _ ports.Settings = (*Static)(nil)

// NewStatic snapshots the relevant configuration sections.
func NewStatic(cfg config.Config) *Static {
	indexing := cfg.Indexing.IsEnabled() && (cfg.Indexing.APIKey != "" || cfg.Indexing.CredentialsFile != "")
	return &Static{
		autoCategory: cfg.Features.AutoCategoryEnabled(),
		aiRewrite:    cfg.Features.AIRewriteEnabled(),
		indexing:     indexing,
		baseURL:      strings.TrimRight(cfg.Site.BaseURL, "/"),
		articlePath:  cfg.Site.ArticlePath,
		rules:        append([]ports.TextRule(nil), cfg.Rules...),
	}
}

func (s *Static) AutoCategoryEnabled() bool { return s.autoCategory }

func (s *Static) AIRewriteEnabled() bool { return s.aiRewrite }

func (s *Static) IndexingEnabled() bool { return s.indexing }

func (s *Static) SiteBaseURL() string { return s.baseURL }

// ArticleURL builds the public URL of an article from its slug.
func (s *Static) ArticleURL(slug string) string {
	path := s.articlePath
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return s.baseURL + path + slug
}

func (s *Static) TextRules() []ports.TextRule {
	return append([]ports.TextRule(nil), s.rules...)
}
