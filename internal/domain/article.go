package domain

import "time"

// ArticleStatus is the publication status of an article.
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePublished ArticleStatus = "published"
)

// Article is the subset of the CRUD layer's article entity the pipeline reads and writes.
type Article struct {
	ID             string
	Slug           string
	Title          string
	Content        string
	SEOTitle       string
	SEODescription string
	ImageURL       string
	CategoryID     string
	AuthorID       string
	FeedID         string
	SourceURL      string
	Status         ArticleStatus
	PublishedAt    *time.Time
	CreatedAt      time.Time
}

// Category is an article category with its description used in classification prompts.
type Category struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Active      bool   `yaml:"active"`
}

// Classification is the category chosen for a candidate and how it was chosen.
type Classification struct {
	Category   Category
	Confidence float64
	Strategy   string
}
