package domain

import "time"

// MaxErrorLogEntries bounds the rolling error log kept on every feed source.
const MaxErrorLogEntries = 50

// RewriteStyle enumerates AI rewrite tones.
type RewriteStyle string

const (
	StyleProfessional RewriteStyle = "professional"
	StyleCasual       RewriteStyle = "casual"
	StyleFormal       RewriteStyle = "formal"
	StyleCreative     RewriteStyle = "creative"
)

// Valid reports whether the style is one of the known tones.
func (s RewriteStyle) Valid() bool {
	switch s {
	case StyleProfessional, StyleCasual, StyleFormal, StyleCreative:
		return true
	}
	return false
}

// FeedSettings is the per-feed behaviour bag configured by an operator.
type FeedSettings struct {
	AIRewrite         bool          `json:"aiRewrite" yaml:"aiRewrite"`
	RewriteStyle      RewriteStyle  `json:"rewriteStyle" yaml:"rewriteStyle"`
	IncludeSourceLink bool          `json:"includeSourceLink" yaml:"includeSourceLink"`
	AutoPublish       bool          `json:"autoPublish" yaml:"autoPublish"`
	PublishDelay      time.Duration `json:"publishDelay" yaml:"publishDelay"`
	AutoCategory      bool          `json:"autoCategory" yaml:"autoCategory"`
	RequireImage      bool          `json:"requireImage" yaml:"requireImage"`
}

// FeedLogEntry is one line of a feed's rolling error log.
type FeedLogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// FeedSource is a subscribed syndication feed with its runtime counters.
type FeedSource struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	URL              string         `json:"url"`
	Active           bool           `json:"active"`
	AuthorID         string         `json:"authorId"`
	MinContentLength int            `json:"minContentLength"`
	MaxPostsPerDay   int            `json:"maxPostsPerDay"`
	PostsToday       int            `json:"postsToday"`
	TotalPosts       int            `json:"totalPosts"`
	LastFetched      *time.Time     `json:"lastFetched,omitempty"`
	LastPublished    *time.Time     `json:"lastPublished,omitempty"`
	ErrorLog         []FeedLogEntry `json:"errorLog"`
	Settings         FeedSettings   `json:"settings"`
}

// LogError appends a message to the error log, dropping the oldest entries past the cap.
func (f *FeedSource) LogError(at time.Time, message string) {
	f.ErrorLog = append(f.ErrorLog, FeedLogEntry{At: at, Message: message})
	if over := len(f.ErrorLog) - MaxErrorLogEntries; over > 0 {
		f.ErrorLog = append([]FeedLogEntry(nil), f.ErrorLog[over:]...)
	}
}

// DayRolledOver reports whether now falls on a later calendar day (in loc) than the last publish.
// A feed that never published is treated as rolled over.
func (f *FeedSource) DayRolledOver(now time.Time, loc *time.Location) bool {
	if f.LastPublished == nil {
		return true
	}
	if loc == nil {
		loc = time.UTC
	}
	ly, lm, ld := f.LastPublished.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return ly != ny || lm != nm || ld != nd
}

// ResetDailyIfRolledOver zeroes the daily counter when the quota window changed.
// It returns true when the counter was modified.
func (f *FeedSource) ResetDailyIfRolledOver(now time.Time, loc *time.Location) bool {
	if !f.DayRolledOver(now, loc) || f.PostsToday == 0 {
		return false
	}
	f.PostsToday = 0
	return true
}

// QuotaReached reports whether today's publish budget is spent.
func (f *FeedSource) QuotaReached() bool {
	return f.MaxPostsPerDay > 0 && f.PostsToday >= f.MaxPostsPerDay
}

// RecordPublish bumps the counters after one article was persisted.
func (f *FeedSource) RecordPublish(at time.Time) {
	f.PostsToday++
	f.TotalPosts++
	f.LastPublished = &at
}
