package domain

import "time"

// MediaRef is an image reference found in explicit feed metadata.
type MediaRef struct {
	URL    string
	Type   string
	Medium string
	Origin string
}

// RawItem is one feed entry as handed over by a shape adapter, before normalization.
type RawItem struct {
	Title     string
	Link      string
	Published *time.Time
	Encoded   string
	Content   string
	Summary   string
	Media     []MediaRef
}

// CandidateItem is a normalized feed entry, never persisted.
type CandidateItem struct {
	Title        string
	Body         string
	Link         string
	Published    *time.Time
	ImageURL     string
	HasRealImage bool
}
