package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"FeedPress/internal/domain"
)

// Document roots recognised by the shape adapters.
const (
	rootRSS     = "rss"
	rootRDF     = "rdf"
	rootChannel = "channel"
	rootAtom    = "feed"
)

var errUnknownShape = errors.New("unrecognised feed document")

// shapeAdapter turns one known document shape into raw items.
type shapeAdapter interface {
	name() string
	accepts(root string) bool
	parse(body []byte) ([]domain.RawItem, error)
}

// adapters are tried in this order; the first non-empty item list wins.
func adapters() []shapeAdapter {
	return []shapeAdapter{rssChannel{}, bareChannel{}, atomFeed{}}
}

// parseShapes sniffs the document root and runs the matching adapters.
func parseShapes(body []byte) ([]domain.RawItem, error) {
	root, err := sniffRoot(body)
	if err != nil {
		return nil, err
	}

	var (
		parsed  bool
		lastErr error
	)
	for _, adapter := range adapters() {
		if !adapter.accepts(root) {
			continue
		}
		items, err := adapter.parse(body)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", adapter.name(), err)
			continue
		}
		parsed = true
		if len(items) > 0 {
			return items, nil
		}
	}

	if parsed {
		return []domain.RawItem{}, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: root <%s>", errUnknownShape, root)
}

// sniffRoot returns the lower-cased local name of the first element.
func sniffRoot(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errUnknownShape
			}
			return "", fmt.Errorf("read document root: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return strings.ToLower(start.Name.Local), nil
		}
	}
}

// rssChannel handles rss/channel/item and RDF documents.
type rssChannel struct{}

func (rssChannel) name() string { return "rss" }

func (rssChannel) accepts(root string) bool { return root == rootRSS || root == rootRDF }

func (rssChannel) parse(body []byte) ([]domain.RawItem, error) {
	return parseWithGofeed(body, false)
}

// bareChannel handles a channel element published without the rss wrapper.
type bareChannel struct{}

func (bareChannel) name() string { return "channel" }

func (bareChannel) accepts(root string) bool { return root == rootChannel }

func (bareChannel) parse(body []byte) ([]domain.RawItem, error) {
	idx := bytes.Index(bytes.ToLower(body), []byte("<channel"))
	if idx < 0 {
		return nil, errUnknownShape
	}
	var wrapped bytes.Buffer
	wrapped.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0">`)
	wrapped.Write(body[idx:])
	wrapped.WriteString(`</rss>`)
	return parseWithGofeed(wrapped.Bytes(), false)
}

// atomFeed handles feed/entry documents.
type atomFeed struct{}

func (atomFeed) name() string { return "atom" }

func (atomFeed) accepts(root string) bool { return root == rootAtom }

func (atomFeed) parse(body []byte) ([]domain.RawItem, error) {
	return parseWithGofeed(body, true)
}

func parseWithGofeed(body []byte, atom bool) ([]domain.RawItem, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	items := make([]domain.RawItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		items = append(items, toRaw(item, atom))
	}
	return items, nil
}

func toRaw(item *gofeed.Item, atom bool) domain.RawItem {
	raw := domain.RawItem{
		Title: strings.TrimSpace(item.Title),
		Link:  strings.TrimSpace(item.Link),
		Media: mediaRefs(item),
	}
	if raw.Link == "" && len(item.Links) > 0 {
		raw.Link = strings.TrimSpace(item.Links[0])
	}

	switch {
	case item.PublishedParsed != nil:
		published := *item.PublishedParsed
		raw.Published = &published
	case item.UpdatedParsed != nil:
		updated := *item.UpdatedParsed
		raw.Published = &updated
	}

	// gofeed folds content:encoded (RSS) and atom:content into Content.
	if atom {
		raw.Content = item.Content
	} else {
		raw.Encoded = item.Content
	}
	raw.Summary = item.Description

	return raw
}

func mediaRefs(item *gofeed.Item) []domain.MediaRef {
	var refs []domain.MediaRef

	if media, ok := item.Extensions["media"]; ok {
		refs = append(refs, mediaElements(media["content"], "media:content")...)
		refs = append(refs, mediaElements(media["thumbnail"], "media:thumbnail")...)
		for _, group := range media["group"] {
			refs = append(refs, mediaElements(group.Children["content"], "media:group")...)
			refs = append(refs, mediaElements(group.Children["thumbnail"], "media:group")...)
		}
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		refs = append(refs, domain.MediaRef{URL: enclosure.URL, Type: enclosure.Type, Origin: "enclosure"})
	}

	if item.Image != nil && item.Image.URL != "" {
		refs = append(refs, domain.MediaRef{URL: item.Image.URL, Origin: "image"})
	}

	return refs
}

func mediaElements(elements []ext.Extension, origin string) []domain.MediaRef {
	refs := make([]domain.MediaRef, 0, len(elements))
	for _, el := range elements {
		u := strings.TrimSpace(el.Attrs["url"])
		if u == "" {
			continue
		}
		refs = append(refs, domain.MediaRef{
			URL:    u,
			Type:   el.Attrs["type"],
			Medium: el.Attrs["medium"],
			Origin: origin,
		})
	}
	return refs
}
