package extractor

import (
	"regexp"
	"strings"

	"FeedPress/internal/ports"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b.*?</style\s*>`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespace  = regexp.MustCompile(`\s+`)

	entities = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

// CleanText drops script and style blocks and tags, unescapes the common entities
// and collapses whitespace.
func CleanText(s string) string {
	s = scriptBlock.ReplaceAllString(s, " ")
	s = styleBlock.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, " ")
	s = entities.Replace(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ApplyRules runs the active find/replace rules in order. Find is matched literally.
func ApplyRules(s string, rules []ports.TextRule) string {
	for _, rule := range rules {
		if !rule.Active || rule.Find == "" {
			continue
		}
		s = strings.ReplaceAll(s, rule.Find, rule.Replace)
	}
	return s
}
