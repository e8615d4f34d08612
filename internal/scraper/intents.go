package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/maninfini/sitebot/internal/knowledge"
)

// Dedupe keeps the first item for each key, comparing keys case-insensitively
// with runs of whitespace collapsed to one space.
func Dedupe[T any](items []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := strings.ToLower(collapse(key(it)))
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

func faqKey(f knowledge.FAQ) string         { return f.Question }
func serviceKey(s knowledge.Service) string { return s.Title }
func contentKey(c ContentBlock) string      { return c.Text }

var (
	questionWords = regexp.MustCompile(`(?i)what|how|when|where|why`)
	nonSlug       = regexp.MustCompile(`[^a-z0-9]`)
)

const minExampleLen = 5

// GenerateIntents derives one intent per FAQ, named faq_<index>, and one per
// service, named service_<slug>. Services whose titles slug identically
// collapse into the last one.
func GenerateIntents(faqs []knowledge.FAQ, services []knowledge.Service) map[string]knowledge.Intent {
	intents := make(map[string]knowledge.Intent, len(faqs)+len(services))

	for i, f := range faqs {
		q := strings.ToLower(f.Question)
		var examples []string
		for _, ex := range []string{
			q,
			strings.ReplaceAll(q, "?", ""),
			strings.TrimSpace(questionWords.ReplaceAllString(q, "")),
		} {
			if charLen(ex) > minExampleLen {
				examples = append(examples, ex)
			}
		}
		intents[fmt.Sprintf("faq_%d", i)] = knowledge.Intent{
			Examples:  examples,
			Responses: []string{f.Answer},
		}
	}

	for _, s := range services {
		title := strings.ToLower(s.Title)
		examples := []string{
			title,
			"tell me about " + title,
			"what is " + title,
			"information about " + title,
		}
		for _, kw := range strings.Split(title, " ") {
			if charLen(kw) > 2 {
				examples = append(examples, "about "+kw)
			}
		}
		intents["service_"+nonSlug.ReplaceAllString(title, "_")] = knowledge.Intent{
			Examples:  examples,
			Responses: []string{s.Description},
		}
	}

	return intents
}
