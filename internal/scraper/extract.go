package scraper

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/maninfini/sitebot/internal/knowledge"
)

// Selector lists tried, in order, on every fetched page.
var (
	faqSelectors         = []string{"[data-faq]", ".faq-item", ".faq", `[class*="faq"]`, `[class*="FAQ"]`}
	faqQuestionSelectors = []string{"h3", "h4", ".question", ".faq-question"}
	faqAnswerSelectors   = []string{"p", ".answer", ".faq-answer", "div"}

	serviceSelectors            = []string{"[data-service]", ".service-item", ".service", `[class*="service"]`, `section[id*="service"]`}
	serviceTitleSelectors       = []string{"h2", "h3", ".service-title", ".title"}
	serviceDescriptionSelectors = []string{"p", ".description", ".service-desc"}

	contentSelectors = []string{"main", "article", ".content", ".main-content", "section"}
)

// Length bounds, in characters, for accepted items.
const (
	minQuestionLen  = 10
	minAnswerLen    = 20
	minServiceTitle = 5
	minServiceDesc  = 20
	minLooseFAQText = 50
	maxLooseFAQText = 500
	minContentText  = 100
	maxContentText  = 2000
)

// ContentBlock is a free-text region of a page kept for reference.
type ContentBlock struct {
	Text        string    `json:"text"`
	Source      string    `json:"source"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// Page is everything extracted from one URL.
type Page struct {
	URL      string
	FAQs     []knowledge.FAQ
	Services []knowledge.Service
	Content  []ContentBlock
}

// ExtractPage runs all three extractors over doc.
func ExtractPage(doc *goquery.Document, url string, now time.Time) Page {
	return Page{
		URL:      url,
		FAQs:     ExtractFAQs(doc, url, now),
		Services: ExtractServices(doc, url, now),
		Content:  ExtractContent(doc, url, now),
	}
}

// ExtractFAQs finds question/answer pairs. An element matched by several
// selectors yields several (identical) pairs; Dedupe removes them later.
func ExtractFAQs(doc *goquery.Document, url string, now time.Time) []knowledge.FAQ {
	var faqs []knowledge.FAQ
	for _, sel := range faqSelectors {
		doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			question := firstText(el, faqQuestionSelectors)
			answer := firstText(el, faqAnswerSelectors)

			if question == "" && answer == "" {
				question, answer = splitLooseFAQ(strings.TrimSpace(el.Text()))
			}

			if question == "" || answer == "" ||
				charLen(question) <= minQuestionLen || charLen(answer) <= minAnswerLen {
				return
			}
			faqs = append(faqs, knowledge.FAQ{
				Question:    collapse(question),
				Answer:      collapse(answer),
				Source:      url,
				ExtractedAt: now,
			})
		})
	}
	return faqs
}

// splitLooseFAQ treats the first non-blank line of a mid-sized text block as
// the question and the remaining lines as the answer.
func splitLooseFAQ(text string) (string, string) {
	if n := charLen(text); n <= minLooseFAQText || n >= maxLooseFAQText {
		return "", ""
	}
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return "", ""
	}
	return strings.TrimSpace(lines[0]), strings.TrimSpace(strings.Join(lines[1:], " "))
}

func ExtractServices(doc *goquery.Document, url string, now time.Time) []knowledge.Service {
	var services []knowledge.Service
	for _, sel := range serviceSelectors {
		doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			title := firstText(el, serviceTitleSelectors)
			desc := firstText(el, serviceDescriptionSelectors)
			if title == "" || desc == "" ||
				charLen(title) <= minServiceTitle || charLen(desc) <= minServiceDesc {
				return
			}
			services = append(services, knowledge.Service{
				Title:       collapse(title),
				Description: collapse(desc),
				Source:      url,
				ExtractedAt: now,
			})
		})
	}
	return services
}

func ExtractContent(doc *goquery.Document, url string, now time.Time) []ContentBlock {
	var blocks []ContentBlock
	for _, sel := range contentSelectors {
		doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			text := strings.TrimSpace(el.Text())
			if n := charLen(text); n <= minContentText || n >= maxContentText {
				return
			}
			blocks = append(blocks, ContentBlock{Text: collapse(text), Source: url, ExtractedAt: now})
		})
	}
	return blocks
}

// firstText returns the trimmed text of the first descendant matching the
// first selector that matches anything with non-empty text.
func firstText(el *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if m := el.Find(sel).First(); m.Length() > 0 {
			if t := strings.TrimSpace(m.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
