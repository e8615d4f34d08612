package knowledge

import (
	"errors"
	"maps"
	"slices"
	"time"
)

var (
	// ErrInvalidType is returned by Learn for a content type outside
	// faq, service, intent and response.
	ErrInvalidType = errors.New("invalid content type")

	// ErrMissingContent is returned by Learn when content or type is empty.
	ErrMissingContent = errors.New("missing content or type")

	// ErrInvalidContent is returned by Learn when content does not decode
	// into the shape its type requires.
	ErrInvalidContent = errors.New("invalid content")
)

// ContentType names the kind of payload accepted by Learn.
type ContentType string

const (
	TypeFAQ      ContentType = "faq"
	TypeService  ContentType = "service"
	TypeIntent   ContentType = "intent"
	TypeResponse ContentType = "response"
)

// Intent is a labelled set of example utterances and optional canned replies.
type Intent struct {
	Examples  []string `json:"examples"`
	Responses []string `json:"responses,omitempty"`
}

type FAQ struct {
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Source      string    `json:"source,omitempty"`
	ExtractedAt time.Time `json:"extractedAt,omitzero"`
}

type Service struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Source      string    `json:"source,omitempty"`
	ExtractedAt time.Time `json:"extractedAt,omitzero"`
}

// Base is the persisted knowledge base document.
type Base struct {
	Intents        map[string]Intent   `json:"intents"`
	Responses      map[string][]string `json:"responses"`
	LastUpdated    time.Time           `json:"lastUpdated"`
	WebsiteContent map[string]any      `json:"websiteContent"`
	FAQs           []FAQ               `json:"faqs"`
	Services       []Service           `json:"services"`
}

// Stats summarises the size of a Base.
type Stats struct {
	Intents     int       `json:"intents"`
	Responses   int       `json:"responses"`
	FAQs        int       `json:"faqs"`
	Services    int       `json:"services"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func emptyBase() Base {
	return Base{
		Intents:        map[string]Intent{},
		Responses:      map[string][]string{},
		LastUpdated:    time.Now().UTC(),
		WebsiteContent: map[string]any{},
		FAQs:           []FAQ{},
		Services:       []Service{},
	}
}

// normalize replaces nil collections read from older files.
func (b *Base) normalize() {
	if b.Intents == nil {
		b.Intents = map[string]Intent{}
	}
	if b.Responses == nil {
		b.Responses = map[string][]string{}
	}
	if b.WebsiteContent == nil {
		b.WebsiteContent = map[string]any{}
	}
	if b.FAQs == nil {
		b.FAQs = []FAQ{}
	}
	if b.Services == nil {
		b.Services = []Service{}
	}
}

func (b Base) stats() Stats {
	return Stats{
		Intents:     len(b.Intents),
		Responses:   len(b.Responses),
		FAQs:        len(b.FAQs),
		Services:    len(b.Services),
		LastUpdated: b.LastUpdated,
	}
}

func (b Base) clone() Base {
	out := Base{
		Intents:        make(map[string]Intent, len(b.Intents)),
		Responses:      make(map[string][]string, len(b.Responses)),
		LastUpdated:    b.LastUpdated,
		WebsiteContent: maps.Clone(b.WebsiteContent),
		FAQs:           slices.Clone(b.FAQs),
		Services:       slices.Clone(b.Services),
	}
	for k, v := range b.Intents {
		out.Intents[k] = Intent{
			Examples:  slices.Clone(v.Examples),
			Responses: slices.Clone(v.Responses),
		}
	}
	for k, v := range b.Responses {
		out.Responses[k] = slices.Clone(v)
	}
	return out
}
