package assistant

import "strings"

// Button is a quick reply offered alongside a response.
type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Message is one bot message.
type Message struct {
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
}

const (
	IntentOutOfScope = "out_of_scope"

	outOfScopeConfidence = 0.3

	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

type rule struct {
	intent     string
	confidence float64
	keywords   []string
	text       string
}

// rules are checked in order; the first rule with a keyword contained in the
// lowercased message wins. Matching is by substring, so "hi" also matches
// "this".
var rules = []rule{
	{
		intent:     "greet",
		confidence: 0.9,
		keywords:   []string{"hello", "hi", "hey"},
		text:       "Hello! I'm Manu, your AI assistant from Maninfini Automation. I can help you with information about our services, pricing, and more. How can I assist you today?",
	},
	{
		intent:     "ask_services",
		confidence: 0.9,
		keywords:   []string{"service", "what do you do"},
		text:       "At Maninfini Automation, we offer comprehensive digital solutions including:\n\n🤖 Process Automation (RPA, AI-powered workflows)\n🌐 Web Development (Custom websites, e-commerce)\n🎨 Graphic Design (Brand identity, marketing materials)\n📱 WhatsApp Integration (Business API, chatbots)\n💼 Virtual Office Solutions\n\nWhich service interests you most?",
	},
	{
		intent:     "ask_pricing",
		confidence: 0.9,
		keywords:   []string{"price", "cost", "how much"},
		text:       "Our pricing is tailored to your specific needs and project requirements. We offer flexible pricing models including project-based, retainer, and hourly rates. To provide you with an accurate quote, I'd recommend scheduling a consultation to discuss your requirements. Would you like to book a consultation?",
	},
	{
		intent:     "ask_contact",
		confidence: 0.8,
		keywords:   []string{"contact", "reach", "get in touch"},
		text:       "You can reach us through multiple channels:\n\n📧 Email: info@maninfini.com\n📞 Phone: +91-XXXXXXXXXX\n💬 WhatsApp: +91-XXXXXXXXXX\n🌐 Website: www.maninfini.com\n\nWe typically respond within 2-4 hours during business days.",
	},
	{
		intent:     "book_consultation",
		confidence: 0.9,
		keywords:   []string{"consultation", "book", "meeting"},
		text:       "Great! I'd be happy to help you schedule a consultation. Our team will understand your business needs, analyze your current processes, and propose customized solutions. Please provide your preferred contact method and best time for a call.",
	},
	{
		intent:     "ask_automation",
		confidence: 0.9,
		keywords:   []string{"automation", "rpa"},
		text:       "Our automation services help businesses streamline operations and reduce manual work:\n\n• Robotic Process Automation (RPA)\n• AI-powered workflow automation\n• Data processing and analysis\n• Custom automation solutions\n• Integration with existing systems\n\nWhat specific process would you like to automate?",
	},
	{
		intent:     "ask_web_development",
		confidence: 0.9,
		keywords:   []string{"web", "website", "development"},
		text:       "Our web development services include:\n\n• Custom website development\n• E-commerce solutions\n• Responsive design\n• SEO optimization\n• Website maintenance\n• Performance optimization\n\nWhat type of website do you need?",
	},
	{
		intent:     "ask_design",
		confidence: 0.9,
		keywords:   []string{"design", "graphic"},
		text:       "Our graphic design services cover:\n\n• Brand identity design\n• Logo creation\n• Marketing materials\n• Social media graphics\n• Print design\n• UI/UX design\n\nWhat design project do you have in mind?",
	},
	{
		intent:     "ask_whatsapp",
		confidence: 0.9,
		keywords:   []string{"whatsapp", "chatbot"},
		text:       "Our WhatsApp integration services include:\n\n• WhatsApp Business API setup\n• Custom chatbot development\n• Automated responses\n• Lead generation\n• Customer support automation\n• Integration with CRM systems\n\nHow can WhatsApp automation help your business?",
	},
}

const defaultFallbackText = "I apologize, but I'm having trouble processing your request right now. However, I can help you with information about our services, pricing, or help you schedule a consultation. What would you like to know about Maninfini Automation?"

var suggestions = map[string][]string{
	"ask_services": {
		"Tell me more about automation",
		"What about web development?",
		"I'm interested in graphic design",
		"How about WhatsApp integration?",
	},
	"ask_automation": {
		"What are the benefits?",
		"How much does it cost?",
		"Can you show me examples?",
		"I want to book a consultation",
	},
	"ask_web_development": {
		"What technologies do you use?",
		"How long does development take?",
		"Do you provide maintenance?",
		"Can you show me your portfolio?",
	},
	"ask_design": {
		"What design services do you offer?",
		"How much for a logo design?",
		"Do you do brand identity?",
		"Can I see your design portfolio?",
	},
	"ask_whatsapp": {
		"How does WhatsApp integration work?",
		"What are the costs?",
		"Can you customize the chatbot?",
		"How long does setup take?",
	},
	"ask_pricing": {
		"I need a quote",
		"What's included?",
		"Are there different packages?",
		"Can you explain the pricing?",
	},
	"book_consultation": {
		"What's your contact information?",
		"How long does the consultation take?",
		"What should I prepare?",
		"What are your available times?",
	},
}

var (
	positiveWords = []string{"good", "great", "excellent", "amazing", "wonderful", "perfect", "love", "like", "happy"}
	negativeWords = []string{"bad", "terrible", "awful", "hate", "dislike", "poor", "worst", "disappointed"}
)

func match(message string) (rule, bool) {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r, true
			}
		}
	}
	return rule{}, false
}

// Fallback answers message from the keyword table without calling a model.
func Fallback(message string) Message {
	r, ok := match(message)
	if !ok {
		return Message{Text: defaultFallbackText}
	}
	return Message{Text: r.text, Buttons: buttons(r.intent)}
}

// FallbackIntent guesses the intent from the same keyword table.
func FallbackIntent(message string) (string, float64) {
	r, ok := match(message)
	if !ok {
		return IntentOutOfScope, outOfScopeConfidence
	}
	return r.intent, r.confidence
}

// Suggestions returns follow-up prompts for intent, or nil.
func Suggestions(intent string) []string {
	s := suggestions[intent]
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// FallbackSentiment counts positive and negative words contained in message.
// "dislike" also counts as "like".
func FallbackSentiment(message string) string {
	lower := strings.ToLower(message)
	count := func(words []string) int {
		n := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				n++
			}
		}
		return n
	}
	pos, neg := count(positiveWords), count(negativeWords)
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func buttons(intent string) []Button {
	s := suggestions[intent]
	if len(s) == 0 {
		return nil
	}
	out := make([]Button, len(s))
	for i, title := range s {
		out[i] = Button{Title: title, Payload: title}
	}
	return out
}
