package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
)

// historyWindow is how many past turns are included in the prompt.
const historyWindow = 5

const companyContext = `You are Manu, an AI assistant for Maninfini Automation, a digital solutions company.

Company Information:
- Name: Maninfini Automation
- Services: Process Automation (RPA, AI-powered workflows), Web Development, Graphic Design, WhatsApp Integration, Virtual Office Solutions
- Contact: info@maninfini.com, www.maninfini.com
- Focus: Digital transformation and automation solutions

Your role is to:
1. Provide helpful, accurate information about Maninfini's services
2. Answer questions about pricing, processes, and capabilities
3. Help schedule consultations and gather requirements
4. Be professional, friendly, and knowledgeable
5. Always represent Maninfini positively
6. If you don't know something specific, suggest contacting the team directly`

// Turn is one line of a session transcript.
type Turn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// BuildPrompt assembles the company context, the last few turns of history
// and the user's preferences around message.
func BuildPrompt(message string, history []Turn, prefs map[string]any) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	lines := make([]string, 0, len(history))
	for _, t := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Sender, t.Text))
	}

	if prefs == nil {
		prefs = map[string]any{}
	}
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		prefsJSON = []byte("{}")
	}

	var sb strings.Builder
	sb.WriteString(companyContext)
	sb.WriteString("\n\nPrevious conversation context:\n")
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n\nUser preferences: ")
	sb.Write(prefsJSON)
	sb.WriteString("\n\nCurrent user message: ")
	sb.WriteString(message)
	sb.WriteString("\n\nPlease provide a helpful, contextual response that addresses the user's question while promoting Maninfini's services appropriately. Keep responses concise but informative.")
	return sb.String()
}
