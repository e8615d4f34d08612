// Package classifier labels chat messages with an intent using a naive Bayes
// model over stemmed tokens.
package classifier

import (
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/jbrukh/bayesian"
	porterstemmer "github.com/reiver/go-porterstemmer"
)

// Seeds are the built-in training documents every model starts from.
var Seeds = map[string][]string{
	"greeting":        {"hello hi hey greetings"},
	"goodbye":         {"bye goodbye see you later"},
	"thanks":          {"thanks thank you"},
	"help":            {"help support assistance"},
	"automation":      {"automation rpa process automation"},
	"web_development": {"web development website design"},
	"graphic_design":  {"graphic design logo brand"},
	"whatsapp":        {"whatsapp integration bot"},
	"ecommerce":       {"ecommerce inventory management"},
	"pricing":         {"pricing cost rates fees"},
	"contact":         {"contact reach get in touch"},
	"portfolio":       {"portfolio work examples"},
	"team":            {"team about us who are you"},
	"technologies":    {"technologies tech stack tools"},
}

// Classification is the winning intent and its posterior probability.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

type Model struct {
	nb      *bayesian.Classifier
	classes []string
}

// Train builds a fresh model from Seeds plus examples. Intents present in
// both keep the seed document and gain the examples.
func Train(examples map[string][]string) *Model {
	docs := make(map[string][]string, len(Seeds)+len(examples))
	for intent, d := range Seeds {
		docs[intent] = slices.Clone(d)
	}
	for intent, ex := range examples {
		if intent == "" {
			continue
		}
		docs[intent] = append(docs[intent], ex...)
	}

	names := slices.Sorted(maps.Keys(docs))
	classes := make([]bayesian.Class, len(names))
	for i, n := range names {
		classes[i] = bayesian.Class(n)
	}

	nb := bayesian.NewClassifier(classes...)
	for _, n := range names {
		for _, d := range docs[n] {
			if toks := Tokenize(d); len(toks) > 0 {
				nb.Learn(toks, bayesian.Class(n))
			}
		}
	}
	return &Model{nb: nb, classes: names}
}

// Classify returns the most probable intent for text.
func (m *Model) Classify(text string) Classification {
	toks := Tokenize(text)
	probs, idx, _, err := m.nb.SafeProbScores(toks)
	if err != nil || math.IsNaN(probs[idx]) {
		// Long inputs underflow; log scores still rank correctly.
		_, idx, _ = m.nb.LogScores(toks)
		return Classification{Intent: m.classes[idx]}
	}
	return Classification{Intent: m.classes[idx], Confidence: probs[idx]}
}

// Classes lists the intents the model knows, sorted.
func (m *Model) Classes() []string {
	return slices.Clone(m.classes)
}

// Tokenize lowercases text, splits it on anything that is not a letter or
// digit, drops stop words and stems what remains.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if stopWords[f] {
			continue
		}
		out = append(out, porterstemmer.StemString(f))
	}
	return out
}

// Trainer holds the current model. Classify never blocks on Retrain.
type Trainer struct {
	model atomic.Pointer[Model]
}

func NewTrainer(examples map[string][]string) *Trainer {
	t := &Trainer{}
	t.Retrain(examples)
	return t
}

// Retrain replaces the current model with one trained from scratch.
func (t *Trainer) Retrain(examples map[string][]string) {
	m := Train(examples)
	t.model.Store(m)
	slog.Debug("classifier retrained", "intents", len(m.classes))
}

func (t *Trainer) Classify(text string) Classification {
	return t.model.Load().Classify(text)
}

var stopWords = map[string]bool{
	"a": true, "about": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "for": true, "from": true, "get": true,
	"i": true, "in": true, "is": true, "it": true, "me": true, "my": true, "of": true,
	"on": true, "or": true, "our": true, "see": true, "so": true, "that": true, "the": true,
	"this": true, "to": true, "us": true, "was": true, "we": true, "what": true, "who": true,
	"with": true, "you": true, "your": true,
}
