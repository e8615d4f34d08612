// Package chat answers visitor messages from the knowledge base, falling back
// to built-in replies for the seed intents.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/maninfini/sitebot/internal/classifier"
	"github.com/maninfini/sitebot/internal/interactions"
	"github.com/maninfini/sitebot/internal/knowledge"
)

// ErrInvalidMessage is returned for empty messages.
var ErrInvalidMessage = errors.New("invalid message format")

// Outcome records where a reply came from.
type Outcome string

const (
	OutcomeLearned  Outcome = "learned"
	OutcomeFallback Outcome = "fallback"
	OutcomeUnknown  Outcome = "unknown"
)

// Knowledge is the part of the knowledge store the chat service uses.
type Knowledge interface {
	Responses(intent string) []string
	Examples() map[string][]string
	Learn(typ knowledge.ContentType, content json.RawMessage) (knowledge.Stats, error)
	Save() error
}

// InteractionLog records answered messages.
type InteractionLog interface {
	Append(e interactions.Entry) error
}

type Reply struct {
	Response   string    `json:"response"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Outcome    Outcome   `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}

type Service struct {
	kb      Knowledge
	log     InteractionLog
	trainer *classifier.Trainer
	now     func() time.Time

	// retrainMu orders snapshot-and-swap so the live model is never
	// older than the last completed Learn.
	retrainMu sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New trains an initial model from kb. log may be nil.
func New(kb Knowledge, log InteractionLog) *Service {
	return &Service{
		kb:      kb,
		log:     log,
		trainer: classifier.NewTrainer(kb.Examples()),
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// Reply classifies message, picks a response and logs the exchange. A failed
// log write is reported but does not fail the reply.
func (s *Service) Reply(ctx context.Context, message string) (Reply, error) {
	if message == "" {
		return Reply{}, ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	c := s.trainer.Classify(strings.ToLower(message))
	text, outcome := s.Respond(c.Intent)
	r := Reply{
		Response:   text,
		Intent:     c.Intent,
		Confidence: c.Confidence,
		Outcome:    outcome,
		Timestamp:  s.now().UTC(),
	}

	if s.log != nil {
		err := s.log.Append(interactions.Entry{
			Message:   message,
			Intent:    r.Intent,
			Response:  r.Response,
			Timestamp: r.Timestamp,
		})
		if err != nil {
			slog.Warn("failed to record interaction", "error", err)
		}
	}

	slog.Debug("chat reply", "intent", r.Intent, "confidence", r.Confidence, "outcome", outcome)
	return r, nil
}

// Respond picks a reply for intent uniformly at random from the learned
// replies, else from Fallbacks, else returns DefaultReply.
func (s *Service) Respond(intent string) (string, Outcome) {
	if learned := s.kb.Responses(intent); len(learned) > 0 {
		return s.pick(learned), OutcomeLearned
	}
	if fb := Fallbacks[intent]; len(fb) > 0 {
		return s.pick(fb), OutcomeFallback
	}
	return DefaultReply, OutcomeUnknown
}

// Learn merges content into the knowledge base, retrains and saves. The
// returned stats reflect the base after the merge.
func (s *Service) Learn(typ knowledge.ContentType, content json.RawMessage) (knowledge.Stats, error) {
	stats, err := s.kb.Learn(typ, content)
	if err != nil {
		return knowledge.Stats{}, err
	}
	s.Retrain()
	if err := s.kb.Save(); err != nil {
		return knowledge.Stats{}, fmt.Errorf("saving knowledge base: %w", err)
	}
	slog.Info("learned content", "type", typ, "intents", stats.Intents, "faqs", stats.FAQs, "services", stats.Services)
	return stats, nil
}

// Retrain rebuilds the classifier from the current knowledge base.
func (s *Service) Retrain() {
	s.retrainMu.Lock()
	defer s.retrainMu.Unlock()
	s.trainer.Retrain(s.kb.Examples())
}

func (s *Service) pick(options []string) string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return options[s.rng.IntN(len(options))]
}
