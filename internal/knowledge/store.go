package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/maninfini/sitebot/internal/jsonfile"
)

// FileName is the knowledge base file inside the data directory.
const FileName = "knowledge-base.json"

// Store owns the knowledge base. Every read and write goes through its
// mutex; callers receive copies, never the live maps.
type Store struct {
	path string
	now  func() time.Time

	saveMu sync.Mutex // orders writers of the file
	mu     sync.RWMutex
	base   Base
}

// Open loads the knowledge base at path, creating it with an empty document
// when the file does not exist. A file that cannot be parsed is logged and
// replaced in memory by an empty base; it is overwritten on the next Save.
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}

	var b Base
	err := jsonfile.Read(path, &b)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.base = emptyBase()
		if err := s.Save(); err != nil {
			return nil, fmt.Errorf("creating knowledge base: %w", err)
		}
		slog.Info("created new knowledge base", "path", path)
		return s, nil
	case errors.Is(err, jsonfile.ErrCorrupt):
		slog.Error("knowledge base unreadable, starting empty", "path", path, "error", err)
		b = emptyBase()
	case err != nil:
		return nil, fmt.Errorf("reading knowledge base: %w", err)
	}
	b.normalize()
	s.base = b
	return s, nil
}

// Save stamps LastUpdated and writes the base atomically.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.base.LastUpdated = s.now().UTC()
	snapshot := s.base.clone()
	s.mu.Unlock()
	if err := jsonfile.Write(s.path, snapshot); err != nil {
		return fmt.Errorf("saving knowledge base: %w", err)
	}
	return nil
}

// Learn merges content of the given type into the base. faq and service
// content is a JSON array appended as-is; intent and response content is a
// JSON object whose keys replace existing entries. On any error the base is
// left unchanged.
func (s *Store) Learn(typ ContentType, content json.RawMessage) (Stats, error) {
	if typ == "" || isEmptyJSON(content) {
		return Stats{}, ErrMissingContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch typ {
	case TypeFAQ:
		var faqs []FAQ
		if err := json.Unmarshal(content, &faqs); err != nil {
			return Stats{}, fmt.Errorf("%w: decoding faq content: %v", ErrInvalidContent, err)
		}
		s.base.FAQs = append(s.base.FAQs, faqs...)
	case TypeService:
		var services []Service
		if err := json.Unmarshal(content, &services); err != nil {
			return Stats{}, fmt.Errorf("%w: decoding service content: %v", ErrInvalidContent, err)
		}
		s.base.Services = append(s.base.Services, services...)
	case TypeIntent:
		var intents map[string]Intent
		if err := json.Unmarshal(content, &intents); err != nil {
			return Stats{}, fmt.Errorf("%w: decoding intent content: %v", ErrInvalidContent, err)
		}
		maps.Copy(s.base.Intents, intents)
	case TypeResponse:
		var responses map[string][]string
		if err := json.Unmarshal(content, &responses); err != nil {
			return Stats{}, fmt.Errorf("%w: decoding response content: %v", ErrInvalidContent, err)
		}
		maps.Copy(s.base.Responses, responses)
	default:
		return Stats{}, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	return s.base.stats(), nil
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.stats()
}

// snapshot returns a deep copy of the base.
func (s *Store) snapshot() Base {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.clone()
}

// Examples returns the training examples of every intent.
func (s *Store) Examples() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.base.Intents))
	for name, in := range s.base.Intents {
		out[name] = slices.Clone(in.Examples)
	}
	return out
}

// Responses returns the replies known for an intent: the top-level responses
// table first, then replies attached to the intent itself.
func (s *Store) Responses(intent string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r := s.base.Responses[intent]; len(r) > 0 {
		return slices.Clone(r)
	}
	return slices.Clone(s.base.Intents[intent].Responses)
}

func (s *Store) FAQs() []FAQ {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.base.FAQs)
}

func (s *Store) Services() []Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.base.Services)
}

// isEmptyJSON reports whether raw is absent or a falsy scalar.
func isEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "false", "0":
		return true
	}
	return false
}
