// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package conversation is the Conversation Store (C7): an append-only,
// in-memory message log with a size-triggered compression step. Grounded
// on pkg/session/session.go's memoryEvents (mutex-guarded slice, iter.Seq
// iteration) generalized from an opaque event log to a bounded,
// compressible chat history.
package conversation

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/llm"
)

const (
	defaultMaxContextChars  = 8000
	defaultMaxHistoryLength = 20
)

// Summarizer is the subset of the Contextual LLM Gateway (C8) the store
// needs for compression; satisfied by *gateway.Gateway without importing
// it here, avoiding a C7<->C8 import cycle.
type Summarizer interface {
	Summarize(ctx context.Context, messages []llm.Message) (string, error)
}

// Config bounds when compression triggers.
type Config struct {
	MaxContextChars  int
	MaxHistoryLength int
}

// Store is the Conversation Store (C7).
type Store struct {
	maxContextChars  int
	maxHistoryLength int

	mu       sync.RWMutex
	messages []llm.Message
}

// New constructs an empty Store.
func New(cfg Config) *Store {
	maxChars := cfg.MaxContextChars
	if maxChars <= 0 {
		maxChars = defaultMaxContextChars
	}
	maxLen := cfg.MaxHistoryLength
	if maxLen <= 0 {
		maxLen = defaultMaxHistoryLength
	}
	return &Store{maxContextChars: maxChars, maxHistoryLength: maxLen}
}

// Append adds a message to the end of the history.
func (s *Store) Append(msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Snapshot returns a copy of the current history.
func (s *Store) Snapshot() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// All iterates the history oldest-first without copying.
func (s *Store) All() iter.Seq[llm.Message] {
	return func(yield func(llm.Message) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, m := range s.messages {
			if !yield(m) {
				return
			}
		}
	}
}

// Reset clears the history.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Len returns the number of messages currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func totalChars(messages []llm.Message) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n
}

// CompressIfNeeded asks llm to summarise everything but the last two
// messages when the history has at least two messages and either exceeds
// max_context_chars or holds more than max_history_length messages,
// replacing it with [summary, second_to_last, last]. A
// summarization failure is non-fatal: the original history is kept and the
// error is returned for the caller to log as a warning, not to abort the
// turn over.
func (s *Store) CompressIfNeeded(ctx context.Context, llmGateway Summarizer) error {
	s.mu.Lock()
	overBudget := totalChars(s.messages) > s.maxContextChars || len(s.messages) > s.maxHistoryLength
	if len(s.messages) < 2 || !overBudget {
		s.mu.Unlock()
		return nil
	}
	toSummarize := make([]llm.Message, len(s.messages)-2)
	copy(toSummarize, s.messages[:len(s.messages)-2])
	tail := make([]llm.Message, 2)
	copy(tail, s.messages[len(s.messages)-2:])
	s.mu.Unlock()

	summary, err := llmGateway.Summarize(ctx, toSummarize)
	if err != nil {
		return fmt.Errorf("compressing conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]llm.Message{
		{Role: "system", Content: "Previous conversation summary: " + summary},
	}, tail...)
	return nil
}
