package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/llm"
)

type fakeSummarizer struct {
	summary string
	err     error
	calls   [][]llm.Message
}

func (f *fakeSummarizer) Summarize(ctx context.Context, messages []llm.Message) (string, error) {
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func TestAppendAndSnapshot(t *testing.T) {
	s := New(Config{})
	s.Append(llm.Message{Role: "user", Content: "hi"})
	s.Append(llm.Message{Role: "assistant", Content: "hello"})

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "hi", snap[0].Content)
}

func TestResetClearsHistory(t *testing.T) {
	s := New(Config{})
	s.Append(llm.Message{Role: "user", Content: "hi"})
	s.Reset()
	require.Equal(t, 0, s.Len())
}

func TestCompressIfNeededSkipsBelowThreshold(t *testing.T) {
	s := New(Config{MaxContextChars: 1000})
	s.Append(llm.Message{Role: "user", Content: "hi"})
	s.Append(llm.Message{Role: "assistant", Content: "hello"})

	sum := &fakeSummarizer{summary: "unused"}
	require.NoError(t, s.CompressIfNeeded(t.Context(), sum))
	require.Empty(t, sum.calls)
	require.Equal(t, 2, s.Len())
}

func TestCompressIfNeededReplacesHistoryWithSummaryAndTail(t *testing.T) {
	s := New(Config{MaxContextChars: 10})
	s.Append(llm.Message{Role: "user", Content: strings.Repeat("x", 20)})
	s.Append(llm.Message{Role: "assistant", Content: strings.Repeat("y", 20)})
	s.Append(llm.Message{Role: "user", Content: "second to last"})
	s.Append(llm.Message{Role: "assistant", Content: "last"})

	sum := &fakeSummarizer{summary: "a condensed recap"}
	require.NoError(t, s.CompressIfNeeded(t.Context(), sum))

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "system", snap[0].Role)
	require.Equal(t, "Previous conversation summary: a condensed recap", snap[0].Content)
	require.Equal(t, "second to last", snap[1].Content)
	require.Equal(t, "last", snap[2].Content)
	require.Len(t, sum.calls[0], 2)
}

func TestCompressIfNeededIsNonFatalOnSummaryError(t *testing.T) {
	s := New(Config{MaxContextChars: 10})
	s.Append(llm.Message{Role: "user", Content: strings.Repeat("x", 20)})
	s.Append(llm.Message{Role: "assistant", Content: strings.Repeat("y", 20)})
	s.Append(llm.Message{Role: "user", Content: "third"})

	sum := &fakeSummarizer{err: errors.New("llm unavailable")}
	err := s.CompressIfNeeded(t.Context(), sum)
	require.Error(t, err)
	require.Equal(t, 3, s.Len())
}

func TestCompressIfNeededTriggersOnHistoryLength(t *testing.T) {
	s := New(Config{MaxContextChars: 1 << 20, MaxHistoryLength: 3})
	for i := 0; i < 5; i++ {
		s.Append(llm.Message{Role: "user", Content: "m"})
	}

	sum := &fakeSummarizer{summary: "recap"}
	require.NoError(t, s.CompressIfNeeded(t.Context(), sum))
	require.Len(t, sum.calls[0], 3)
	require.Equal(t, 3, s.Len())
}
