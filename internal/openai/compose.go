package openai

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"iter"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/zhengjr9/chat-gateway/internal/httputil"
	"github.com/zhengjr9/chat-gateway/internal/tokens"
)

// CompletionResult is the backend text plus its usage accounting.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// NewCompletionResult accounts completion tokens for text.
func NewCompletionResult(in *PromptInput, text string) CompletionResult {
	return CompletionResult{
		Text:             text,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: tokens.CompletionTokens(text),
	}
}

// NewCompletionID returns "chatcmpl-" followed by the 32 hex digits of a
// random (version 4) UUID.
func NewCompletionID() string {
	u := uuid.New()
	return "chatcmpl-" + hex.EncodeToString(u[:])
}

// Composer builds blocking responses and SSE streams.
type Composer struct {
	// ChunkWords splits streamed content into pieces of this many words.
	// Zero streams the whole text in a single chunk.
	ChunkWords int

	now   func() time.Time
	newID func() string
}

// NewComposer constructs a Composer using the wall clock and random ids.
func NewComposer(chunkWords int) *Composer {
	return &Composer{ChunkWords: chunkWords, now: time.Now, newID: NewCompletionID}
}

// Response builds the non-streaming response object.
func (c *Composer) Response(model string, res CompletionResult) *ChatCompletionResponse {
	return &ChatCompletionResponse{
		ID:      c.newID(),
		Object:  ObjectCompletion,
		Created: c.now().Unix(),
		Model:   model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      Message{Role: RoleAssistant, Content: Content(res.Text)},
				FinishReason: FinishReasonStop,
			},
		},
		Usage: Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			TotalTokens:      res.PromptTokens + res.CompletionTokens,
		},
	}
}

// Stream encodes every frame of the response up front. The content frames
// are followed by the [DONE] terminator.
func (c *Composer) Stream(model string, res CompletionResult) (*Stream, error) {
	id, created := c.newID(), c.now().Unix()
	chunk := func(d Delta, finish *string) StreamChunk {
		return StreamChunk{
			ID:      id,
			Object:  ObjectChunk,
			Created: created,
			Model:   model,
			Choices: []StreamChoice{{Delta: d, Index: 0, FinishReason: finish}},
		}
	}

	var chunks []StreamChunk
	if c.ChunkWords <= 0 {
		chunks = append(chunks, chunk(Delta{Role: RoleAssistant, Content: res.Text}, nil))
	} else {
		for i, piece := range splitWords(res.Text, c.ChunkWords) {
			d := Delta{Content: piece}
			if i == 0 {
				d.Role = RoleAssistant
			}
			chunks = append(chunks, chunk(d, nil))
		}
		stop := FinishReasonStop
		chunks = append(chunks, chunk(Delta{}, &stop))
	}

	frames := make([][]byte, 0, len(chunks)+1)
	for _, ch := range chunks {
		data, err := json.Marshal(ch)
		if err != nil {
			return nil, fmt.Errorf("marshal chunk: %w", err)
		}
		frames = append(frames, httputil.Frame(data))
	}
	frames = append(frames, httputil.DoneFrame)

	return &Stream{ID: id, frames: frames}, nil
}

// Stream is a finite sequence of encoded SSE frames. It can be drained once.
type Stream struct {
	ID string

	frames   [][]byte
	consumed atomic.Bool
}

// Frames yields each frame in order. Iterating a second time yields nothing.
func (s *Stream) Frames() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if s.consumed.Swap(true) {
			return
		}
		for _, f := range s.frames {
			if !yield(f) {
				return
			}
		}
	}
}

// splitWords cuts text before every n-th word start so that concatenating
// the pieces reproduces text exactly. It always returns at least one piece.
func splitWords(text string, n int) []string {
	var pieces []string
	start, words, inWord := 0, 0, false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if inWord {
			continue
		}
		inWord = true
		if words > 0 && words%n == 0 {
			pieces = append(pieces, text[start:i])
			start = i
		}
		words++
	}
	return append(pieces, text[start:])
}
