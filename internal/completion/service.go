// Package completion drives one chat completion from a decoded request to a
// composed response.
//
// A request moves Received → Validated → BackendCalled → Composed → Sent.
// Validation failures end in Rejected and backend failures in Failed. The
// backend is called at most once and nothing is composed until it has
// returned the full text.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zhengjr9/chat-gateway/internal/backend"
	apierrors "github.com/zhengjr9/chat-gateway/internal/errors"
	"github.com/zhengjr9/chat-gateway/internal/openai"
)

// State is a step of the per-request lifecycle.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateBackendCalled
	StateComposed
	StateSent
	StateRejected
	StateFailed
)

var stateNames = [...]string{
	StateReceived:      "received",
	StateValidated:     "validated",
	StateBackendCalled: "backend_called",
	StateComposed:      "composed",
	StateSent:          "sent",
	StateRejected:      "rejected",
	StateFailed:        "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Recorder receives lifecycle measurements. *metrics.Collector implements it.
type Recorder interface {
	RecordRequest(state string, stream bool)
	RecordBackend(backend string, d time.Duration, err error)
	RecordTokens(prompt, completion int)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, bool)                 {}
func (nopRecorder) RecordBackend(string, time.Duration, error) {}
func (nopRecorder) RecordTokens(int, int)                      {}

// Result is a composed completion ready to be written. Exactly one of
// Response and Stream is set.
type Result struct {
	State    State
	Input    *openai.PromptInput
	Usage    openai.CompletionResult
	Response *openai.ChatCompletionResponse
	Stream   *openai.Stream
}

// Service orchestrates normalization, the backend call and composition.
type Service struct {
	backend  backend.Client
	composer *openai.Composer
	recorder Recorder
}

// NewService constructs a Service. rec may be nil.
func NewService(b backend.Client, composer *openai.Composer, rec Recorder) *Service {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Service{backend: b, composer: composer, recorder: rec}
}

// Complete runs one request up to the Composed state. Errors are either a
// *errors.ValidationError (Rejected) or a *errors.BackendError (Failed).
func (s *Service) Complete(ctx context.Context, req *openai.ChatCompletionRequest) (*Result, error) {
	in, err := openai.Normalize(req)
	if err != nil {
		s.recorder.RecordRequest(StateRejected.String(), req.Stream)
		slog.Debug("completion rejected", "state", StateRejected, "reason", err.Error())
		return nil, err
	}
	slog.Debug("completion validated",
		"state", StateValidated,
		"model", in.Model,
		"stream", in.Stream,
		"prompt_tokens", in.PromptTokens,
		"prompt", in.Prompt,
	)

	start := time.Now()
	text, err := s.backend.Generate(ctx, in.Prompt)
	elapsed := time.Since(start)
	s.recorder.RecordBackend(s.backend.Name(), elapsed, err)
	if err != nil {
		s.recorder.RecordRequest(StateFailed.String(), in.Stream)
		slog.Warn("backend call failed",
			"state", StateFailed,
			"backend", s.backend.Name(),
			"duration", elapsed.String(),
			"error", err,
		)
		return nil, &apierrors.BackendError{Err: err}
	}
	slog.Debug("backend returned", "state", StateBackendCalled, "backend", s.backend.Name(), "duration", elapsed.String())

	usage := openai.NewCompletionResult(in, text)
	s.recorder.RecordTokens(usage.PromptTokens, usage.CompletionTokens)

	res := &Result{State: StateComposed, Input: in, Usage: usage}
	if in.Stream {
		stream, err := s.composer.Stream(in.Model, usage)
		if err != nil {
			s.recorder.RecordRequest(StateFailed.String(), true)
			return nil, &apierrors.BackendError{Err: err}
		}
		res.Stream = stream
	} else {
		res.Response = s.composer.Response(in.Model, usage)
	}
	return res, nil
}

// RejectMalformed records a request whose body could not be decoded. It
// ends in Rejected without reaching normalization.
func (s *Service) RejectMalformed(err error) {
	s.recorder.RecordRequest(StateRejected.String(), false)
	slog.Debug("completion rejected", "state", StateRejected, "reason", err.Error())
}

// MarkSent records that res has been fully written to the client.
func (s *Service) MarkSent(res *Result) {
	res.State = StateSent
	s.recorder.RecordRequest(StateSent.String(), res.Input.Stream)
}
