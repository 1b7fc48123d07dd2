package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/zhengjr9/chat-gateway/internal/completion"
	apierrors "github.com/zhengjr9/chat-gateway/internal/errors"
	"github.com/zhengjr9/chat-gateway/internal/httputil"
	"github.com/zhengjr9/chat-gateway/internal/openai"
)

// maxBodyBytes bounds the request body of a chat completion.
const maxBodyBytes = 8 << 20

// chatHandler implements POST /v1/chat/completions.
type chatHandler struct {
	service *completion.Service
	timeout time.Duration
}

func newChatHandler(service *completion.Service, timeout time.Duration) *chatHandler {
	return &chatHandler{service: service, timeout: timeout}
}

func (h *chatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.service.RejectMalformed(err)
		apierrors.WriteDetail(w, http.StatusBadRequest, apierrors.ErrMalformedBody.Error()+": "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.service.Complete(ctx, &req)
	if err != nil {
		apierrors.WriteDetail(w, apierrors.StatusFor(err), err.Error())
		return
	}

	if res.Stream != nil {
		if err := writeStream(w, res.Stream); err != nil {
			slog.Debug("stream aborted", "id", res.Stream.ID, "error", err)
			return
		}
	} else {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res.Response); err != nil {
			slog.Debug("write response failed", "id", res.Response.ID, "error", err)
			return
		}
	}
	h.service.MarkSent(res)
}

// writeStream drains s into the response, flushing after every frame.
func writeStream(w http.ResponseWriter, s *openai.Stream) error {
	httputil.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	fw := httputil.NewFlushWriter(w)
	for frame := range s.Frames() {
		if err := fw.WriteFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
