package openai

import (
	"bufio"
	"bytes"
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"
)

var idPattern = regexp.MustCompile(`^chatcmpl-[0-9a-f]{32}$`)

func fixedComposer(chunkWords int) *Composer {
	c := NewComposer(chunkWords)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	c.newID = func() string { return "chatcmpl-00000000000000000000000000000001" }
	return c
}

func TestNewCompletionID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewCompletionID()
		if !idPattern.MatchString(id) {
			t.Fatalf("id %q does not match %s", id, idPattern)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestComposer_Response(t *testing.T) {
	in := &PromptInput{Model: "m", PromptTokens: 4}
	res := NewCompletionResult(in, "y z")

	resp := NewComposer(0).Response("m", res)

	if !idPattern.MatchString(resp.ID) {
		t.Errorf("ID = %q", resp.ID)
	}
	if resp.Object != "chat.completion" || resp.Model != "m" {
		t.Errorf("object/model = %q/%q", resp.Object, resp.Model)
	}
	if time.Since(time.Unix(resp.Created, 0)) > time.Minute {
		t.Errorf("created %d is not current", resp.Created)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("len(choices) = %d", len(resp.Choices))
	}
	ch := resp.Choices[0]
	if ch.Index != 0 || ch.FinishReason != "stop" || ch.Message.Role != "assistant" || ch.Message.Content != "y z" {
		t.Errorf("unexpected choice %+v", ch)
	}
	if resp.Usage != (Usage{PromptTokens: 4, CompletionTokens: 0, TotalTokens: 4}) {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestComposer_ResponseFreshIDs(t *testing.T) {
	c := NewComposer(0)
	res := CompletionResult{Text: "x"}
	if a, b := c.Response("m", res).ID, c.Response("m", res).ID; a == b {
		t.Errorf("ids repeated: %q", a)
	}
}

func TestComposer_UsageTotals(t *testing.T) {
	res := NewCompletionResult(&PromptInput{PromptTokens: 7}, "one two three four five six seven eight nine")
	resp := NewComposer(0).Response("m", res)
	if resp.Usage.CompletionTokens != 2 {
		t.Errorf("completion_tokens = %d, want 2", resp.Usage.CompletionTokens)
	}
	if resp.Usage.TotalTokens != 9 {
		t.Errorf("total_tokens = %d, want 9", resp.Usage.TotalTokens)
	}
}

func TestChatCompletionResponse_RoundTrip(t *testing.T) {
	want := fixedComposer(0).Response("gpt-test", CompletionResult{Text: "héllo \"world\"\n", PromptTokens: 3, CompletionTokens: 0})

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ChatCompletionResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(*want, got) {
		t.Errorf("round trip mismatch:\nwant %+v\n got %+v", *want, got)
	}
}

func collectFrames(s *Stream) []string {
	var out []string
	for f := range s.Frames() {
		out = append(out, string(f))
	}
	return out
}

func decodeChunk(t *testing.T, frame string) map[string]any {
	t.Helper()
	payload, ok := strings.CutPrefix(frame, "data: ")
	if !ok || !strings.HasSuffix(payload, "\n\n") {
		t.Fatalf("bad framing %q", frame)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSuffix(payload, "\n\n")), &m); err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	return m
}

func TestComposer_StreamTwoFrames(t *testing.T) {
	s, err := fixedComposer(0).Stream("m", CompletionResult{Text: "the whole answer"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	frames := collectFrames(s)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %q", len(frames), frames)
	}
	if frames[1] != "data: [DONE]\n\n" {
		t.Errorf("terminator = %q", frames[1])
	}

	chunk := decodeChunk(t, frames[0])
	if chunk["object"] != "chat.completion.chunk" || chunk["model"] != "m" || chunk["id"] != s.ID {
		t.Errorf("unexpected envelope %v", chunk)
	}
	choices := chunk["choices"].([]any)
	if len(choices) != 1 {
		t.Fatalf("len(choices) = %d", len(choices))
	}
	choice := choices[0].(map[string]any)
	fr, present := choice["finish_reason"]
	if !present || fr != nil {
		t.Errorf("finish_reason = %v (present=%v), want null", fr, present)
	}
	delta := choice["delta"].(map[string]any)
	if delta["content"] != "the whole answer" || delta["role"] != "assistant" {
		t.Errorf("delta = %v", delta)
	}
}

func TestComposer_StreamEmptyText(t *testing.T) {
	s, err := fixedComposer(0).Stream("m", CompletionResult{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	frames := collectFrames(s)
	if len(frames) != 2 {
		t.Fatalf("got %d frames", len(frames))
	}
	delta := decodeChunk(t, frames[0])["choices"].([]any)[0].(map[string]any)["delta"].(map[string]any)
	if c, ok := delta["content"]; !ok || c != "" {
		t.Errorf("content = %v (present=%v)", c, ok)
	}
}

func TestStream_NotRestartable(t *testing.T) {
	s, err := fixedComposer(0).Stream("m", CompletionResult{Text: "x"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if n := len(collectFrames(s)); n != 2 {
		t.Fatalf("first drain: %d frames", n)
	}
	if n := len(collectFrames(s)); n != 0 {
		t.Errorf("second drain yielded %d frames", n)
	}
}

func TestStream_EarlyStop(t *testing.T) {
	s, err := fixedComposer(0).Stream("m", CompletionResult{Text: "x"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	n := 0
	for range s.Frames() {
		n++
		break
	}
	if n != 1 {
		t.Errorf("yielded %d frames before break", n)
	}
}

func TestComposer_StreamChunked(t *testing.T) {
	text := "one two  three\tfour five\n"
	s, err := fixedComposer(2).Stream("m", CompletionResult{Text: text})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	frames := collectFrames(s)
	// three content chunks, one stop chunk, [DONE]
	if len(frames) != 5 {
		t.Fatalf("got %d frames: %q", len(frames), frames)
	}
	if frames[len(frames)-1] != "data: [DONE]\n\n" {
		t.Errorf("last frame = %q", frames[len(frames)-1])
	}

	var sb strings.Builder
	for i, f := range frames[:3] {
		choice := decodeChunk(t, f)["choices"].([]any)[0].(map[string]any)
		delta := choice["delta"].(map[string]any)
		sb.WriteString(delta["content"].(string))
		if _, hasRole := delta["role"]; hasRole != (i == 0) {
			t.Errorf("frame %d: role present = %v", i, hasRole)
		}
		if choice["finish_reason"] != nil {
			t.Errorf("frame %d: finish_reason = %v", i, choice["finish_reason"])
		}
	}
	if sb.String() != text {
		t.Errorf("reassembled %q, want %q", sb.String(), text)
	}
	stop := decodeChunk(t, frames[3])["choices"].([]any)[0].(map[string]any)
	if stop["finish_reason"] != "stop" {
		t.Errorf("stop chunk finish_reason = %v", stop["finish_reason"])
	}
}

func TestStream_SSEParsable(t *testing.T) {
	s, err := fixedComposer(1).Stream("m", CompletionResult{Text: "a b c"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var buf bytes.Buffer
	for f := range s.Frames() {
		buf.Write(f)
	}

	var events []string
	scanner := bufio.NewScanner(&buf)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			data = rest
		} else if line == "" {
			events = append(events, data)
			data = ""
		}
	}
	if len(events) != 5 || events[4] != "[DONE]" {
		t.Errorf("events = %q", events)
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		text string
		n    int
		want []string
	}{
		{"", 2, []string{""}},
		{"   ", 1, []string{"   "}},
		{"a", 3, []string{"a"}},
		{"a b c", 1, []string{"a ", "b ", "c"}},
		{" a b c d ", 2, []string{" a b ", "c d "}},
	}
	for _, tt := range tests {
		got := splitWords(tt.text, tt.n)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitWords(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
		}
		if strings.Join(got, "") != tt.text {
			t.Errorf("splitWords(%q, %d) does not reassemble", tt.text, tt.n)
		}
	}
}
