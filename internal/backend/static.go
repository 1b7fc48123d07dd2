package backend

import "context"

// Static always answers with the same text. It is the default backend and
// stands in for a real inference service during development.
type Static struct {
	text string
}

func NewStatic(text string) *Static {
	return &Static{text: text}
}

func (s *Static) Name() string { return KindStatic }

func (s *Static) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.text, nil
}
