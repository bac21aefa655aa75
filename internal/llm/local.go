package llm

import (
	"context"
)

type LocalProvider struct{}

func (LocalProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	return "", ErrLocalModeUnset
}
