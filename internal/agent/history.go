package agent

import "github.com/Keyring-Network/gavryn-tutor/internal/llm"

const DefaultMaxTurns = 20

// HistoryPolicy bounds a session to its system prompt plus the most recent
// MaxTurns user/assistant pairs. MaxTurns <= 0 keeps everything.
type HistoryPolicy struct {
	MaxTurns int
}

func (p HistoryPolicy) Trim(history []llm.Message) []llm.Message {
	if p.MaxTurns <= 0 || len(history) == 0 {
		return history
	}
	head := 0
	if history[0].Role == llm.RoleSystem {
		head = 1
	}
	limit := 2 * p.MaxTurns
	if len(history)-head <= limit {
		return history
	}
	trimmed := make([]llm.Message, 0, head+limit)
	trimmed = append(trimmed, history[:head]...)
	trimmed = append(trimmed, history[len(history)-limit:]...)
	return trimmed
}
