package agent

import (
	"errors"

	"calendarbot/internal/domain"
)

// ErrEmptyHistory is returned when nothing is left to send to the model
// after the history has been normalized.
var ErrEmptyHistory = errors.New("agent: history is empty after normalization")

// normalizeHistory prepares a history for a model call. The chat APIs reject
// tool answers without a matching call and repeated same-role turns, so:
//  1. tool messages whose call id no assistant message issued, or whose
//     content is empty, are dropped;
//  2. consecutive non-tool messages of the same role collapse into the later;
//  3. step 1 runs again, since a collapsed assistant may have owned calls.
//
// The input slice is not modified.
func normalizeHistory(history []domain.Message) ([]domain.Message, error) {
	out := dropOrphanToolMessages(history)
	out = collapseSameRole(out)
	out = dropOrphanToolMessages(out)
	if len(out) == 0 {
		return nil, ErrEmptyHistory
	}
	return out, nil
}

func dropOrphanToolMessages(history []domain.Message) []domain.Message {
	issued := make(map[string]struct{})
	for _, m := range history {
		if m.Role != domain.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			issued[tc.ID] = struct{}{}
		}
	}

	out := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if m.Role == domain.RoleTool {
			if m.Content == "" {
				continue
			}
			if _, ok := issued[m.ToolCallID]; !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func collapseSameRole(history []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if n := len(out); n > 0 && m.Role != domain.RoleTool && out[n-1].Role == m.Role {
			out[n-1] = m
			continue
		}
		out = append(out, m)
	}
	return out
}
