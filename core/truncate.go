package core

// TruncateConversation bounds a conversation to at most maxMessages entries.
//
// The system message (when it leads the conversation) is always retained,
// followed by the most recent entries; the oldest non-system entries are
// dropped first. A retained window never begins with an orphaned tool result:
// if the cut would separate an assistant tool call from its results, the
// whole pair is dropped. The operation is deterministic and idempotent.
//
// maxMessages <= 0 disables truncation.
func TruncateConversation(msgs []Message, maxMessages int) []Message {
	if maxMessages <= 0 || len(msgs) <= maxMessages {
		return msgs
	}

	var system []Message
	rest := msgs
	if msgs[0].Role == RoleSystem {
		system = msgs[:1]
		rest = msgs[1:]
	}

	keep := maxMessages - len(system)
	if keep < 1 {
		keep = 1
	}
	cut := len(rest) - keep
	if cut < 0 {
		cut = 0
	}

	// A window starting on a tool result would orphan it from the assistant
	// tool call already dropped; drop the remainder of the pair too.
	for cut < len(rest) && rest[cut].IsToolResult() {
		cut++
	}

	out := make([]Message, 0, len(system)+len(rest)-cut)
	out = append(out, system...)
	out = append(out, rest[cut:]...)
	return out
}
