package mailbox

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatForPrompt formats messages into a block suitable for injection into
// a model prompt. Messages are grouped by kind, preserving order within
// each group.
//
// Returns an empty string if there are no messages.
func FormatForPrompt(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	groups := make(map[Kind][]Message)
	var kindOrder []Kind
	for _, msg := range messages {
		if _, exists := groups[msg.Kind]; !exists {
			kindOrder = append(kindOrder, msg.Kind)
		}
		groups[msg.Kind] = append(groups[msg.Kind], msg)
	}

	var b strings.Builder
	b.WriteString("<peer-messages>\n")

	for i, k := range kindOrder {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("[%s]\n", strings.ToUpper(string(k))))
		for _, msg := range groups[k] {
			b.WriteString(fmt.Sprintf("  From: %s\n", msg.From))
			if msg.Subject != "" {
				b.WriteString(fmt.Sprintf("  Subject: %s\n", msg.Subject))
			}
			if len(msg.Payload) > 0 {
				b.WriteString(fmt.Sprintf("  Payload: %s\n", formatPayload(msg.Payload)))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("</peer-messages>")
	return b.String()
}

// FilterOptions controls which messages are included by FormatFiltered.
type FilterOptions struct {
	Kinds       []Kind    // Only include these kinds (empty = all)
	Since       time.Time // Only messages after this time (zero = all)
	From        string    // Only messages from this sender (empty = all)
	MaxMessages int       // Maximum messages to include (0 = unlimited)
}

// FormatFiltered applies filters to messages and formats the result using
// FormatForPrompt. Filters are applied in order: kind, since, from, then
// max messages (keeping the most recent).
func FormatFiltered(messages []Message, opts FilterOptions) string {
	return FormatForPrompt(FilterMessages(messages, opts))
}

// FilterMessages returns the subset of messages matching opts.
func FilterMessages(messages []Message, opts FilterOptions) []Message {
	var result []Message

	kindSet := make(map[Kind]bool, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kindSet[k] = true
	}

	for _, msg := range messages {
		if len(kindSet) > 0 && !kindSet[msg.Kind] {
			continue
		}
		if !opts.Since.IsZero() && !msg.Timestamp.After(opts.Since) {
			continue
		}
		if opts.From != "" && msg.From != opts.From {
			continue
		}
		result = append(result, msg)
	}

	if opts.MaxMessages > 0 && len(result) > opts.MaxMessages {
		result = result[len(result)-opts.MaxMessages:]
	}

	return result
}

// formatPayload formats a payload map as a compact key=value string.
// Keys are sorted for deterministic output.
func formatPayload(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
