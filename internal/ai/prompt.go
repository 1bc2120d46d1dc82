package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/worker"
)

var roleBriefs = map[worker.Type]string{
	worker.TypeStrategy:   "You plan social media strategy: goals, audiences, channel mix and campaign calendars.",
	worker.TypeContent:    "You write social media content: posts, captions, threads and replies in the brand voice.",
	worker.TypeEngagement: "You manage community engagement: replies, comment moderation and follow-ups.",
	worker.TypeAnalytics:  "You analyse performance metrics and explain what changed and why.",
	worker.TypeCrisis:     "You handle reputational incidents: assess severity and draft holding statements.",
	worker.TypeScheduling: "You schedule posts for the best publishing windows per channel.",
	worker.TypeResearch:   "You research trends, competitors and hashtags and summarise findings.",
}

// BuildPrompt renders the prompt for one task. messages is optional context
// from other workers, already formatted.
func BuildPrompt(t worker.Type, tk task.Task, messages string) (string, error) {
	var sb strings.Builder

	brief, ok := roleBriefs[t]
	if !ok {
		return "", fmt.Errorf("no brief for worker type %q", t)
	}
	sb.WriteString(brief)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Tenant: %s\n", tk.TenantID)
	if action := tk.Label(task.LabelAction); action != "" {
		fmt.Fprintf(&sb, "Action: %s\n", action)
	}
	fmt.Fprintf(&sb, "Priority: %s\n", tk.Priority)

	if len(tk.Payload) > 0 {
		body, err := json.MarshalIndent(tk.Payload, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
		sb.WriteString("\nInput:\n")
		sb.Write(body)
		sb.WriteString("\n")
	}

	if messages != "" {
		sb.WriteString("\n")
		sb.WriteString(messages)
	}

	sb.WriteString("\nRespond with a single JSON object holding your result fields. ")
	sb.WriteString("If you cannot, respond with plain text.\n")
	return sb.String(), nil
}

// ParseOutput turns the agent's stdout into task output. A JSON object is
// used as is; anything else is returned under "text".
func ParseOutput(stdout []byte) map[string]any {
	trimmed := strings.TrimSpace(string(stdout))
	// tolerate a fenced code block around the JSON
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var obj map[string]any
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &obj) == nil {
		return obj
	}
	return map[string]any{"text": strings.TrimSpace(string(stdout))}
}
