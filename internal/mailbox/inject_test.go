package mailbox

import (
	"strings"
	"testing"
	"time"
)

func TestFormatForPrompt(t *testing.T) {
	if FormatForPrompt(nil) != "" {
		t.Error("no messages should format to an empty string")
	}

	msgs := []Message{
		{From: "analyst", Kind: KindDataShare, Subject: "audience_report", Payload: map[string]any{"share_id": "s1", "b": 2}},
		{From: "strategist", Kind: KindStatusUpdate, Subject: "plan ready"},
		{From: "analyst", Kind: KindDataShare, Subject: "weekly_kpis"},
	}
	out := FormatForPrompt(msgs)

	if !strings.HasPrefix(out, "<peer-messages>\n[DATA_SHARE]") {
		t.Errorf("groups should follow first-seen order:\n%s", out)
	}
	if strings.Index(out, "weekly_kpis") > strings.Index(out, "[STATUS_UPDATE]") {
		t.Error("messages of the same kind should be grouped together")
	}
	if !strings.Contains(out, "Payload: b=2, share_id=s1") {
		t.Errorf("payload keys should be sorted:\n%s", out)
	}
}

func TestFilterMessages(t *testing.T) {
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{From: "a", Kind: KindStatusUpdate, Timestamp: base},
		{From: "b", Kind: KindDataShare, Timestamp: base.Add(time.Minute)},
		{From: "a", Kind: KindDataShare, Timestamp: base.Add(2 * time.Minute)},
	}

	tests := []struct {
		name string
		opts FilterOptions
		want int
	}{
		{"no filter", FilterOptions{}, 3},
		{"kind", FilterOptions{Kinds: []Kind{KindDataShare}}, 2},
		{"since", FilterOptions{Since: base}, 2},
		{"from", FilterOptions{From: "a"}, 2},
		{"max keeps newest", FilterOptions{MaxMessages: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterMessages(msgs, tt.opts); len(got) != tt.want {
				t.Errorf("FilterMessages() = %d, want %d", len(got), tt.want)
			}
		})
	}

	if got := FilterMessages(msgs, FilterOptions{MaxMessages: 1}); got[0].From != "a" || got[0].Kind != KindDataShare {
		t.Errorf("MaxMessages should keep the most recent, got %+v", got[0])
	}
	if FormatFiltered(msgs, FilterOptions{From: "nobody"}) != "" {
		t.Error("empty filter result should format to empty string")
	}
}
