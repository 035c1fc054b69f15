package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-conveyor/conveyor/internal/orchestrator/state"
)

// webhookPayload is the Slack incoming-webhook body: plain text for
// clients that ignore blocks, rich blocks for the rest.
type webhookPayload struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks,omitempty"`
}

type block struct {
	Type string     `json:"type"`
	Text *blockText `json:"text,omitempty"`
}

type blockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func sectionBlock(text string) block {
	return block{Type: "section", Text: &blockText{Type: "mrkdwn", Text: text}}
}

func statusEmoji(status string) string {
	switch status {
	case string(state.StageSuccess):
		return "✅"
	case string(state.StageFailed):
		return "❌"
	default:
		return "🔄"
	}
}

// stageMessage formats a one-line stage completion notice.
func stageMessage(pipelineID, stage string, s state.StageSnapshot) string {
	verb := "completed successfully"
	if s.Status == state.StageFailed {
		verb = "failed"
	}
	retryInfo := ""
	if s.Retries > 0 {
		retryInfo = fmt.Sprintf(" (Retry %d)", s.Retries)
	}
	return fmt.Sprintf("%s Pipeline %s: %s stage %s%s.",
		statusEmoji(string(s.Status)), pipelineID, stage, verb, retryInfo)
}

// pipelineMessage formats the terminal pipeline notice: a headline plus
// blocks listing every stage with its status and retry count.
func pipelineMessage(snap state.Snapshot) (string, []block) {
	emoji := statusEmoji(string(snap.Status))
	text := fmt.Sprintf("%s Pipeline %s status: %s",
		emoji, snap.PipelineID, strings.ToUpper(string(snap.Status)))

	blocks := []block{
		sectionBlock(fmt.Sprintf("*%s Pipeline Status Update*\n*ID:* %s\n*Status:* %s",
			emoji, snap.PipelineID, strings.ToUpper(string(snap.Status)))),
		{Type: "divider"},
	}

	names := make([]string, 0, len(snap.Stages))
	for name := range snap.Stages {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		s := snap.Stages[name]
		retryInfo := ""
		if s.Retries > 0 {
			retryInfo = fmt.Sprintf(" (Retries: %d)", s.Retries)
		}
		lines = append(lines, fmt.Sprintf("%s *%s*: %s%s",
			statusEmoji(string(s.Status)), name, s.Status, retryInfo))
	}
	if len(lines) > 0 {
		blocks = append(blocks, sectionBlock(strings.Join(lines, "\n")))
	}
	return text, blocks
}

func errorsStatus(code int) error {
	return errors.Errorf("webhook returned status %d", code)
}
