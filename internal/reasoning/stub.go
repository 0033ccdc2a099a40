package reasoning

import (
	"context"
	"strings"

	"github.com/ankittk/taskwatch/internal/capture"
)

// Stub is a deterministic local analyzer: every line that looks like a TODO becomes a
// task. Useful for demos and tests without any LLM.
type Stub struct{}

func (Stub) Name() string { return "stub" }

func (Stub) Analyze(ctx context.Context, c capture.Context) ([]capture.DetectedTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []capture.DetectedTask{}
	for _, line := range strings.Split(c.Text, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		var title string
		p := 0.5
		switch {
		case strings.HasPrefix(upper, "TODO"):
			title = strings.TrimLeft(line[4:], ":- ")
		case strings.HasPrefix(upper, "FIXME"):
			title = strings.TrimLeft(line[5:], ":- ")
			p = 0.8
		case strings.HasPrefix(line, "- [ ]"):
			title = strings.TrimSpace(line[5:])
			p = 0.4
		}
		if title == "" {
			continue
		}
		out = append(out, capture.DetectedTask{Title: truncate(title, maxTitleLen), Priority: p})
	}
	return out, nil
}

func (Stub) HealthCheck(context.Context) error { return nil }
