// Package reasoning adapts LLM providers to the capture.Analyzer contract: each
// provider sends the screen context with the task-detection prompt and parses the
// JSON task list from the reply.
package reasoning

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ankittk/taskwatch/internal/capture"
	"github.com/tidwall/gjson"
)

// ErrMissingAPIKey means the selected provider needs a key and none is stored.
var ErrMissingAPIKey = errors.New("api key required for provider")

// ErrDisabled means analysis is switched off in the provider configuration.
var ErrDisabled = errors.New("reasoning provider disabled")

const maxTitleLen = 80

// DetectionPrompt instructs the model to extract actionable tasks as JSON.
const DetectionPrompt = `You read the text of a user's screen and find things they need to act on.

Consider:
- TODO items and checklists
- messages or notifications that expect a reply
- deadlines, meetings and calendar entries
- errors or warnings that need attention
- forms left unfinished
- notes and reminders

For every task give a short title (at most 50 characters), a one-sentence description
and a priority between 0.1 and 1.0 reflecting urgency and importance.

Answer with JSON only, in exactly this shape:
{"tasks": [{"title": "...", "description": "...", "priority": 0.8}]}

If nothing needs doing, answer {"tasks": []}.`

// BuildPrompt joins the detection prompt and the formatted context for providers that
// take a single prompt string.
func BuildPrompt(c capture.Context) string {
	return DetectionPrompt + "\n\n---\n\n" + c.FormatForLLM()
}

// stripJSONFences removes a surrounding markdown code fence, if any.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractObject returns the outermost {...} span so prose around the JSON is ignored.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// ParseTasks reads {"tasks": [...]} from a model reply. Entries without a title are
// dropped; priorities are clamped to [0, 1] and default to 0.5 when missing.
func ParseTasks(reply string) ([]capture.DetectedTask, error) {
	body := extractObject(stripJSONFences(reply))
	if body == "" || !gjson.Valid(body) {
		return nil, fmt.Errorf("reply is not JSON: %q", truncate(reply, 120))
	}
	list := gjson.Get(body, "tasks")
	if !list.Exists() {
		return nil, errors.New(`reply has no "tasks" field`)
	}
	if !list.IsArray() {
		return nil, errors.New(`"tasks" is not an array`)
	}
	out := []capture.DetectedTask{}
	list.ForEach(func(_, item gjson.Result) bool {
		title := strings.TrimSpace(item.Get("title").String())
		if title == "" {
			return true
		}
		p := 0.5
		if pr := item.Get("priority"); pr.Exists() {
			p = pr.Float()
		}
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		out = append(out, capture.DetectedTask{
			Title:       truncate(title, maxTitleLen),
			Description: strings.TrimSpace(item.Get("description").String()),
			Priority:    p,
		})
		return true
	})
	return out, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
