// Package anthropicadapter is a real (non-mock) Adapter implementation:
// it treats Claude as the black-box agent capability of spec §4.7,
// turning a task's prompt into a Claim by asking the model to report, in
// a constrained JSON shape, which files it changed. The orchestrator
// still never trusts this claim directly — it always flows through the
// Completion Verifier, exactly like any other adapter's claim.
package anthropicadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jordigilh/taskforge/pkg/adapter"
	tferrors "github.com/jordigilh/taskforge/pkg/shared/errors"
	"github.com/jordigilh/taskforge/pkg/task"
)

// claimSchema is what we instruct the model to respond with; we parse
// its text response as this shape rather than trusting free narration.
type claimSchema struct {
	Changes []struct {
		FilePath string `json:"file_path"`
		Action   string `json:"action"`
	} `json:"changes"`
	Artifacts []string `json:"artifacts"`
	Summary   string   `json:"summary"`
}

// Adapter drives one Claude model as the worker agent.
type Adapter struct {
	client anthropic.Client
	model  anthropic.Model

	mu      sync.Mutex
	pending map[string]adapter.Result // keyed by VTID, set by Execute and consumed by WaitForCompletion
}

// New constructs an Adapter. apiKey may be empty to use the
// ANTHROPIC_API_KEY environment variable, matching the SDK's default
// client behavior.
func New(apiKey string, model anthropic.Model) *Adapter {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Adapter{client: anthropic.NewClient(opts...), model: model, pending: make(map[string]adapter.Result)}
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) Initialize(ctx context.Context) error { return nil }

func (a *Adapter) Execute(ctx context.Context, t task.Task, prompt string, hints map[string]any) (adapter.Result, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(t, prompt))),
		},
	})
	if err != nil {
		return adapter.Result{}, tferrors.Kind(tferrors.ErrDispatchError, "anthropic messages.new", err)
	}

	text := extractText(message)
	result := adapter.Result{
		Success: true,
		Output:  text,
		Tokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}

	a.mu.Lock()
	a.pending[t.VTID] = result
	a.mu.Unlock()

	return result, nil
}

// WaitForCompletion consumes the response Execute already obtained for
// this task, rather than re-issuing a second paid model call: the
// Messages API has no separate async completion step, so Execute's
// single call is the whole of the work. It only falls back to calling
// Execute itself defensively, for a caller that invokes
// WaitForCompletion without having dispatched through Execute first.
func (a *Adapter) WaitForCompletion(ctx context.Context, t task.Task) (task.Claim, error) {
	a.mu.Lock()
	result, ok := a.pending[t.VTID]
	if ok {
		delete(a.pending, t.VTID)
	}
	a.mu.Unlock()

	if !ok {
		var err error
		result, err = a.Execute(ctx, t, t.Description, t.Attributes)
		if err != nil {
			return task.Claim{}, err
		}
	}
	return parseClaim(result.Output)
}

func (a *Adapter) Cancel(ctx context.Context, t task.Task) (bool, error) {
	// The Messages API has no server-side cancellation; best effort is
	// to rely on ctx cancellation unwinding the in-flight request.
	return true, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) (adapter.HealthStatus, error) {
	return adapter.HealthStatus{Status: "ok", Details: map[string]any{"model": string(a.model)}}, nil
}

func (a *Adapter) Shutdown(ctx context.Context) error { return nil }

func buildPrompt(t task.Task, prompt string) string {
	return fmt.Sprintf(
		"Task %s: %s\n\n%s\n\nTarget paths: %v\n\nRespond ONLY with a JSON object shaped like "+
			`{"changes":[{"file_path":"...","action":"created|modified|deleted"}],"artifacts":["..."],"summary":"..."}`,
		t.VTID, t.Title, prompt, t.TargetPaths,
	)
}

func extractText(message *anthropic.Message) string {
	var out string
	for _, block := range message.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}

func parseClaim(raw string) (task.Claim, error) {
	var parsed claimSchema
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		// The model claimed something we cannot parse as structured
		// proof; surface nothing rather than guessing.
		return task.Claim{Output: raw}, nil
	}

	claim := task.Claim{Artifacts: parsed.Artifacts, Output: raw}
	for _, c := range parsed.Changes {
		claim.Changes = append(claim.Changes, task.ChangeClaim{
			FilePath: c.FilePath,
			Action:   task.ChangeAction(c.Action),
		})
	}
	return claim, nil
}
