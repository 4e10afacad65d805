package format

import (
	"errors"
	"strings"
	"testing"

	"github.com/lamim/prefharvest/pkg/models"
)

func TestForDPOPassesThrough(t *testing.T) {
	result, err := ForDPO(Example{"prompt": "p", "chosen": "c", "rejected": "r"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["prompt"] != "p" || result["chosen"] != "c" || result["rejected"] != "r" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestForDPOImplicitPrompt(t *testing.T) {
	result, err := ForDPO(Example{"chosen": "c", "rejected": "r"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result["prompt"]; ok {
		t.Fatal("prompt should not be synthesized when absent")
	}
}

func TestForDPOMissingRequiredKeys(t *testing.T) {
	if _, err := ForDPO(Example{"rejected": "r"}); err == nil {
		t.Fatal("expected error for missing chosen")
	}
	if _, err := ForDPO(Example{"chosen": "c"}); err == nil {
		t.Fatal("expected error for missing rejected")
	}
}

func TestForRewardModel(t *testing.T) {
	result, err := ForRewardModel(Example{"prompt": "p", "chosen": "c", "rejected": "r"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["prompt"] != "p" {
		t.Fatalf("expected prompt carried through, got %v", result)
	}

	if _, err := ForRewardModel(Example{"prompt": "p"}); err == nil {
		t.Fatal("expected error for missing chosen/rejected")
	}
}

func TestForSFTPromptResponse(t *testing.T) {
	result, err := ForSFT(Example{"prompt": "hi", "response": "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	messages, ok := result["messages"].([]models.Message)
	if !ok {
		t.Fatalf("expected messages conversation, got %T", result["messages"])
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != "user" || messages[0].Content != "hi" {
		t.Fatalf("unexpected user turn: %+v", messages[0])
	}
	if messages[1].Role != "assistant" || messages[1].Content != "hello" {
		t.Fatalf("unexpected assistant turn: %+v", messages[1])
	}
}

func TestForSFTPriorityOrder(t *testing.T) {
	// messages wins over everything else
	result, err := ForSFT(Example{"messages": "conv", "text": "t", "prompt": "p", "response": "r"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["messages"] != "conv" {
		t.Fatalf("expected messages pass-through, got %v", result)
	}

	// then text
	result, err = ForSFT(Example{"text": "raw", "prompt": "p", "response": "r"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["text"] != "raw" {
		t.Fatalf("expected text pass-through, got %v", result)
	}
}

func TestForSFTChosenString(t *testing.T) {
	result, err := ForSFT(Example{"prompt": "q", "chosen": "best"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	messages := result["messages"].([]models.Message)
	if messages[1].Content != "best" {
		t.Fatalf("expected chosen as assistant turn, got %+v", messages[1])
	}
}

func TestForSFTChosenMessageList(t *testing.T) {
	chosen := []any{
		map[string]any{"role": "assistant", "content": "answer"},
	}
	prompt := []any{
		map[string]any{"role": "user", "content": "question"},
	}

	result, err := ForSFT(Example{"prompt": prompt, "chosen": chosen})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	messages := result["messages"].([]models.Message)
	if len(messages) != 2 {
		t.Fatalf("expected prompt+chosen concatenation of 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "question" || messages[1].Content != "answer" {
		t.Fatalf("unexpected concatenation: %+v", messages)
	}
}

func TestForSFTUnformattable(t *testing.T) {
	_, err := ForSFT(Example{"foo": 1, "bar": 2})
	if !errors.Is(err, ErrUnformattable) {
		t.Fatalf("expected ErrUnformattable, got %v", err)
	}
	// Error should name the available keys
	if got := err.Error(); !strings.Contains(got, "bar") || !strings.Contains(got, "foo") {
		t.Fatalf("expected error to list available keys, got %q", got)
	}
}

func TestConvertWinnerFormat(t *testing.T) {
	tests := []struct {
		name         string
		example      Example
		wantChosen   string
		wantRejected string
	}{
		{
			name:         "winner a",
			example:      Example{"winner_model_a": 1, "response_a": "X", "response_b": "Y"},
			wantChosen:   "X",
			wantRejected: "Y",
		},
		{
			name:         "winner b",
			example:      Example{"winner_model_b": 1, "response_a": "X", "response_b": "Y"},
			wantChosen:   "Y",
			wantRejected: "X",
		},
		{
			name:         "tie falls back to a side",
			example:      Example{"response_a": "X", "response_b": "Y"},
			wantChosen:   "X",
			wantRejected: "Y",
		},
		{
			name:         "json float flags",
			example:      Example{"winner_model_b": float64(1), "response_a": "X", "response_b": "Y"},
			wantChosen:   "Y",
			wantRejected: "X",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertWinnerFormat(tt.example)
			if result["chosen"] != tt.wantChosen || result["rejected"] != tt.wantRejected {
				t.Fatalf("got chosen=%v rejected=%v, want chosen=%v rejected=%v",
					result["chosen"], result["rejected"], tt.wantChosen, tt.wantRejected)
			}
		})
	}
}

func TestConvertWinnerFormatCarriesPrompt(t *testing.T) {
	result := ConvertWinnerFormat(Example{"winner_model_a": 1, "response_a": "X", "response_b": "Y", "prompt": "p"})
	if result["prompt"] != "p" {
		t.Fatalf("expected prompt carried through, got %v", result)
	}
}

func TestPrepareConversationFallback(t *testing.T) {
	messages := []models.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}

	got, err := PrepareConversation(messages, nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "<|user|>\nhi\n<|assistant|>\nhello\n"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

type staticRenderer struct {
	output string
}

func (r *staticRenderer) ApplyChatTemplate(messages []models.Message, addGenerationPrompt bool) (string, error) {
	return r.output, nil
}

func TestPrepareConversationDelegatesToRenderer(t *testing.T) {
	got, err := PrepareConversation(nil, &staticRenderer{output: "rendered"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "rendered" {
		t.Fatalf("expected renderer output, got %q", got)
	}
}

func TestTemplateRenderer(t *testing.T) {
	renderer, err := NewTemplateRenderer(
		`{{range .Messages}}[{{.Role}}] {{.Content}}
{{end}}{{if .AddGenerationPrompt}}[assistant] {{end}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := renderer.ApplyChatTemplate([]models.Message{
		{Role: "user", Content: "hi"},
	}, true)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	want := "[user] hi\n[assistant] "
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNewTemplateRendererRejectsBrokenTemplate(t *testing.T) {
	if _, err := NewTemplateRenderer("{{.Messages"); err == nil {
		t.Fatal("expected error for unparseable template")
	}
	if _, err := NewTemplateRenderer("{{call .Foo}}"); err == nil {
		t.Fatal("expected error for forbidden directive")
	}
}

func TestLastContent(t *testing.T) {
	if got := LastContent("plain"); got != "plain" {
		t.Fatalf("expected plain string, got %q", got)
	}

	list := []any{
		map[string]any{"role": "user", "content": "first"},
		map[string]any{"role": "assistant", "content": "last"},
	}
	if got := LastContent(list); got != "last" {
		t.Fatalf("expected last message content, got %q", got)
	}

	if got := LastContent([]any{}); got != "" {
		t.Fatalf("expected empty for empty list, got %q", got)
	}
}
