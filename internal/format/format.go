// Package format provides pure transformation functions that reshape
// loosely-typed preference examples into the formats expected by DPO,
// reward-model and SFT trainers.
package format

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lamim/prefharvest/pkg/models"
)

// Example is a loosely-typed example mapping, as loaded from JSON
type Example = map[string]any

// ErrUnformattable is returned when no formatter branch matches the
// available keys of an example.
var ErrUnformattable = errors.New("cannot format example")

// ForDPO formats an example for DPO training. The example must carry
// chosen and rejected; prompt is passed through when present.
func ForDPO(example Example) (Example, error) {
	chosen, ok := example["chosen"]
	if !ok {
		return nil, fmt.Errorf("example missing required key %q", "chosen")
	}
	rejected, ok := example["rejected"]
	if !ok {
		return nil, fmt.Errorf("example missing required key %q", "rejected")
	}

	result := Example{
		"chosen":   chosen,
		"rejected": rejected,
	}
	if prompt, ok := example["prompt"]; ok {
		result["prompt"] = prompt
	}

	return result, nil
}

// ForRewardModel formats an example for reward model training. Same
// required keys as DPO; prompt is optional.
func ForRewardModel(example Example) (Example, error) {
	return ForDPO(example)
}

// ForSFT formats an example for SFT training, normalizing the supported
// input shapes to either a messages conversation or raw text.
//
// Priority order: messages pass-through, text pass-through,
// prompt+response synthesized into a two-turn conversation, prompt+chosen
// used with the chosen side as the completion.
func ForSFT(example Example) (Example, error) {
	if messages, ok := example["messages"]; ok {
		return Example{"messages": messages}, nil
	}

	if text, ok := example["text"]; ok {
		return Example{"text": text}, nil
	}

	prompt, hasPrompt := example["prompt"]
	if hasPrompt {
		if response, ok := example["response"]; ok {
			return Example{"messages": twoTurn(prompt, response)}, nil
		}

		if chosen, ok := example["chosen"]; ok {
			// Plain-text chosen becomes the assistant turn; a chosen
			// message list is appended to the prompt conversation.
			if chosenMsgs, isList := asMessageList(chosen); isList {
				promptMsgs, _ := asMessageList(prompt)
				return Example{"messages": append(promptMsgs, chosenMsgs...)}, nil
			}
			return Example{"messages": twoTurn(prompt, chosen)}, nil
		}
	}

	return nil, fmt.Errorf("%w for SFT: available keys %v", ErrUnformattable, exampleKeys(example))
}

// ConvertWinnerFormat converts a two-way labeled comparison (datasets with
// winner_model_a/winner_model_b flags) into chosen/rejected form. On a tie
// the "a" side is treated as chosen.
func ConvertWinnerFormat(example Example) Example {
	var chosen, rejected any

	switch {
	case asFlag(example["winner_model_a"]):
		chosen = example["response_a"]
		rejected = example["response_b"]
	case asFlag(example["winner_model_b"]):
		chosen = example["response_b"]
		rejected = example["response_a"]
	default:
		// Tie: fall back to the "a" side as chosen
		chosen = valueOr(example, "response_a", "")
		rejected = valueOr(example, "response_b", "")
	}

	result := Example{
		"chosen":   chosen,
		"rejected": rejected,
	}
	if prompt, ok := example["prompt"]; ok {
		result["prompt"] = prompt
	}

	return result
}

// ChatTemplateRenderer is the narrow capability a tokenizer-like
// collaborator needs to expose for chat rendering.
type ChatTemplateRenderer interface {
	ApplyChatTemplate(messages []models.Message, addGenerationPrompt bool) (string, error)
}

// PrepareConversation renders chat messages into plain text. When renderer
// is non-nil its chat template is applied; otherwise each message is
// rendered as a fixed-tag block:
//
//	<|role|>
//	content
func PrepareConversation(messages []models.Message, renderer ChatTemplateRenderer, addGenerationPrompt bool) (string, error) {
	if renderer != nil {
		return renderer.ApplyChatTemplate(messages, addGenerationPrompt)
	}

	var sb strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&sb, "<|%s|>\n%s\n", msg.Role, msg.Content)
	}

	return sb.String(), nil
}

// twoTurn builds a user/assistant conversation from prompt and completion
// values, stringifying non-string content.
func twoTurn(prompt, completion any) []models.Message {
	return []models.Message{
		{Role: "user", Content: asString(prompt)},
		{Role: "assistant", Content: asString(completion)},
	}
}

// asMessageList interprets a value as a message list. JSON decoding
// produces []any of map[string]any; typed []models.Message is accepted for
// in-memory examples.
func asMessageList(v any) ([]models.Message, bool) {
	switch list := v.(type) {
	case []models.Message:
		return list, true
	case []any:
		messages := make([]models.Message, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			messages = append(messages, models.Message{
				Role:    asString(m["role"]),
				Content: asString(m["content"]),
			})
		}
		return messages, true
	default:
		return nil, false
	}
}

// LastContent returns the text of a chosen/rejected field, taking the last
// message's content when the field is itself a message list.
func LastContent(v any) string {
	if messages, ok := asMessageList(v); ok {
		if len(messages) == 0 {
			return ""
		}
		return messages[len(messages)-1].Content
	}
	return asString(v)
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// asFlag interprets winner flags, which arrive as float64 from JSON and as
// int or bool from in-memory examples.
func asFlag(v any) bool {
	switch f := v.(type) {
	case bool:
		return f
	case int:
		return f == 1
	case float64:
		return f == 1
	default:
		return false
	}
}

func valueOr(example Example, key string, fallback any) any {
	if v, ok := example[key]; ok {
		return v
	}
	return fallback
}

func exampleKeys(example Example) []string {
	keys := make([]string, 0, len(example))
	for k := range example {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
