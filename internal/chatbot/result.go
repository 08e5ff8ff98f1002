package chatbot

import (
	"encoding/json"
	"strings"
)

// Result is the resolved webhook response: either Reply or Malformed.
type Result interface {
	isResult()
}

// Reply carries the bot's answer.
type Reply struct {
	Text string
}

// Malformed keeps a body that carried no usable reply.
type Malformed struct {
	Raw json.RawMessage
}

func (Reply) isResult()     {}
func (Malformed) isResult() {}

// resolve accepts an object with a non-empty string "reply", or a JSON string
// that either encodes such an object or is itself the reply text.
func resolve(body []byte) Result {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Malformed{Raw: append(json.RawMessage(nil), body...)}
	}
	switch v := decoded.(type) {
	case map[string]any:
		if text, ok := replyField(v); ok {
			return Reply{Text: text}
		}
	case string:
		var inner any
		if err := json.Unmarshal([]byte(v), &inner); err != nil {
			if strings.TrimSpace(v) != "" {
				return Reply{Text: v}
			}
			break
		}
		if obj, ok := inner.(map[string]any); ok {
			if text, ok := replyField(obj); ok {
				return Reply{Text: text}
			}
		}
	}
	return Malformed{Raw: append(json.RawMessage(nil), body...)}
}

func replyField(obj map[string]any) (string, bool) {
	text, ok := obj["reply"].(string)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}
