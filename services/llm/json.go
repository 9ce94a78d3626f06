package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a surrounding ``` or ```json code fence and any prose
// around the first JSON object or array in s.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// drop the info string ("json", "JSON", ...) up to the first newline
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// DecodeJSON strips fences from raw and unmarshals it into out.
func DecodeJSON(raw string, out any) error {
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: malformed JSON response: %v", ErrExternalService, err)
	}
	return nil
}

// ChatJSON runs a JSON-mode completion and decodes the answer into out.
func ChatJSON(ctx context.Context, c Client, messages []Message, opts Options, out any) error {
	opts.JSON = true
	raw, err := c.Chat(ctx, messages, opts)
	if err != nil {
		return err
	}
	return DecodeJSON(raw, out)
}
