// Package tools provides the data-lookup capabilities the assistant can
// invoke, a registry to hold them, an intent matcher that maps chat text
// to tool calls, and an executor with a search fallback tier.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is a single capability. Execute returns a JSON document on
// success; failures are ordinary errors, the executor turns them into
// outcome payloads.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params map[string]string) (json.RawMessage, error)
}

// marshalPayload encodes a tool payload. Payload structs in this
// package contain only marshal-safe fields.
func marshalPayload(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
