package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// decode maps a tool call's raw argument map onto the request struct for
// that tool. Going through JSON keeps the field names aligned with the tool
// schema and spares every handler its own type assertions.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return out, fmt.Errorf("encode tool arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode tool arguments: %w", err)
	}
	return out, nil
}
