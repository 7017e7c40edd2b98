package chat

// ToolDefinition is the JSON-schema description of a tool surfaced to the
// language model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}
