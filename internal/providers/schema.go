package providers

// CleanSchemaForProvider normalizes a tool parameter schema before it goes on
// the wire. Anthropic requires input_schema to be an object schema even for
// zero-argument tools, and MCP servers frequently attach a "$schema" key that
// some validators reject.
func CleanSchemaForProvider(provider string, schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema)+2)
	for k, v := range schema {
		if k == "$schema" {
			continue
		}
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]interface{}{}
	}
	return out
}

// CleanToolSchemas converts tool definitions into the OpenAI-compatible wire
// shape with cleaned parameter schemas.
func CleanToolSchemas(provider string, tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  CleanSchemaForProvider(provider, t.Function.Parameters),
			},
		})
	}
	return out
}
