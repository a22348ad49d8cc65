package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/memory"
	"github.com/nextlevelbuilder/goaide/internal/store"
)

// Memory tools let the model manage the workspace's long-term memory
// explicitly. The learning middleware writes memories on its own; these
// are the user-facing verbs.

func parseMemoryTypes(arg string) ([]string, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, nil
	}
	var types []string
	for _, part := range strings.Split(arg, ",") {
		t := strings.ToLower(strings.TrimSpace(part))
		if t == "" {
			continue
		}
		if !memory.ValidType(t) {
			return nil, fmt.Errorf("invalid memory type '%s' (use semantic, episodic, or procedural)", t)
		}
		types = append(types, t)
	}
	return types, nil
}

func parseMetadataArg(arg string) (map[string]interface{}, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(arg), &meta); err != nil {
		return nil, fmt.Errorf("Invalid JSON data - %v", err)
	}
	return meta, nil
}

func formatMemoryLine(m memory.Memory, withDate bool) string {
	if withDate {
		return fmt.Sprintf("- [%s] (%s, %.2f, %s) %s",
			m.ID, m.Type, m.Confidence, m.CreatedAt.Format("2006-01-02"), m.Content)
	}
	return fmt.Sprintf("- [%s] (%s, %.2f) %s", m.ID, m.Type, m.Confidence, m.Content)
}

// --- save_memory ---

type SaveMemoryTool struct {
	memories *memory.Store
}

func NewSaveMemoryTool(memories *memory.Store) *SaveMemoryTool {
	return &SaveMemoryTool{memories: memories}
}

func (t *SaveMemoryTool) Name() string { return "save_memory" }

func (t *SaveMemoryTool) Description() string {
	return "Save a fact, preference, or procedure to long-term memory so it survives across conversations"
}

func (t *SaveMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "What to remember, phrased as a standalone statement",
			},
			"memory_type": map[string]interface{}{
				"type":        "string",
				"description": "semantic (facts), episodic (events), or procedural (how-tos). Default semantic.",
				"enum":        []string{"semantic", "episodic", "procedural"},
			},
			"confidence": map[string]interface{}{
				"type":        "number",
				"description": "How certain the memory is, 0 to 1. Default 0.7.",
			},
			"metadata": map[string]interface{}{
				"type":        "string",
				"description": "Optional JSON object of extra attributes",
			},
		},
		"required": []string{"content"},
	}
}

func (t *SaveMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	content, _ := args["content"].(string)
	if strings.TrimSpace(content) == "" {
		return ErrorResult("content is required")
	}

	memType := memory.TypeSemantic
	if mt, ok := args["memory_type"].(string); ok && mt != "" {
		mt = strings.ToLower(strings.TrimSpace(mt))
		if !memory.ValidType(mt) {
			return ErrorResult(fmt.Sprintf("Error: invalid memory type '%s' (use semantic, episodic, or procedural)", mt))
		}
		memType = mt
	}

	confidence := 0.0
	if c, ok := args["confidence"].(float64); ok {
		confidence = c
	}

	metaArg, _ := args["metadata"].(string)
	meta, err := parseMetadataArg(metaArg)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}

	saved, err := t.memories.Add(ctx, memory.AddParams{
		Content:    content,
		Type:       memType,
		Confidence: confidence,
		Source:     memory.SourceExplicit,
		Metadata:   meta,
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error saving memory: %v", err))
	}
	return NewResult(fmt.Sprintf("Memory saved: %s (%s, confidence %.2f)", saved.ID, saved.Type, saved.Confidence))
}

// --- search_memory ---

type SearchMemoryTool struct {
	memories *memory.Store
}

func NewSearchMemoryTool(memories *memory.Store) *SearchMemoryTool {
	return &SearchMemoryTool{memories: memories}
}

func (t *SearchMemoryTool) Name() string { return "search_memory" }

func (t *SearchMemoryTool) Description() string {
	return "Search long-term memory by keyword, highest confidence first"
}

func (t *SearchMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Keyword or phrase to look for",
			},
			"num_results": map[string]interface{}{
				"type":        "integer",
				"description": "Max results (default 10)",
			},
			"min_confidence": map[string]interface{}{
				"type":        "number",
				"description": "Minimum confidence, 0 to 1 (default 0)",
			},
			"memory_types": map[string]interface{}{
				"type":        "string",
				"description": "Optional comma-separated types to include (semantic, episodic, procedural)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ErrorResult("query is required")
	}

	limit := 10
	if n, ok := args["num_results"].(float64); ok && n > 0 {
		limit = int(n)
	}
	minConfidence := 0.0
	if c, ok := args["min_confidence"].(float64); ok && c > 0 {
		minConfidence = c
	}
	typesArg, _ := args["memory_types"].(string)
	types, err := parseMemoryTypes(typesArg)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}

	results, err := t.memories.Search(ctx, memory.SearchParams{
		Query:         query,
		Limit:         limit,
		MinConfidence: minConfidence,
		Types:         types,
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error searching memory: %v", err))
	}
	if len(results) == 0 {
		return NewResult(fmt.Sprintf("No memories found matching '%s'.", query))
	}

	lines := []string{fmt.Sprintf("Memories matching '%s':", query)}
	for _, m := range results {
		lines = append(lines, formatMemoryLine(m, false))
	}
	return NewResult(strings.Join(lines, "\n"))
}

// --- update_memory ---

type UpdateMemoryTool struct {
	memories *memory.Store
}

func NewUpdateMemoryTool(memories *memory.Store) *UpdateMemoryTool {
	return &UpdateMemoryTool{memories: memories}
}

func (t *UpdateMemoryTool) Name() string { return "update_memory" }

func (t *UpdateMemoryTool) Description() string {
	return "Update a memory's content, confidence, or metadata by ID"
}

func (t *UpdateMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"memory_id": map[string]interface{}{
				"type":        "string",
				"description": "Memory ID, e.g. mem-3",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "New content",
			},
			"confidence": map[string]interface{}{
				"type":        "number",
				"description": "New confidence, 0 to 1",
			},
			"metadata": map[string]interface{}{
				"type":        "string",
				"description": "JSON object merged into existing metadata",
			},
		},
		"required": []string{"memory_id"},
	}
}

func (t *UpdateMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, _ := args["memory_id"].(string)
	if strings.TrimSpace(id) == "" {
		return ErrorResult("memory_id is required")
	}

	var params memory.UpdateParams
	changed := false
	if content, ok := args["content"].(string); ok && content != "" {
		params.Content = &content
		changed = true
	}
	if c, ok := args["confidence"].(float64); ok {
		params.Confidence = &c
		changed = true
	}
	if metaArg, ok := args["metadata"].(string); ok && metaArg != "" {
		meta, err := parseMetadataArg(metaArg)
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
		params.Metadata = meta
		changed = true
	}
	if !changed {
		return ErrorResult("Error: nothing to update (pass content, confidence, or metadata)")
	}

	if _, err := t.memories.Update(ctx, id, params); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewResult(fmt.Sprintf("Memory %s not found.", id))
		}
		return ErrorResult(fmt.Sprintf("Error updating memory: %v", err))
	}
	return NewResult(fmt.Sprintf("Memory %s updated.", id))
}

// --- delete_memory ---

type DeleteMemoryTool struct {
	memories *memory.Store
}

func NewDeleteMemoryTool(memories *memory.Store) *DeleteMemoryTool {
	return &DeleteMemoryTool{memories: memories}
}

func (t *DeleteMemoryTool) Name() string { return "delete_memory" }

func (t *DeleteMemoryTool) Description() string {
	return "Delete a memory by ID"
}

func (t *DeleteMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"memory_id": map[string]interface{}{
				"type":        "string",
				"description": "Memory ID, e.g. mem-3",
			},
		},
		"required": []string{"memory_id"},
	}
}

func (t *DeleteMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, _ := args["memory_id"].(string)
	if strings.TrimSpace(id) == "" {
		return ErrorResult("memory_id is required")
	}
	deleted, err := t.memories.Delete(ctx, id)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error deleting memory: %v", err))
	}
	if !deleted {
		return NewResult(fmt.Sprintf("Memory %s not found.", id))
	}
	return NewResult(fmt.Sprintf("Memory %s deleted.", id))
}

// --- recent_memories ---

type RecentMemoriesTool struct {
	memories *memory.Store
}

func NewRecentMemoriesTool(memories *memory.Store) *RecentMemoriesTool {
	return &RecentMemoriesTool{memories: memories}
}

func (t *RecentMemoriesTool) Name() string { return "recent_memories" }

func (t *RecentMemoriesTool) Description() string {
	return "List memories created recently, newest first"
}

func (t *RecentMemoriesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"days": map[string]interface{}{
				"type":        "integer",
				"description": "Look-back window in days (default 7)",
			},
			"num_results": map[string]interface{}{
				"type":        "integer",
				"description": "Max results (default 10)",
			},
			"memory_types": map[string]interface{}{
				"type":        "string",
				"description": "Optional comma-separated types to include",
			},
		},
	}
}

func (t *RecentMemoriesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	days := 7
	if d, ok := args["days"].(float64); ok && d > 0 {
		days = int(d)
	}
	limit := 10
	if n, ok := args["num_results"].(float64); ok && n > 0 {
		limit = int(n)
	}
	typesArg, _ := args["memory_types"].(string)
	types, err := parseMemoryTypes(typesArg)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}

	results, err := t.memories.Recent(ctx, days, limit, types)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error listing memories: %v", err))
	}
	if len(results) == 0 {
		return NewResult(fmt.Sprintf("No memories in the last %d days.", days))
	}

	lines := []string{fmt.Sprintf("Memories from the last %d days:", days)}
	for _, m := range results {
		lines = append(lines, formatMemoryLine(m, true))
	}
	return NewResult(strings.Join(lines, "\n"))
}

// --- export_memories ---

type ExportMemoriesTool struct {
	memories *memory.Store
}

func NewExportMemoriesTool(memories *memory.Store) *ExportMemoriesTool {
	return &ExportMemoriesTool{memories: memories}
}

func (t *ExportMemoriesTool) Name() string { return "export_memories" }

func (t *ExportMemoriesTool) Description() string {
	return "Export all memories as JSON for backup or transfer"
}

func (t *ExportMemoriesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"min_confidence": map[string]interface{}{
				"type":        "number",
				"description": "Only export memories at or above this confidence (default 0)",
			},
		},
	}
}

func (t *ExportMemoriesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	minConfidence := 0.0
	if c, ok := args["min_confidence"].(float64); ok && c > 0 {
		minConfidence = c
	}
	export, err := t.memories.Export(ctx, minConfidence)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error exporting memories: %v", err))
	}
	payload, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error exporting memories: %v", err))
	}
	return NewResult(string(payload))
}

// --- import_memories ---

type ImportMemoriesTool struct {
	memories *memory.Store
}

func NewImportMemoriesTool(memories *memory.Store) *ImportMemoriesTool {
	return &ImportMemoriesTool{memories: memories}
}

func (t *ImportMemoriesTool) Name() string { return "import_memories" }

func (t *ImportMemoriesTool) Description() string {
	return "Import memories from a JSON export produced by export_memories"
}

func (t *ImportMemoriesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data": map[string]interface{}{
				"type":        "string",
				"description": "JSON export payload",
			},
		},
		"required": []string{"data"},
	}
}

func (t *ImportMemoriesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	dataArg, _ := args["data"].(string)
	if strings.TrimSpace(dataArg) == "" {
		return ErrorResult("data is required")
	}
	var export memory.Export
	if err := json.Unmarshal([]byte(dataArg), &export); err != nil {
		return ErrorResult(fmt.Sprintf("Error: Invalid JSON data - %v", err))
	}
	imported, skipped, err := t.memories.Import(ctx, &export, true)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error importing memories: %v", err))
	}
	return NewResult(fmt.Sprintf("Imported %d memories (%d skipped).", imported, skipped))
}

// MemoryTools returns the long-term memory tool set.
func MemoryTools(memories *memory.Store) []Tool {
	return []Tool{
		NewSaveMemoryTool(memories),
		NewSearchMemoryTool(memories),
		NewUpdateMemoryTool(memories),
		NewDeleteMemoryTool(memories),
		NewRecentMemoriesTool(memories),
		NewExportMemoriesTool(memories),
		NewImportMemoriesTool(memories),
	}
}
