package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// KB tools store documents in the per-workspace chromem vector database.
// Embeddings come from whichever provider has a key configured; without
// one the KB tools report themselves unavailable rather than half-work.

const kbUnavailableMsg = "KB is not available. Configure an OpenAI or Zhipu API key for embeddings."

const zhipuEmbeddingBase = "https://open.bigmodel.cn/api/paas/v4"

// ResolveEmbeddingFunc picks an embedding function from configured provider
// keys. OpenAI wins, Zhipu serves as an OpenAI-compatible fallback. Returns
// nil when no key can produce embeddings.
func ResolveEmbeddingFunc(cfg *config.Config) chromem.EmbeddingFunc {
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		return chromem.NewEmbeddingFuncOpenAI(key, chromem.EmbeddingModelOpenAI3Small)
	}
	if key := cfg.Providers.Zhipu.APIKey; key != "" {
		base := cfg.Providers.Zhipu.BaseURL
		if base == "" {
			base = zhipuEmbeddingBase
		}
		return chromem.NewEmbeddingFuncOpenAICompat(base, key, "embedding-3", nil)
	}
	return nil
}

type kbEnv struct {
	router *workspace.Router
	embed  chromem.EmbeddingFunc
}

func (e *kbEnv) db(ctx context.Context) (*chromem.DB, error) {
	return e.router.VectorDB(ctx)
}

// collection fetches an existing collection, re-binding the embedding func
// since persisted collections cannot restore it on load.
func (e *kbEnv) collection(ctx context.Context, name string) (*chromem.Collection, error) {
	db, err := e.db(ctx)
	if err != nil {
		return nil, err
	}
	col := db.GetCollection(name, e.embed)
	if col == nil {
		return nil, fmt.Errorf("KB collection '%s' not found", name)
	}
	return col, nil
}

type kbDocument struct {
	Content  string      `json:"content"`
	Metadata interface{} `json:"metadata"`
}

// parseKBDocuments turns the documents JSON argument into chromem documents
// with fresh IDs and stringified metadata.
func parseKBDocuments(documentsJSON string) ([]chromem.Document, error) {
	var parsed []kbDocument
	if err := json.Unmarshal([]byte(documentsJSON), &parsed); err != nil {
		return nil, fmt.Errorf("Invalid JSON data - %v", err)
	}
	docs := make([]chromem.Document, 0, len(parsed))
	for _, d := range parsed {
		docs = append(docs, chromem.Document{
			ID:       uuid.NewString(),
			Content:  d.Content,
			Metadata: stringifyMetadata(d.Metadata),
		})
	}
	return docs, nil
}

func stringifyMetadata(v interface{}) map[string]string {
	switch meta := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		out := make(map[string]string, len(meta))
		for k, val := range meta {
			out[k] = fmt.Sprint(val)
		}
		return out
	default:
		return map[string]string{"metadata": fmt.Sprint(meta)}
	}
}

func formatKBDocLine(id, content string, metadata map[string]string, score float32, withScore bool) string {
	metaStr := ""
	if len(metadata) > 0 {
		metaStr = fmt.Sprintf(" [metadata: %v]", metadata)
	}
	scoreStr := ""
	if withScore {
		scoreStr = fmt.Sprintf("[%.2f] ", score)
	}
	return fmt.Sprintf("%s(id: %s) %s%s", scoreStr, id, content, metaStr)
}

// --- create_kb_collection ---

type CreateKBCollectionTool struct {
	kbEnv
}

func NewCreateKBCollectionTool(router *workspace.Router, embed chromem.EmbeddingFunc) *CreateKBCollectionTool {
	return &CreateKBCollectionTool{kbEnv{router: router, embed: embed}}
}

func (t *CreateKBCollectionTool) Name() string { return "create_kb_collection" }

func (t *CreateKBCollectionTool) Description() string {
	return "Create a knowledge base collection, replacing any existing one with the same name. Documents is an optional JSON array of {content, metadata} objects."
}

func (t *CreateKBCollectionTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"collection_name": map[string]interface{}{
				"type":        "string",
				"description": "Collection name (letters, numbers, underscores)",
			},
			"documents": map[string]interface{}{
				"type":        "string",
				"description": `Optional JSON array of documents: [{"content": "...", "metadata": {...}}]`,
			},
		},
		"required": []string{"collection_name"},
	}
}

func (t *CreateKBCollectionTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.embed == nil {
		return ErrorResult("Error: " + kbUnavailableMsg)
	}
	name, _ := args["collection_name"].(string)
	if err := validateIdentifier(name); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}

	var docs []chromem.Document
	if documentsJSON, _ := args["documents"].(string); documentsJSON != "" {
		var err error
		docs, err = parseKBDocuments(documentsJSON)
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
	}

	db, err := t.db(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if existing := db.GetCollection(name, t.embed); existing != nil {
		if err := db.DeleteCollection(name); err != nil {
			return ErrorResult(fmt.Sprintf("Error creating collection: %v", err))
		}
	}
	col, err := db.GetOrCreateCollection(name, nil, t.embed)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error creating collection: %v", err))
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return ErrorResult(fmt.Sprintf("Error creating collection: %v", err))
		}
		return NewResult(fmt.Sprintf("Created KB collection '%s' with %d documents", name, len(docs)))
	}
	return NewResult(fmt.Sprintf("Created KB collection '%s' (empty, ready for documents)", name))
}

// --- add_kb_documents ---

type AddKBDocumentsTool struct {
	kbEnv
}

func NewAddKBDocumentsTool(router *workspace.Router, embed chromem.EmbeddingFunc) *AddKBDocumentsTool {
	return &AddKBDocumentsTool{kbEnv{router: router, embed: embed}}
}

func (t *AddKBDocumentsTool) Name() string { return "add_kb_documents" }

func (t *AddKBDocumentsTool) Description() string {
	return "Add documents to an existing KB collection. Documents is a JSON array of {content, metadata} objects."
}

func (t *AddKBDocumentsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"collection_name": map[string]interface{}{
				"type":        "string",
				"description": "Collection to add to",
			},
			"documents": map[string]interface{}{
				"type":        "string",
				"description": `JSON array of documents: [{"content": "...", "metadata": {...}}]`,
			},
		},
		"required": []string{"collection_name", "documents"},
	}
}

func (t *AddKBDocumentsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.embed == nil {
		return ErrorResult("Error: " + kbUnavailableMsg)
	}
	name, _ := args["collection_name"].(string)
	if err := validateIdentifier(name); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	documentsJSON, _ := args["documents"].(string)
	if documentsJSON == "" {
		return ErrorResult("Error: documents array is empty")
	}
	docs, err := parseKBDocuments(documentsJSON)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	if len(docs) == 0 {
		return ErrorResult("Error: documents array is empty")
	}

	col, err := t.collection(ctx, name)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error adding documents: %v", err))
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return ErrorResult(fmt.Sprintf("Error adding documents: %v", err))
	}
	return NewResult(fmt.Sprintf("Added %d documents to KB collection '%s'", len(docs), name))
}

// --- search_kb ---

type SearchKBTool struct {
	kbEnv
}

func NewSearchKBTool(router *workspace.Router, embed chromem.EmbeddingFunc) *SearchKBTool {
	return &SearchKBTool{kbEnv{router: router, embed: embed}}
}

func (t *SearchKBTool) Name() string { return "search_kb" }

func (t *SearchKBTool) Description() string {
	return "Search KB collections by semantic similarity. Searches every collection unless one is named."
}

func (t *SearchKBTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to search for",
			},
			"collection_name": map[string]interface{}{
				"type":        "string",
				"description": "Optional collection to restrict the search to",
			},
			"num_results": map[string]interface{}{
				"type":        "integer",
				"description": "Max results per collection (default 5)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchKBTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.embed == nil {
		return ErrorResult("Error: " + kbUnavailableMsg)
	}
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ErrorResult("Error: query is required")
	}
	limit := 5
	if n, ok := args["num_results"].(float64); ok && n > 0 {
		limit = int(n)
	}
	restrict, _ := args["collection_name"].(string)

	db, err := t.db(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}

	var names []string
	if restrict != "" {
		if err := validateIdentifier(restrict); err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
		if db.GetCollection(restrict, t.embed) == nil {
			return ErrorResult(fmt.Sprintf("Error: KB collection '%s' not found", restrict))
		}
		names = []string{restrict}
	} else {
		for name := range db.ListCollections() {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		return NewResult("No KB collections found. Use create_kb_collection to create one first.")
	}

	var lines []string
	for _, name := range names {
		col := db.GetCollection(name, t.embed)
		if col == nil {
			continue
		}
		n := limit
		if count := col.Count(); count == 0 {
			continue
		} else if n > count {
			n = count
		}
		results, err := col.Query(ctx, query, n, nil, nil)
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error searching KB: %v", err))
		}
		if len(results) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("--- From '%s' ---", name))
		for _, r := range results {
			lines = append(lines, formatKBDocLine(r.ID, r.Content, r.Metadata, r.Similarity, true))
		}
	}

	if len(lines) == 0 {
		if restrict != "" {
			return NewResult(fmt.Sprintf("No matches found in '%s' for query: %s", restrict, query))
		}
		return NewResult(fmt.Sprintf("No matches found across all KB collections for query: %s", query))
	}
	return NewResult(fmt.Sprintf("Search results for '%s':\n\n%s", query, strings.Join(lines, "\n")))
}

// --- list_kb_collections ---

type ListKBCollectionsTool struct {
	kbEnv
}

func NewListKBCollectionsTool(router *workspace.Router, embed chromem.EmbeddingFunc) *ListKBCollectionsTool {
	return &ListKBCollectionsTool{kbEnv{router: router, embed: embed}}
}

func (t *ListKBCollectionsTool) Name() string { return "list_kb_collections" }

func (t *ListKBCollectionsTool) Description() string {
	return "List KB collections with document counts"
}

func (t *ListKBCollectionsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ListKBCollectionsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.embed == nil {
		return ErrorResult("Error: " + kbUnavailableMsg)
	}
	db, err := t.db(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	collections := db.ListCollections()
	if len(collections) == 0 {
		return NewResult("Knowledge Base is empty. Use create_kb_collection to create a collection.")
	}

	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{"Knowledge Base collections:"}
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %d documents", name, collections[name].Count()))
	}
	return NewResult(strings.Join(lines, "\n"))
}

// --- describe_kb_collection ---

type DescribeKBCollectionTool struct {
	kbEnv
}

func NewDescribeKBCollectionTool(router *workspace.Router, embed chromem.EmbeddingFunc) *DescribeKBCollectionTool {
	return &DescribeKBCollectionTool{kbEnv{router: router, embed: embed}}
}

func (t *DescribeKBCollectionTool) Name() string { return "describe_kb_collection" }

func (t *DescribeKBCollectionTool) Description() string {
	return "Show a KB collection's document count"
}

func (t *DescribeKBCollectionTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"collection_name": map[string]interface{}{
				"type":        "string",
				"description": "Collection to describe",
			},
		},
		"required": []string{"collection_name"},
	}
}

func (t *DescribeKBCollectionTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.embed == nil {
		return ErrorResult("Error: " + kbUnavailableMsg)
	}
	name, _ := args["collection_name"].(string)
	if err := validateIdentifier(name); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	col, err := t.collection(ctx, name)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error describing collection: %v", err))
	}
	lines := []string{
		fmt.Sprintf("Collection '%s':", name),
		fmt.Sprintf("Total documents: %d", col.Count()),
	}
	return NewResult(strings.Join(lines, "\n"))
}

// --- delete_kb_collection ---

type DeleteKBCollectionTool struct {
	kbEnv
}

func NewDeleteKBCollectionTool(router *workspace.Router, embed chromem.EmbeddingFunc) *DeleteKBCollectionTool {
	return &DeleteKBCollectionTool{kbEnv{router: router, embed: embed}}
}

func (t *DeleteKBCollectionTool) Name() string { return "delete_kb_collection" }

func (t *DeleteKBCollectionTool) Description() string {
	return "Delete a KB collection and all of its documents"
}

func (t *DeleteKBCollectionTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"collection_name": map[string]interface{}{
				"type":        "string",
				"description": "Collection to delete",
			},
		},
		"required": []string{"collection_name"},
	}
}

func (t *DeleteKBCollectionTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.embed == nil {
		return ErrorResult("Error: " + kbUnavailableMsg)
	}
	name, _ := args["collection_name"].(string)
	if err := validateIdentifier(name); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	col, err := t.collection(ctx, name)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error dropping collection: %v", err))
	}
	count := col.Count()

	db, err := t.db(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := db.DeleteCollection(name); err != nil {
		return ErrorResult(fmt.Sprintf("Error dropping collection: %v", err))
	}
	return NewResult(fmt.Sprintf("Deleted KB collection '%s' (%d documents removed)", name, count))
}

// --- delete_kb_documents ---

type DeleteKBDocumentsTool struct {
	kbEnv
}

func NewDeleteKBDocumentsTool(router *workspace.Router, embed chromem.EmbeddingFunc) *DeleteKBDocumentsTool {
	return &DeleteKBDocumentsTool{kbEnv{router: router, embed: embed}}
}

func (t *DeleteKBDocumentsTool) Name() string { return "delete_kb_documents" }

func (t *DeleteKBDocumentsTool) Description() string {
	return "Delete documents from a KB collection by ID. IDs is a comma-separated list."
}

func (t *DeleteKBDocumentsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"collection_name": map[string]interface{}{
				"type":        "string",
				"description": "Collection to delete from",
			},
			"ids": map[string]interface{}{
				"type":        "string",
				"description": "Comma-separated document IDs",
			},
		},
		"required": []string{"collection_name", "ids"},
	}
}

func (t *DeleteKBDocumentsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.embed == nil {
		return ErrorResult("Error: " + kbUnavailableMsg)
	}
	name, _ := args["collection_name"].(string)
	if err := validateIdentifier(name); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	idsArg, _ := args["ids"].(string)
	var ids []string
	for _, part := range strings.Split(idsArg, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ErrorResult("Error: No valid IDs provided")
	}

	col, err := t.collection(ctx, name)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error deleting documents: %v", err))
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return ErrorResult(fmt.Sprintf("Error deleting documents: %v", err))
	}
	return NewResult(fmt.Sprintf("Deleted %d document(s) from KB collection '%s'", len(ids), name))
}

// KBTools returns the knowledge base tool set for a router.
func KBTools(router *workspace.Router, embed chromem.EmbeddingFunc) []Tool {
	return []Tool{
		NewCreateKBCollectionTool(router, embed),
		NewAddKBDocumentsTool(router, embed),
		NewSearchKBTool(router, embed),
		NewListKBCollectionsTool(router, embed),
		NewDescribeKBCollectionTool(router, embed),
		NewDeleteKBCollectionTool(router, embed),
		NewDeleteKBDocumentsTool(router, embed),
	}
}
