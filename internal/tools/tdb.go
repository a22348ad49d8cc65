package tools

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

// Tabular DB tools run SQL against the per-workspace sqlite database.
// Identifiers are validated, values always go through placeholders.

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateIdentifier(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: use letters, numbers and underscores", name)
	}
	return nil
}

// splitSQLStatements splits on semicolons outside quoted strings.
func splitSQLStatements(sqlText string) []string {
	var statements []string
	var current strings.Builder
	inSingle, inDouble := false, false

	for _, ch := range sqlText {
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		}
		if ch == ';' && !inSingle && !inDouble {
			if s := strings.TrimSpace(current.String()); s != "" {
				statements = append(statements, s)
			}
			current.Reset()
			continue
		}
		current.WriteRune(ch)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		statements = append(statements, s)
	}
	return statements
}

// formatQueryRows renders rows as an aligned text table.
func formatQueryRows(cols []string, rows [][]string) string {
	if len(rows) == 0 {
		return "Query returned 0 rows"
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for _, row := range rows {
		for i, val := range row {
			if i < len(widths) && len(val) > widths[i] {
				widths[i] = len(val)
			}
		}
	}

	var sb strings.Builder
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(" | ")
		}
		sb.WriteString(padRight(c, widths[i]))
	}
	sb.WriteString("\n")
	for i := range cols {
		if i > 0 {
			sb.WriteString("-+-")
		}
		sb.WriteString(strings.Repeat("-", widths[i]))
	}
	for _, row := range rows {
		sb.WriteString("\n")
		for i, val := range row {
			if i > 0 {
				sb.WriteString(" | ")
			}
			sb.WriteString(padRight(val, widths[i]))
		}
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// scanAllRows drains a result set into display strings.
func scanAllRows(rows *sql.Rows) ([]string, [][]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]string
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range raw {
			row[i] = formatSQLValue(v)
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

func formatSQLValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// --- create_tdb_table ---

type CreateTableTool struct {
	router *workspace.Router
}

func NewCreateTableTool(router *workspace.Router) *CreateTableTool {
	return &CreateTableTool{router: router}
}

func (t *CreateTableTool) Name() string { return "create_tdb_table" }

func (t *CreateTableTool) Description() string {
	return "Create a table in the workspace tabular database. Columns is a JSON object mapping column names to SQL types."
}

func (t *CreateTableTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table_name": map[string]interface{}{
				"type":        "string",
				"description": "Table name (letters, numbers, underscores)",
			},
			"columns": map[string]interface{}{
				"type":        "string",
				"description": `JSON object of column name to SQL type, e.g. {"title": "TEXT", "qty": "INTEGER"}`,
			},
		},
		"required": []string{"table_name", "columns"},
	}
}

func (t *CreateTableTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	tableName, _ := args["table_name"].(string)
	if err := validateIdentifier(tableName); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	columnsJSON, _ := args["columns"].(string)
	if columnsJSON == "" {
		return ErrorResult("columns is required")
	}

	var columns map[string]string
	if err := json.Unmarshal([]byte(columnsJSON), &columns); err != nil {
		return ErrorResult(fmt.Sprintf("Error: Invalid JSON data - %v", err))
	}
	if len(columns) == 0 {
		return ErrorResult("Error: columns must name at least one column")
	}

	names := make([]string, 0, len(columns))
	for name := range columns {
		if err := validateIdentifier(name); err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]string, 0, len(names))
	for _, name := range names {
		typ := strings.TrimSpace(columns[name])
		if typ == "" {
			typ = "TEXT"
		}
		defs = append(defs, fmt.Sprintf("%s %s", name, typ))
	}

	db, err := t.router.TabularDB(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return ErrorResult(fmt.Sprintf("Error creating table: %v", err))
	}
	return NewResult(fmt.Sprintf("Table '%s' created with columns: %s", tableName, strings.Join(names, ", ")))
}

// --- insert_tdb_table ---

type InsertTableTool struct {
	router *workspace.Router
}

func NewInsertTableTool(router *workspace.Router) *InsertTableTool {
	return &InsertTableTool{router: router}
}

func (t *InsertTableTool) Name() string { return "insert_tdb_table" }

func (t *InsertTableTool) Description() string {
	return "Insert rows into a table in the workspace tabular database. Rows is a JSON array of objects."
}

func (t *InsertTableTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table_name": map[string]interface{}{
				"type":        "string",
				"description": "Table to insert into",
			},
			"rows": map[string]interface{}{
				"type":        "string",
				"description": `JSON array of row objects, e.g. [{"title": "milk", "qty": 2}]`,
			},
		},
		"required": []string{"table_name", "rows"},
	}
}

func (t *InsertTableTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	tableName, _ := args["table_name"].(string)
	if err := validateIdentifier(tableName); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	rowsJSON, _ := args["rows"].(string)
	if rowsJSON == "" {
		return ErrorResult("rows is required")
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(rowsJSON), &rows); err != nil {
		return ErrorResult(fmt.Sprintf("Error: Invalid JSON data - %v", err))
	}
	if len(rows) == 0 {
		return ErrorResult("Error: rows array is empty")
	}

	db, err := t.router.TabularDB(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}

	// One transaction per call: a retried call re-inserts all rows or
	// none, never a partial batch.
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error inserting rows: %v", err))
	}
	defer tx.Rollback()

	inserted := 0
	for _, row := range rows {
		cols := make([]string, 0, len(row))
		for col := range row {
			if err := validateIdentifier(col); err != nil {
				return ErrorResult(fmt.Sprintf("Error: %v", err))
			}
			cols = append(cols, col)
		}
		sort.Strings(cols)

		placeholders := make([]string, len(cols))
		values := make([]interface{}, len(cols))
		for i, col := range cols {
			placeholders[i] = "?"
			values[i] = normalizeSQLParam(row[col])
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			tableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, stmt, values...); err != nil {
			return ErrorResult(fmt.Sprintf("Error inserting rows: %v", err))
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return ErrorResult(fmt.Sprintf("Error inserting rows: %v", err))
	}
	return NewResult(fmt.Sprintf("Inserted %d row(s) into '%s'", inserted, tableName))
}

// normalizeSQLParam flattens nested JSON values so they bind cleanly.
func normalizeSQLParam(v interface{}) interface{} {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		b, _ := json.Marshal(v)
		return string(b)
	default:
		return v
	}
}

// --- update_tdb_table ---

type UpdateTableTool struct {
	router *workspace.Router
}

func NewUpdateTableTool(router *workspace.Router) *UpdateTableTool {
	return &UpdateTableTool{router: router}
}

func (t *UpdateTableTool) Name() string { return "update_tdb_table" }

func (t *UpdateTableTool) Description() string {
	return "Update rows in a table. Set is a JSON object of column to new value; where is a SQL condition."
}

func (t *UpdateTableTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table_name": map[string]interface{}{
				"type":        "string",
				"description": "Table to update",
			},
			"set": map[string]interface{}{
				"type":        "string",
				"description": `JSON object of column to new value, e.g. {"qty": 3}`,
			},
			"where": map[string]interface{}{
				"type":        "string",
				"description": `SQL condition selecting the rows, e.g. "title = 'milk'"`,
			},
		},
		"required": []string{"table_name", "set", "where"},
	}
}

func (t *UpdateTableTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	tableName, _ := args["table_name"].(string)
	if err := validateIdentifier(tableName); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	setJSON, _ := args["set"].(string)
	where, _ := args["where"].(string)
	if setJSON == "" {
		return ErrorResult("set is required")
	}
	if strings.TrimSpace(where) == "" {
		return ErrorResult("where is required (refusing to update every row without a condition)")
	}

	var set map[string]interface{}
	if err := json.Unmarshal([]byte(setJSON), &set); err != nil {
		return ErrorResult(fmt.Sprintf("Error: Invalid JSON data - %v", err))
	}
	if len(set) == 0 {
		return ErrorResult("Error: set must name at least one column")
	}

	cols := make([]string, 0, len(set))
	for col := range set {
		if err := validateIdentifier(col); err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	assignments := make([]string, len(cols))
	values := make([]interface{}, len(cols))
	for i, col := range cols {
		assignments[i] = fmt.Sprintf("%s = ?", col)
		values[i] = normalizeSQLParam(set[col])
	}

	db, err := t.router.TabularDB(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", tableName, strings.Join(assignments, ", "), where)
	res, err := db.ExecContext(ctx, stmt, values...)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error updating rows: %v", err))
	}
	affected, _ := res.RowsAffected()
	return NewResult(fmt.Sprintf("Updated %d row(s) in '%s'", affected, tableName))
}

// --- query_tdb_table ---

type QueryTableTool struct {
	router *workspace.Router
}

func NewQueryTableTool(router *workspace.Router) *QueryTableTool {
	return &QueryTableTool{router: router}
}

func (t *QueryTableTool) Name() string { return "query_tdb_table" }

func (t *QueryTableTool) Description() string {
	return "Run SQL against the workspace tabular database and return formatted results"
}

func (t *QueryTableTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"sql": map[string]interface{}{
				"type":        "string",
				"description": "SQL to execute. Multiple statements run in order; the last statement's results are returned.",
			},
		},
		"required": []string{"sql"},
	}
}

func (t *QueryTableTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	sqlText, _ := args["sql"].(string)
	statements := splitSQLStatements(sqlText)
	if len(statements) == 0 {
		return ErrorResult("No SQL provided")
	}

	db, err := t.router.TabularDB(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}

	for _, stmt := range statements[:len(statements)-1] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return ErrorResult(fmt.Sprintf("Error executing query: %v", err))
		}
	}

	last := statements[len(statements)-1]
	rows, err := db.QueryContext(ctx, last)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error executing query: %v", err))
	}
	defer rows.Close()

	cols, data, err := scanAllRows(rows)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error executing query: %v", err))
	}
	if len(cols) == 0 {
		return NewResult("Query executed successfully")
	}
	return NewResult(formatQueryRows(cols, data))
}

// --- list_tdb_tables ---

type ListTablesTool struct {
	router *workspace.Router
}

func NewListTablesTool(router *workspace.Router) *ListTablesTool {
	return &ListTablesTool{router: router}
}

func (t *ListTablesTool) Name() string { return "list_tdb_tables" }

func (t *ListTablesTool) Description() string {
	return "List tables in the workspace tabular database with row counts"
}

func (t *ListTablesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ListTablesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	db, err := t.router.TabularDB(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	names, err := listTableNames(ctx, db)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error listing tables: %v", err))
	}
	if len(names) == 0 {
		return NewResult("No tables found. Use create_tdb_table to create one.")
	}

	lines := []string{"Tables:"}
	for _, name := range names {
		var count int64
		row := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", name))
		if err := row.Scan(&count); err != nil {
			lines = append(lines, fmt.Sprintf("- %s", name))
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%d rows)", name, count))
	}
	return NewResult(strings.Join(lines, "\n"))
}

func listTableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// --- describe_tdb_table ---

type DescribeTableTool struct {
	router *workspace.Router
}

func NewDescribeTableTool(router *workspace.Router) *DescribeTableTool {
	return &DescribeTableTool{router: router}
}

func (t *DescribeTableTool) Name() string { return "describe_tdb_table" }

func (t *DescribeTableTool) Description() string {
	return "Show a table's columns, types, and row count"
}

func (t *DescribeTableTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table_name": map[string]interface{}{
				"type":        "string",
				"description": "Table to describe",
			},
		},
		"required": []string{"table_name"},
	}
}

func (t *DescribeTableTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	tableName, _ := args["table_name"].(string)
	if err := validateIdentifier(tableName); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	db, err := t.router.TabularDB(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error describing table: %v", err))
	}
	defer rows.Close()

	lines := []string{fmt.Sprintf("Table '%s':", tableName)}
	colCount := 0
	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return ErrorResult(fmt.Sprintf("Error describing table: %v", err))
		}
		desc := fmt.Sprintf("- %s %s", name, typ)
		if pk > 0 {
			desc += " PRIMARY KEY"
		}
		if notNull > 0 {
			desc += " NOT NULL"
		}
		lines = append(lines, desc)
		colCount++
	}
	if err := rows.Err(); err != nil {
		return ErrorResult(fmt.Sprintf("Error describing table: %v", err))
	}
	if colCount == 0 {
		return ErrorResult(fmt.Sprintf("Table '%s' not found", tableName))
	}

	var count int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&count); err == nil {
		lines = append(lines, fmt.Sprintf("Total rows: %d", count))
	}
	return NewResult(strings.Join(lines, "\n"))
}

// --- drop_tdb_table ---

type DropTableTool struct {
	router *workspace.Router
}

func NewDropTableTool(router *workspace.Router) *DropTableTool {
	return &DropTableTool{router: router}
}

func (t *DropTableTool) Name() string { return "drop_tdb_table" }

func (t *DropTableTool) Description() string {
	return "Drop a table from the workspace tabular database"
}

func (t *DropTableTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table_name": map[string]interface{}{
				"type":        "string",
				"description": "Table to drop",
			},
		},
		"required": []string{"table_name"},
	}
}

func (t *DropTableTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	tableName, _ := args["table_name"].(string)
	if err := validateIdentifier(tableName); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	db, err := t.router.TabularDB(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName)); err != nil {
		return ErrorResult(fmt.Sprintf("Error dropping table: %v", err))
	}
	return NewResult(fmt.Sprintf("Table '%s' dropped", tableName))
}

// --- export_tdb_table ---

type ExportTableTool struct {
	router *workspace.Router
}

func NewExportTableTool(router *workspace.Router) *ExportTableTool {
	return &ExportTableTool{router: router}
}

func (t *ExportTableTool) Name() string { return "export_tdb_table" }

func (t *ExportTableTool) Description() string {
	return "Export a table to a CSV or JSON file in the workspace files directory"
}

func (t *ExportTableTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table_name": map[string]interface{}{
				"type":        "string",
				"description": "Table to export",
			},
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Target file name; extension picks the format (.csv or .json). Defaults to <table>.csv",
			},
		},
		"required": []string{"table_name"},
	}
}

func (t *ExportTableTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	tableName, _ := args["table_name"].(string)
	if err := validateIdentifier(tableName); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	filePath, _ := args["file_path"].(string)
	if filePath == "" {
		filePath = tableName + ".csv"
	}

	format := strings.ToLower(filepath.Ext(filePath))
	if format != ".csv" && format != ".json" {
		return ErrorResult("Error: export format must be .csv or .json")
	}

	db, err := t.router.TabularDB(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", tableName))
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error exporting table: %v", err))
	}
	defer rows.Close()

	cols, data, err := scanAllRows(rows)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error exporting table: %v", err))
	}

	var payload []byte
	switch format {
	case ".csv":
		var sb strings.Builder
		w := csv.NewWriter(&sb)
		if err := w.Write(cols); err != nil {
			return ErrorResult(fmt.Sprintf("Error exporting table: %v", err))
		}
		for _, row := range data {
			if err := w.Write(row); err != nil {
				return ErrorResult(fmt.Sprintf("Error exporting table: %v", err))
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return ErrorResult(fmt.Sprintf("Error exporting table: %v", err))
		}
		payload = []byte(sb.String())
	case ".json":
		records := make([]map[string]string, 0, len(data))
		for _, row := range data {
			rec := make(map[string]string, len(cols))
			for i, col := range cols {
				rec[col] = row[i]
			}
			records = append(records, rec)
		}
		payload, err = json.MarshalIndent(records, "", "  ")
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error exporting table: %v", err))
		}
	}

	sb, err := t.router.SandboxFor(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := sb.CheckSize(int64(len(payload))); err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}
	resolved, err := sb.ResolveFile(filePath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("Error exporting table: %v", err))
	}
	if err := os.WriteFile(resolved, payload, 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("Error exporting table: %v", err))
	}
	return NewResult(fmt.Sprintf("Exported %d row(s) from '%s' to %s", len(data), tableName, filePath))
}

// --- import_tdb_table ---

type ImportTableTool struct {
	router *workspace.Router
}

func NewImportTableTool(router *workspace.Router) *ImportTableTool {
	return &ImportTableTool{router: router}
}

func (t *ImportTableTool) Name() string { return "import_tdb_table" }

func (t *ImportTableTool) Description() string {
	return "Import a CSV or JSON file from the workspace files directory into a table, creating it when missing"
}

func (t *ImportTableTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table_name": map[string]interface{}{
				"type":        "string",
				"description": "Target table",
			},
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Source file (.csv or .json) in the files directory",
			},
		},
		"required": []string{"table_name", "file_path"},
	}
}

func (t *ImportTableTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	tableName, _ := args["table_name"].(string)
	if err := validateIdentifier(tableName); err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	filePath, _ := args["file_path"].(string)
	if filePath == "" {
		return ErrorResult("file_path is required")
	}

	sb, err := t.router.SandboxFor(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	resolved, err := sb.ResolveRead(filePath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("File not found: %s", filePath))
		}
		return ErrorResult(fmt.Sprintf("Error importing table: %v", err))
	}

	var cols []string
	var records []map[string]interface{}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		reader := csv.NewReader(strings.NewReader(string(raw)))
		all, err := reader.ReadAll()
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error: Invalid CSV data - %v", err))
		}
		if len(all) < 1 {
			return ErrorResult("Error: CSV file is empty")
		}
		cols = all[0]
		for _, row := range all[1:] {
			rec := make(map[string]interface{}, len(cols))
			for i, col := range cols {
				if i < len(row) {
					rec[col] = row[i]
				}
			}
			records = append(records, rec)
		}
	case ".json":
		if err := json.Unmarshal(raw, &records); err != nil {
			return ErrorResult(fmt.Sprintf("Error: Invalid JSON data - %v", err))
		}
		seen := make(map[string]bool)
		for _, rec := range records {
			for col := range rec {
				if !seen[col] {
					seen[col] = true
					cols = append(cols, col)
				}
			}
		}
		sort.Strings(cols)
	default:
		return ErrorResult("Error: import format must be .csv or .json")
	}

	for _, col := range cols {
		if err := validateIdentifier(col); err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
	}
	if len(cols) == 0 {
		return ErrorResult("Error: no columns found in file")
	}

	db, err := t.router.TabularDB(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}

	defs := make([]string, len(cols))
	for i, col := range cols {
		defs[i] = col + " TEXT"
	}
	createStmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return ErrorResult(fmt.Sprintf("Error importing table: %v", err))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error importing table: %v", err))
	}
	defer tx.Rollback()

	imported := 0
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertStmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	for _, rec := range records {
		values := make([]interface{}, len(cols))
		for i, col := range cols {
			values[i] = normalizeSQLParam(rec[col])
		}
		if _, err := tx.ExecContext(ctx, insertStmt, values...); err != nil {
			return ErrorResult(fmt.Sprintf("Error importing table: %v", err))
		}
		imported++
	}
	if err := tx.Commit(); err != nil {
		return ErrorResult(fmt.Sprintf("Error importing table: %v", err))
	}
	return NewResult(fmt.Sprintf("Imported %d row(s) into '%s' from %s", imported, tableName, filePath))
}

// TabularTools returns the tabular database tool set for a router.
func TabularTools(router *workspace.Router) []Tool {
	return []Tool{
		NewCreateTableTool(router),
		NewInsertTableTool(router),
		NewUpdateTableTool(router),
		NewQueryTableTool(router),
		NewListTablesTool(router),
		NewDescribeTableTool(router),
		NewDropTableTool(router),
		NewExportTableTool(router),
		NewImportTableTool(router),
	}
}
