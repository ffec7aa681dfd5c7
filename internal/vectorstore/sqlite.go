package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"corpusqa/internal/model"
)

// SQLiteProvider is the persistent local engine. Embeddings are stored as
// JSON columns and scored in-process; filters compile to SQL over
// json_extract so filter semantics match the other backends.
type SQLiteProvider struct {
	db      *sql.DB
	log     *logrus.Logger
	ensured sync.Map // collection name -> struct{}
}

func NewSQLiteProvider(path string, log *logrus.Logger) (*SQLiteProvider, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create sqlite data directory failed: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}
	schema := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			vector_size INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vectors (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			embedding TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create sqlite schema failed: %w", err)
		}
	}
	return &SQLiteProvider{db: db, log: log}, nil
}

func (p *SQLiteProvider) Name() string { return "sqlite" }

func (p *SQLiteProvider) Close() error { return p.db.Close() }

func (p *SQLiteProvider) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if _, ok := p.ensured.Load(name); ok {
		return nil
	}
	var existing int
	err := p.db.QueryRowContext(ctx,
		`SELECT vector_size FROM collections WHERE name = ?`, name).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := p.db.ExecContext(ctx,
			`INSERT INTO collections (name, vector_size) VALUES (?, ?)`, name, vectorSize); err != nil {
			return fmt.Errorf("create collection %s failed: %w", name, err)
		}
	case err != nil:
		return fmt.Errorf("check collection %s failed: %w", name, err)
	case existing != vectorSize:
		return fmt.Errorf("collection %s: %w (have %d, want %d)", name, ErrDimensionMismatch, existing, vectorSize)
	}
	p.ensured.Store(name, struct{}{})
	return nil
}

func (p *SQLiteProvider) Add(ctx context.Context, collection string, payload model.Payload, vector []float32, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload failed: %w", err)
	}
	embeddingJSON, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("marshal embedding failed: %w", err)
	}
	if _, err := p.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vectors (collection, id, payload, embedding) VALUES (?, ?, ?, ?)`,
		collection, id, string(payloadJSON), string(embeddingJSON)); err != nil {
		return "", fmt.Errorf("insert vector failed: %w", err)
	}
	return id, nil
}

func (p *SQLiteProvider) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]model.SearchResult, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	rows, err := p.queryRows(ctx, collection, filter)
	if err != nil {
		p.log.WithError(err).WithField("backend", p.Name()).Warn("vector search degraded to empty results")
		return nil, nil
	}
	var results []model.SearchResult
	for _, row := range rows {
		results = append(results, model.SearchResult{
			ID:         row.id,
			ResultType: resultType(row.payload),
			Score:      cosineSimilarity(vector, row.embedding),
			Payload:    row.payload,
		})
	}
	return sortAndTrim(results, limit), nil
}

func (p *SQLiteProvider) SearchText(ctx context.Context, collection string, text string, limit int, filter Filter) ([]model.SearchResult, error) {
	rows, err := p.queryRows(ctx, collection, filter)
	if err != nil {
		p.log.WithError(err).WithField("backend", p.Name()).Warn("keyword search degraded to empty results")
		return nil, nil
	}
	var results []model.SearchResult
	for _, row := range rows {
		score := keywordScore(text, textField(row.payload))
		if score <= 0 {
			continue
		}
		results = append(results, model.SearchResult{
			ID:         row.id,
			ResultType: resultType(row.payload),
			Score:      score,
			Payload:    row.payload,
		})
	}
	return sortAndTrim(results, limit), nil
}

func (p *SQLiteProvider) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

type sqliteRow struct {
	id        string
	payload   model.Payload
	embedding []float32
}

func (p *SQLiteProvider) queryRows(ctx context.Context, collection string, filter Filter) ([]sqliteRow, error) {
	where, args := compileSQL(filter)
	query := `SELECT id, payload, embedding FROM vectors WHERE collection = ?`
	if where != "" {
		query += " AND " + where
	}
	rows, err := p.db.QueryContext(ctx, query, append([]interface{}{collection}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query vectors failed: %w", err)
	}
	defer rows.Close()

	var out []sqliteRow
	for rows.Next() {
		var id, payloadJSON, embeddingJSON string
		if err := rows.Scan(&id, &payloadJSON, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("scan vector row failed: %w", err)
		}
		var payload model.Payload
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			continue
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			continue
		}
		out = append(out, sqliteRow{id: id, payload: payload, embedding: embedding})
	}
	return out, rows.Err()
}

// compileSQL renders the filter tree to a SQL predicate over
// json_extract(payload, '$.field'). Dates compare lexically, which is
// sound for the RFC3339 strings ingestion writes.
func compileSQL(f Filter) (string, []interface{}) {
	if f == nil {
		return "", nil
	}
	field := func(name string) string {
		return fmt.Sprintf("json_extract(payload, '$.%s')", name)
	}
	switch v := f.(type) {
	case Equal:
		return field(v.Field) + " = ?", []interface{}{v.Value}
	case Range:
		var parts []string
		var args []interface{}
		if v.Min != nil {
			parts = append(parts, field(v.Field)+" >= ?")
			args = append(args, *v.Min)
		}
		if v.Max != nil {
			parts = append(parts, field(v.Field)+" <= ?")
			args = append(args, *v.Max)
		}
		if len(parts) == 0 {
			return "", nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", args
	case DateRange:
		var parts []string
		var args []interface{}
		if v.From != nil {
			parts = append(parts, field(v.Field)+" >= ?")
			args = append(args, v.From.Format(time.RFC3339))
		}
		if v.To != nil {
			parts = append(parts, field(v.Field)+" <= ?")
			args = append(args, v.To.Format(time.RFC3339))
		}
		if len(parts) == 0 {
			return "", nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", args
	case MultiTermOr:
		if len(v.Terms) == 0 {
			return "0 = 1", nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(v.Terms)), ", ")
		args := make([]interface{}, len(v.Terms))
		for i, t := range v.Terms {
			args[i] = t
		}
		return field(v.Field) + " IN (" + placeholders + ")", args
	case Exists:
		return "(" + field(v.Field) + " IS NOT NULL AND " + field(v.Field) + " != '')", nil
	case TextLike:
		return "LOWER(" + field(v.Field) + ") LIKE ?", []interface{}{"%" + strings.ToLower(v.Pattern) + "%"}
	case And:
		return compileSQLGroup(v.Filters, " AND ")
	case Or:
		return compileSQLGroup(v.Filters, " OR ")
	}
	return "", nil
}

func compileSQLGroup(filters []Filter, op string) (string, []interface{}) {
	var parts []string
	var args []interface{}
	for _, sub := range filters {
		clause, subArgs := compileSQL(sub)
		if clause == "" {
			continue
		}
		parts = append(parts, clause)
		args = append(args, subArgs...)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, op) + ")", args
}
