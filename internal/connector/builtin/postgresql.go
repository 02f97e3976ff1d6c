// Package builtin ships the two reference connectors named in §4.1:
// postgresql (a real lib/pq-backed, pushdown-capable SQL connector) and
// httpapi (a generic REST source demonstrating discovery/sampling without
// pushdown). Neither implements CDCReader, StagedWriter or FileOps. Neither
// reads a node's _pushdown_operators config, so no query composed by the
// optimizer's ComposeSQL reaches the database through them.
package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/synqx/core/internal/connector"
	"github.com/synqx/core/internal/domain"
)

// PushdownKind is the connector kind string the optimizer checks against
// its pushdown-capable set (§4.2).
const PushdownKind = "postgresql"

// PostgreSQLConnector is the reference SQL connector: connect/disconnect,
// discovery, schema inference, batch read/write, and ad-hoc query
// execution, all grounded on internal/platform/database's sql.Open+ping
// idiom but using sqlx for struct/row scanning convenience.
type PostgreSQLConnector struct {
	db     *sqlx.DB
	schema string
}

// NewPostgreSQLConnector is the connector.Factory registered under
// "postgresql".
func NewPostgreSQLConnector() connector.Connector {
	return &PostgreSQLConnector{}
}

func (p *PostgreSQLConnector) Kind() string { return PushdownKind }

func (p *PostgreSQLConnector) ValidateConfig(config map[string]any) error {
	if _, ok := config["dsn"].(string); ok {
		return nil
	}
	host, hasHost := config["host"].(string)
	if !hasHost || host == "" {
		return fmt.Errorf("postgresql: config requires dsn or host")
	}
	return nil
}

func (p *PostgreSQLConnector) Connect(ctx context.Context, config map[string]any) error {
	dsn, ok := config["dsn"].(string)
	if !ok || dsn == "" {
		dsn = buildDSN(config)
	}
	if schema, ok := config["db_schema"].(string); ok {
		p.schema = schema
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("postgresql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("postgresql: ping: %w", err)
	}
	p.db = db
	return nil
}

func buildDSN(config map[string]any) string {
	host, _ := config["host"].(string)
	port, _ := config["port"].(string)
	if port == "" {
		port = "5432"
	}
	user, _ := config["user"].(string)
	password, _ := config["password"].(string)
	dbname, _ := config["database"].(string)
	sslmode, _ := config["sslmode"].(string)
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, password, dbname, sslmode)
}

func (p *PostgreSQLConnector) Disconnect(ctx context.Context) error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *PostgreSQLConnector) TestConnection(ctx context.Context) error {
	if p.db == nil {
		return fmt.Errorf("postgresql: not connected")
	}
	return p.db.PingContext(ctx)
}

func (p *PostgreSQLConnector) DiscoverAssets(ctx context.Context, pattern string, includeMetadata bool) ([]connector.AssetDescriptor, error) {
	query := `SELECT table_schema, table_name, table_type FROM information_schema.tables WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`
	args := []any{}
	if pattern != "" {
		query += ` AND table_name LIKE $1`
		args = append(args, pattern)
	}

	rows, err := p.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgresql: discover_assets: %w", err)
	}
	defer rows.Close()

	var out []connector.AssetDescriptor
	for rows.Next() {
		var schema, name, tableType string
		if err := rows.Scan(&schema, &name, &tableType); err != nil {
			return nil, err
		}
		assetType := domain.AssetTable
		if strings.EqualFold(tableType, "VIEW") {
			assetType = domain.AssetView
		}
		out = append(out, connector.AssetDescriptor{
			Name:      name,
			FQN:       schema + "." + name,
			AssetType: assetType,
		})
	}
	return out, rows.Err()
}

func (p *PostgreSQLConnector) InferSchema(ctx context.Context, asset string, sampleSize int, mode string) (connector.SchemaDescriptor, error) {
	schema, name := connector.NormalizeAssetIdentifier(asset, p.schema)
	rows, err := p.db.QueryxContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, name)
	if err != nil {
		return connector.SchemaDescriptor{}, fmt.Errorf("postgresql: infer_schema: %w", err)
	}
	defer rows.Close()

	var columns []domain.ColumnSchema
	for rows.Next() {
		var colName, dataType, nullable string
		if err := rows.Scan(&colName, &dataType, &nullable); err != nil {
			return connector.SchemaDescriptor{}, err
		}
		columns = append(columns, domain.ColumnSchema{
			Name:     colName,
			DataType: dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	return connector.SchemaDescriptor{Columns: columns}, rows.Err()
}

func (p *PostgreSQLConnector) ReadBatch(ctx context.Context, asset string, limit, offset, chunkSize int, incrementalFilter map[string]any, emit connector.ChunkCallback) error {
	schema, name := connector.NormalizeAssetIdentifier(asset, p.schema)
	query := fmt.Sprintf("SELECT * FROM %s.%s", quoteIdent(schema), quoteIdent(name))

	var conditions []string
	var args []any
	i := 1
	for col, val := range incrementalFilter {
		conditions = append(conditions, fmt.Sprintf("%s > $%d", quoteIdent(col), i))
		args = append(args, val)
		i++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	return p.streamQuery(ctx, query, args, chunkSize, emit)
}

func (p *PostgreSQLConnector) streamQuery(ctx context.Context, query string, args []any, chunkSize int, emit connector.ChunkCallback) error {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	rows, err := p.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgresql: query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	batch := make([]connector.Row, 0, chunkSize)
	for rows.Next() {
		record := make(map[string]any)
		if err := rows.MapScan(record); err != nil {
			return err
		}
		batch = append(batch, connector.Row(record))
		if len(batch) == chunkSize {
			if err := emit(columns, batch); err != nil {
				return err
			}
			batch = make([]connector.Row, 0, chunkSize)
		}
	}
	if len(batch) > 0 {
		if err := emit(columns, batch); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *PostgreSQLConnector) WriteBatch(ctx context.Context, asset string, mode connector.WriteMode, columns []string, rows []connector.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	schema, name := connector.NormalizeAssetIdentifier(asset, p.schema)
	table := quoteIdent(schema) + "." + quoteIdent(name)

	if mode == domain.WriteOverwrite || mode == domain.WriteReplace {
		if _, err := p.db.ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
			return 0, fmt.Errorf("postgresql: truncate before write: %w", err)
		}
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(quoteIdents(columns), ", "), strings.Join(placeholders, ", "))

	written := 0
	for _, row := range rows {
		values := make([]any, len(columns))
		for i, col := range columns {
			values[i] = row[col]
		}
		if _, err := tx.ExecContext(ctx, insertSQL, values...); err != nil {
			return written, fmt.Errorf("postgresql: write_batch insert: %w", err)
		}
		written++
	}

	return written, tx.Commit()
}

func (p *PostgreSQLConnector) ExecuteQuery(ctx context.Context, query string, limit, offset int, params map[string]any) ([]string, []connector.Row, int, error) {
	bound := query
	if limit > 0 {
		bound += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		bound += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := p.db.QueryxContext(ctx, bound)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("postgresql: execute_query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, 0, err
	}

	var out []connector.Row
	for rows.Next() {
		record := make(map[string]any)
		if err := rows.MapScan(record); err != nil {
			return nil, nil, 0, err
		}
		out = append(out, connector.Row(record))
	}

	var total int
	countRow := p.db.QueryRowxContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_subq", query))
	_ = countRow.Scan(&total)

	return columns, out, total, rows.Err()
}

func (p *PostgreSQLConnector) FetchSample(ctx context.Context, asset string, limit int) ([]connector.Row, error) {
	return connector.DefaultSample(ctx, p, asset, limit)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIdents(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return out
}

var (
	_ connector.Connector      = (*PostgreSQLConnector)(nil)
	_ connector.Discoverer     = (*PostgreSQLConnector)(nil)
	_ connector.SchemaInferrer = (*PostgreSQLConnector)(nil)
	_ connector.BatchReader    = (*PostgreSQLConnector)(nil)
	_ connector.BatchWriter    = (*PostgreSQLConnector)(nil)
	_ connector.QueryExecutor  = (*PostgreSQLConnector)(nil)
	_ connector.Sampler        = (*PostgreSQLConnector)(nil)
)
