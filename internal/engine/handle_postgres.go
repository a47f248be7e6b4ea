package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weftworks/weft/pkg/models"
)

// handlePostgres runs a query against an external database described by a
// stored credential. A dedicated single-connection pool is opened per
// invocation and closed on return; workflow nodes are infrequent enough
// that pooling across executions is not worth holding credentials open.
func handlePostgres(ctx context.Context, ec *Context, node *models.Node, input any) (any, error) {
	operation := cfgString(node, "operation", "select")

	credID, ok := node.Config["credentialId"].(string)
	if !ok || credID == "" {
		return nil, fmt.Errorf("Credential not specified")
	}
	cred, err := ec.Store.GetCredential(ctx, credID)
	if err != nil || cred == nil {
		return nil, fmt.Errorf("Credential not found")
	}

	pool, err := openExternalPool(ctx, cred)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	switch operation {
	case "executeQuery":
		queryRaw, err := cfgRequiredString(node, "query", "Query")
		if err != nil {
			return nil, err
		}
		return queryRows(ctx, pool, Interpolate(queryRaw, input))

	case "select":
		table, err := cfgRequiredString(node, "table", "Table")
		if err != nil {
			return nil, err
		}
		schema := cfgString(node, "schema", "public")

		query := fmt.Sprintf("SELECT * FROM %s.%s", schema, table)
		if where := cfgString(node, "where", ""); where != "" {
			query += " WHERE " + where
		}
		if sortBy := cfgString(node, "sort", ""); sortBy != "" {
			query += " ORDER BY " + sortBy
		}
		query += fmt.Sprintf(" LIMIT %d", cfgInt(node, "limit", 50))

		return queryRows(ctx, pool, query)

	case "insert":
		table, err := cfgRequiredString(node, "table", "Table")
		if err != nil {
			return nil, err
		}
		schema := cfgString(node, "schema", "public")
		columnsStr, err := cfgRequiredString(node, "columns", "Columns")
		if err != nil {
			return nil, err
		}

		inputMap, _ := asMap(input)
		var columns []string
		var placeholders []string
		var args []any
		for _, col := range strings.Split(columnsStr, ",") {
			col = strings.TrimSpace(col)
			columns = append(columns, col)
			placeholders = append(placeholders, "$"+strconv.Itoa(len(columns)))
			args = append(args, inputMap[col])
		}

		query := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s) RETURNING *",
			schema, table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

		results, err := queryRowsArgs(ctx, pool, query, args)
		if err != nil {
			return nil, err
		}
		if list, ok := results.([]any); ok && len(list) > 0 {
			return list[0], nil
		}
		return map[string]any{}, nil

	default:
		return map[string]any{"status": "unsupported operation"}, nil
	}
}

func openExternalPool(ctx context.Context, cred *models.Credential) (*pgxpool.Pool, error) {
	host := credString(cred, "host", "localhost")
	user := credString(cred, "user", "postgres")
	password := credString(cred, "password", "")
	database := credString(cred, "database", "postgres")

	port := int64(5432)
	switch v := cred.Data["port"].(type) {
	case float64:
		port = int64(v)
	case string:
		if p, err := strconv.ParseInt(v, 10, 64); err == nil {
			port = p
		}
	}

	url := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", user, password, host, port, database)
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to external Postgres: %s", err)
	}
	cfg.MaxConns = 1
	cfg.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to external Postgres: %s", err)
	}
	return pool, nil
}

func credString(cred *models.Credential, key, fallback string) string {
	if v, ok := cred.Data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func queryRows(ctx context.Context, pool *pgxpool.Pool, query string) (any, error) {
	return queryRowsArgs(ctx, pool, query, nil)
}

// queryRowsArgs runs a query and renders every row as a JSON-safe map.
// Cell values outside the core scalar types come back as null, matching
// what workflows can actually consume downstream.
func queryRowsArgs(ctx context.Context, pool *pgxpool.Pool, query string, args []any) (any, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	results := make([]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("%s", err)
		}
		record := make(map[string]any, len(fields))
		for i, fd := range fields {
			if i < len(values) {
				record[string(fd.Name)] = coerceCell(values[i])
			}
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s", err)
	}
	return results, nil
}

func coerceCell(v any) any {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return val
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case float64:
		return val
	case float32:
		return float64(val)
	case bool:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return nil
	}
}
