package etl

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/BartekS5/storefront-etl/pkg/models"
)

// maxParamsPerInsert keeps multi-row inserts under the SQL Server limit of
// 2100 parameters.
const maxParamsPerInsert = 1000

type sqlDialect struct {
	placeholder func(i int) string
	quote       func(name string) string
	types       map[string]string
	existsQuery string
	createTable func(table, columns string) string
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func createIfNotExists(table, columns string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, columns)
}

func questionMark(int) string { return "?" }

var sqlDialects = map[string]sqlDialect{
	"sqlserver": {
		placeholder: func(i int) string { return fmt.Sprintf("@p%d", i) },
		quote:       func(n string) string { return "[" + strings.ReplaceAll(n, "]", "]]") + "]" },
		types:       map[string]string{models.TypeInteger: "BIGINT", models.TypeFloat: "FLOAT", models.TypeString: "NVARCHAR(MAX)"},
		existsQuery: "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = @p1",
		createTable: func(table, columns string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
				strings.ReplaceAll(table, "'", "''"), table, columns)
		},
	},
	"postgres": {
		placeholder: func(i int) string { return fmt.Sprintf("$%d", i) },
		quote:       doubleQuote,
		types:       map[string]string{models.TypeInteger: "BIGINT", models.TypeFloat: "DOUBLE PRECISION", models.TypeString: "TEXT"},
		existsQuery: "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1",
		createTable: createIfNotExists,
	},
	"mysql": {
		placeholder: questionMark,
		quote:       func(n string) string { return "`" + strings.ReplaceAll(n, "`", "``") + "`" },
		types:       map[string]string{models.TypeInteger: "BIGINT", models.TypeFloat: "DOUBLE", models.TypeString: "TEXT"},
		existsQuery: "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		createTable: createIfNotExists,
	},
	"sqlite": {
		placeholder: questionMark,
		quote:       doubleQuote,
		types:       map[string]string{models.TypeInteger: "INTEGER", models.TypeFloat: "REAL", models.TypeString: "TEXT"},
		existsQuery: "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		createTable: createIfNotExists,
	},
}

// SQLWarehouse loads CSV files into a relational database. The project part
// of a table id is ignored; dataset and table are joined as dataset_table.
type SQLWarehouse struct {
	DB     *sql.DB
	Driver string

	dialect sqlDialect
}

func NewSQLWarehouse(db *sql.DB, driver string) (*SQLWarehouse, error) {
	d, ok := sqlDialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL warehouse driver %q", driver)
	}
	return &SQLWarehouse{DB: db, Driver: driver, dialect: d}, nil
}

// TableName is the physical table used for id.
func (w *SQLWarehouse) TableName(id models.TableID) string {
	return id.Dataset + "_" + id.Table
}

func (w *SQLWarehouse) EnsureTable(ctx context.Context, id models.TableID, schema models.Schema) (bool, error) {
	exists, err := w.tableExists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if len(schema) == 0 {
		// relational tables need columns; autodetect creates it on load
		logger.Debugf("Deferring creation of %s until the load detects a schema", w.TableName(id))
		return false, nil
	}
	if err := w.createTable(ctx, w.DB, id, schema); err != nil {
		return false, err
	}
	return true, nil
}

func (w *SQLWarehouse) LoadCSV(ctx context.Context, id models.TableID, csvPath string, opts LoadOptions) error {
	schema := opts.Schema
	if len(schema) == 0 {
		detected, err := DetectSchema(csvPath)
		if err != nil {
			return fmt.Errorf("detect schema: %w", err)
		}
		logger.Infof("Detected schema for %s: %v", w.TableName(id), detected)
		schema = detected
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	types := make([]string, len(header))
	byName := make(map[string]string, len(schema))
	for _, fld := range schema {
		byName[fld.Name] = fld.Type
	}
	for i, h := range header {
		typ, ok := byName[h]
		if !ok {
			return fmt.Errorf("csv column %q is not in the table schema", h)
		}
		types[i] = typ
	}

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.createTable(ctx, tx, id, schema); err != nil {
		return err
	}

	table := w.dialect.quote(w.TableName(id))
	if opts.Disposition != DispositionAppend {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	batchRows := maxParamsPerInsert / len(header)
	if batchRows < 1 {
		batchRows = 1
	}
	var batch [][]interface{}
	total := 0
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("read csv line %d: %w", line, err)
		}
		row, err := convertRow(rec, types)
		if err != nil {
			return fmt.Errorf("csv line %d: %w", line, err)
		}
		batch = append(batch, row)
		if len(batch) == batchRows {
			if err := w.insert(ctx, tx, table, header, batch); err != nil {
				return err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := w.insert(ctx, tx, table, header, batch); err != nil {
			return err
		}
		total += len(batch)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Debugf("Inserted %d rows into %s", total, table)
	return nil
}

func (w *SQLWarehouse) Stats(ctx context.Context, id models.TableID) (int64, int, error) {
	table := w.dialect.quote(w.TableName(id))

	var rows int64
	if err := w.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&rows); err != nil {
		return 0, 0, fmt.Errorf("count rows of %s: %w", table, err)
	}

	res, err := w.DB.QueryContext(ctx, "SELECT * FROM "+table+" WHERE 1 = 0")
	if err != nil {
		return 0, 0, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer res.Close()
	cols, err := res.Columns()
	if err != nil {
		return 0, 0, err
	}
	return rows, len(cols), nil
}

func (w *SQLWarehouse) Close() error {
	return w.DB.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (w *SQLWarehouse) tableExists(ctx context.Context, id models.TableID) (bool, error) {
	var n int
	if err := w.DB.QueryRowContext(ctx, w.dialect.existsQuery, w.TableName(id)).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %s: %w", w.TableName(id), err)
	}
	return n > 0, nil
}

func (w *SQLWarehouse) createTable(ctx context.Context, db execer, id models.TableID, schema models.Schema) error {
	cols := make([]string, len(schema))
	for i, f := range schema {
		typ, ok := w.dialect.types[f.Type]
		if !ok {
			return fmt.Errorf("column %s: unsupported type %q", f.Name, f.Type)
		}
		col := w.dialect.quote(f.Name) + " " + typ
		if f.Mode == models.ModeRequired {
			col += " NOT NULL"
		}
		cols[i] = col
	}
	query := w.dialect.createTable(w.dialect.quote(w.TableName(id)), strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", w.TableName(id), err)
	}
	return nil
}

func (w *SQLWarehouse) insert(ctx context.Context, tx *sql.Tx, table string, header []string, rows [][]interface{}) error {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = w.dialect.quote(h)
	}

	var values []string
	args := make([]interface{}, 0, len(rows)*len(header))
	for _, row := range rows {
		ph := make([]string, len(row))
		for i, v := range row {
			args = append(args, v)
			ph[i] = w.dialect.placeholder(len(args))
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(values, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// convertRow turns CSV cells into driver values; empty cells become NULL.
func convertRow(rec []string, types []string) ([]interface{}, error) {
	if len(rec) != len(types) {
		return nil, fmt.Errorf("got %d fields, want %d", len(rec), len(types))
	}
	row := make([]interface{}, len(rec))
	for i, cell := range rec {
		if cell == "" {
			row[i] = nil
			continue
		}
		switch types[i] {
		case models.TypeInteger:
			n, err := strconv.ParseInt(cell, 10, 64)
			if err != nil {
				// integral floats such as "3.0" are accepted
				f, ferr := strconv.ParseFloat(cell, 64)
				if ferr != nil || f != float64(int64(f)) {
					return nil, fmt.Errorf("field %d: %q is not an integer", i+1, cell)
				}
				n = int64(f)
			}
			row[i] = n
		case models.TypeFloat:
			f, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("field %d: %q is not a number", i+1, cell)
			}
			row[i] = f
		default:
			row[i] = cell
		}
	}
	return row, nil
}
