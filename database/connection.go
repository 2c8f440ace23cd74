package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Supported SQL drivers for the transaction source
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// DefaultTransactionQuery selects the required columns from a transactions table
const DefaultTransactionQuery = `SELECT InvoiceNo, StockCode, Description, Quantity, InvoiceDate, UnitPrice, CustomerID, Country FROM transactions`

// SourceConfig holds connection settings for a SQL transaction source
type SourceConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Query    string
}

// DSN builds the driver-specific connection string
func (c SourceConfig) DSN() (string, error) {
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.DBName,
		), nil
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%s", c.Host, c.Port)
		cfg.DBName = c.DBName
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN(), nil
	}
	return "", NewValidationErrorWithValue("driver", "unsupported SQL driver", c.Driver)
}

// TransactionSource reads raw transaction rows with a SQL query
type TransactionSource struct {
	conn  *sql.DB
	name  string
	query string
}

// OpenTransactionSource opens and verifies a SQL connection for transaction reads
func OpenTransactionSource(cfg SourceConfig) (*TransactionSource, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Reads are batch scans, a small pool is enough
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("✅ Transaction source connected (%s %s:%s/%s)", cfg.Driver, cfg.Host, cfg.Port, cfg.DBName)
	return NewTransactionSource(conn, fmt.Sprintf("%s://%s/%s", cfg.Driver, cfg.Host, cfg.DBName), cfg.Query), nil
}

// NewTransactionSource wraps an open connection; an empty query uses DefaultTransactionQuery
func NewTransactionSource(conn *sql.DB, name, query string) *TransactionSource {
	if query == "" {
		query = DefaultTransactionQuery
	}
	return &TransactionSource{conn: conn, name: name, query: query}
}

// Name identifies the source in logs and errors
func (s *TransactionSource) Name() string {
	return s.name
}

// Rows runs the query and returns every value rendered as text. Column
// validation is left to the normalizer so missing columns are reported together.
func (s *TransactionSource) Rows(ctx context.Context) ([]string, [][]string, error) {
	rows, err := s.conn.QueryContext(ctx, s.query)
	if err != nil {
		return nil, nil, WrapDBError("query transactions", err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, nil, WrapDBError("read columns", err)
	}

	values := make([]interface{}, len(header))
	ptrs := make([]interface{}, len(header))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var out [][]string
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, WrapDBError("scan transaction", err)
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = textValue(v)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, WrapDBError("iterate transactions", err)
	}
	return header, out, nil
}

// Close closes the underlying connection
func (s *TransactionSource) Close() error {
	if s.conn != nil {
		log.Println("📡 Closing transaction source connection...")
		return s.conn.Close()
	}
	return nil
}

func textValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
