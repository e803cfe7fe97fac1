package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ohlcbridge/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite bar store.
type WriterConfig struct {
	DBPath   string // path to SQLite database file, e.g. "data/bars.db"
	ClientID string // rows are namespaced by client so instances can share a file
}

// Writer persists closed bars to SQLite. It satisfies model.BarSink and
// model.BarReader.
type Writer struct {
	db       *sql.DB
	clientID string
	insert   *sql.Stmt
	log      *slog.Logger

	// OnCommit observes insert latency (optional, for metrics).
	OnCommit func(d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	stmt, err := db.Prepare(`
		INSERT OR REPLACE INTO bars (client_id, symbol, tf, ts, open, high, low, close, volume, tick_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite prepare: %w", err)
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "1"
	}
	l := logger.With(slog.String("component", "sqlite"))
	l.Info("opened database", slog.String("path", cfg.DBPath))
	return &Writer{db: db, clientID: clientID, insert: stmt, log: l}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			client_id  TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			tf         INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     INTEGER,
			tick_count INTEGER,
			PRIMARY KEY (client_id, symbol, tf, ts)
		);
	`)
	return err
}

// Append inserts one closed bar. A bar for an already stored bucket replaces it.
func (w *Writer) Append(symbol string, tf model.Timeframe, bar model.Bar) error {
	start := time.Now()
	_, err := w.insert.Exec(w.clientID, symbol, int(tf), bar.BucketStart.Unix(),
		bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.TickCount)
	if err != nil {
		return fmt.Errorf("sqlite insert %s/%s: %w", symbol, tf, err)
	}
	if w.OnCommit != nil {
		w.OnCommit(time.Since(start))
	}
	return nil
}

// ReadBars returns this client's bars for (symbol, tf) with ts > afterTS,
// ordered by timestamp ascending.
func (w *Writer) ReadBars(symbol string, tf model.Timeframe, afterTS int64) ([]model.Bar, error) {
	rows, err := w.db.Query(`
		SELECT ts, open, high, low, close, volume, tick_count
		FROM bars
		WHERE client_id = ? AND symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, w.clientID, symbol, int(tf), afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TickCount); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.BucketStart = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// GetLastTimestamp returns the last stored bucket start for (symbol, tf).
// Returns 0 if no bars exist.
func (w *Writer) GetLastTimestamp(symbol string, tf model.Timeframe) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM bars WHERE client_id = ? AND symbol = ? AND tf = ?`,
		w.clientID, symbol, int(tf),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	w.insert.Close()
	return w.db.Close()
}
