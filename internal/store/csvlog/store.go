// Package csvlog persists closed bars as append-only CSV logs, one file per
// (symbol, timeframe) under a per-client directory.
package csvlog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"ohlcbridge/internal/model"
)

// Header is the column header written once at the top of every log.
var Header = []string{"Timestamp", "Open", "High", "Low", "Close", "Volume", "TickCount"}

// PriceDecimals is the fixed precision of price columns.
const PriceDecimals = 5

// ErrUnsafeSymbol is returned for symbols that cannot name a file inside the
// client directory.
var ErrUnsafeSymbol = errors.New("csvlog: unsafe symbol")

// Config configures the CSV store.
type Config struct {
	BaseDir  string // parent directory, e.g. "."
	ClientID string // namespaces the log directory so instances do not collide
}

// Store writes bars to <BaseDir>/OHLC_price_data_<ClientID>/<SYMBOL>_<tf>.csv.
// Each file has a single writer (the aggregator, under its lock), so no
// per-file lock is taken; the mutex only guards the header bookkeeping.
type Store struct {
	dir string
	log *slog.Logger

	mu      sync.Mutex
	headers map[string]bool // files known to already carry a header
}

// New creates the client data directory and returns a Store.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(cfg.BaseDir, "OHLC_price_data_"+cfg.ClientID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvlog mkdir %s: %w", dir, err)
	}
	logger.Info("bar log directory ready", slog.String("component", "csvlog"), slog.String("dir", dir))
	return &Store{
		dir:     dir,
		log:     logger.With(slog.String("component", "csvlog")),
		headers: make(map[string]bool),
	}, nil
}

// Dir returns the directory the logs are written to.
func (s *Store) Dir() string { return s.dir }

// Path returns the log file path for (symbol, tf).
func (s *Store) Path(symbol string, tf model.Timeframe) string {
	return filepath.Join(s.dir, symbol+"_"+tf.String()+".csv")
}

// checkSymbol rejects symbols that are empty or could resolve outside dir.
func checkSymbol(symbol string) error {
	if symbol == "" || strings.Contains(symbol, "..") || strings.ContainsAny(symbol, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrUnsafeSymbol, symbol)
	}
	return nil
}

// Append writes one record, preceded by the header if the file is new or empty.
func (s *Store) Append(symbol string, tf model.Timeframe, bar model.Bar) error {
	if err := checkSymbol(symbol); err != nil {
		return err
	}
	path := s.Path(symbol, tf)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csvlog open %s: %w", path, err)
	}
	defer f.Close()

	needHeader, err := s.needsHeader(path, f)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	if needHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("csvlog header %s: %w", path, err)
		}
	}
	if err := w.Write(FormatRecord(bar)); err != nil {
		return fmt.Errorf("csvlog write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csvlog flush %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("csvlog flush %s: %w", path, err)
	}

	if needHeader {
		s.mu.Lock()
		s.headers[path] = true
		s.mu.Unlock()
	}
	return nil
}

// needsHeader reports whether path is empty. The result is cached once a
// header has been written, so steady-state appends skip the stat.
func (s *Store) needsHeader(path string, f *os.File) (bool, error) {
	s.mu.Lock()
	known := s.headers[path]
	s.mu.Unlock()
	if known {
		return false, nil
	}
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("csvlog stat %s: %w", path, err)
	}
	if info.Size() > 0 {
		s.mu.Lock()
		s.headers[path] = true
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// FormatRecord renders a bar as CSV fields: epoch seconds, four prices fixed
// to PriceDecimals, then volume and tick count as integers.
func FormatRecord(bar model.Bar) []string {
	return []string{
		strconv.FormatInt(bar.BucketStart.Unix(), 10),
		formatPrice(bar.Open),
		formatPrice(bar.High),
		formatPrice(bar.Low),
		formatPrice(bar.Close),
		strconv.FormatInt(bar.Volume, 10),
		strconv.Itoa(bar.TickCount),
	}
}

func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(PriceDecimals)
}

// ReadBars parses the log for (symbol, tf) and returns bars with bucket
// start > afterTS in file order. A missing file yields no bars.
func (s *Store) ReadBars(symbol string, tf model.Timeframe, afterTS int64) ([]model.Bar, error) {
	if err := checkSymbol(symbol); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path(symbol, tf))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("csvlog open: %w", err)
	}
	defer f.Close()
	return ParseLog(f, afterTS)
}

// ParseLog reads a bar log. The header row is skipped.
func ParseLog(r io.Reader, afterTS int64) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	var bars []model.Bar
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvlog parse: %w", err)
		}
		if first {
			first = false
			if rec[0] == Header[0] {
				continue
			}
		}
		bar, err := parseRecord(rec)
		if err != nil {
			return nil, err
		}
		if bar.BucketStart.Unix() > afterTS {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}
