package csvlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohlcbridge/internal/model"
)

func bar(ts int64, o, h, l, c float64, vol int64, ticks int) model.Bar {
	return model.Bar{BucketStart: time.Unix(ts, 0).UTC(), Open: o, High: h, Low: l, Close: c, Volume: vol, TickCount: ticks}
}

func TestStore_HeaderWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{BaseDir: dir, ClientID: "7"}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "OHLC_price_data_7"), s.Dir())

	require.NoError(t, s.Append("EURUSD", model.TF5s, bar(0, 1.0850, 1.0855, 1.0850, 1.0855, 0, 2)))
	require.NoError(t, s.Append("EURUSD", model.TF5s, bar(5, 1.0840, 1.0840, 1.0840, 1.0840, 0, 1)))

	raw, err := os.ReadFile(filepath.Join(dir, "OHLC_price_data_7", "EURUSD_5s.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"Timestamp,Open,High,Low,Close,Volume,TickCount\n"+
			"0,1.08500,1.08550,1.08500,1.08550,0,2\n"+
			"5,1.08400,1.08400,1.08400,1.08400,0,1\n",
		string(raw))
}

func TestStore_ExistingFileGetsNoSecondHeader(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{BaseDir: dir, ClientID: "1"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append("GBPUSD", model.TF1m, bar(60, 1.27, 1.28, 1.26, 1.275, 100, 3)))

	// A fresh store over the same directory, as after a restart.
	s2, err := New(Config{BaseDir: dir, ClientID: "1"}, nil)
	require.NoError(t, err)
	require.NoError(t, s2.Append("GBPUSD", model.TF1m, bar(120, 1.275, 1.275, 1.275, 1.275, 0, 1)))

	raw, err := os.ReadFile(s2.Path("GBPUSD", model.TF1m))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "Timestamp"))
	assert.Equal(t, 3, strings.Count(string(raw), "\n"))
}

func TestStore_EmptyFileGetsHeader(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{BaseDir: dir, ClientID: "1"}, nil)
	require.NoError(t, err)

	path := s.Path("USDJPY", model.TF1h)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.NoError(t, s.Append("USDJPY", model.TF1h, bar(3600, 150.123, 150.2, 150.0, 150.1, 5, 9)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "Timestamp,Open"))
	assert.Contains(t, string(raw), "3600,150.12300,150.20000,150.00000,150.10000,5,9")
}

func TestStore_ClientIsolation(t *testing.T) {
	dir := t.TempDir()
	a, err := New(Config{BaseDir: dir, ClientID: "a"}, nil)
	require.NoError(t, err)
	b, err := New(Config{BaseDir: dir, ClientID: "b"}, nil)
	require.NoError(t, err)

	require.NoError(t, a.Append("EURUSD", model.TF1s, bar(1, 1, 1, 1, 1, 0, 1)))

	got, err := b.ReadBars("EURUSD", model.TF1s, -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ReadBarsRoundTrip(t *testing.T) {
	s, err := New(Config{BaseDir: t.TempDir(), ClientID: "1"}, nil)
	require.NoError(t, err)

	want := []model.Bar{
		bar(0, 1.0850, 1.0855, 1.0850, 1.0855, 0, 2),
		bar(5, 1.0840, 1.0840, 1.0840, 1.0840, 0, 1),
		bar(10, 1.0841, 1.0849, 1.0832, 1.0845, 120000, 17),
	}
	for _, b := range want {
		require.NoError(t, s.Append("EURUSD", model.TF5s, b))
	}

	got, err := s.ReadBars("EURUSD", model.TF5s, 0)
	require.NoError(t, err)
	assert.Equal(t, want[1:], got)
}

func TestStore_AppendFailsWhenDirectoryRemoved(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{BaseDir: dir, ClientID: "1"}, nil)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(s.Dir()))

	err = s.Append("EURUSD", model.TF1s, bar(1, 1, 1, 1, 1, 0, 1))
	assert.Error(t, err)
}

func TestStore_RejectsSymbolsEscapingDir(t *testing.T) {
	base := t.TempDir()
	s, err := New(Config{BaseDir: base, ClientID: "1"}, nil)
	require.NoError(t, err)

	for _, sym := range []string{"../../escaped", "..", "FX/EURUSD", `FX\EURUSD`, "EUR\x00USD", ""} {
		err := s.Append(sym, model.TF5s, bar(0, 1, 1, 1, 1, 0, 1))
		assert.ErrorIs(t, err, ErrUnsafeSymbol, sym)

		_, err = s.ReadBars(sym, model.TF5s, -1)
		assert.ErrorIs(t, err, ErrUnsafeSymbol, sym)
	}

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "OHLC_price_data_1", entries[0].Name())

	logs, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, s.Append("EUR.USD", model.TF5s, bar(0, 1, 1, 1, 1, 0, 1)))
}

func TestFormatRecord_NegativeAndZeroValues(t *testing.T) {
	rec := FormatRecord(bar(-5, -1, 0, -2.5, 0.000004, 0, 1))
	assert.Equal(t, []string{"-5", "-1.00000", "0.00000", "-2.50000", "0.00000", "0", "1"}, rec)
}

func TestParseLog_RejectsMalformedRow(t *testing.T) {
	_, err := ParseLog(strings.NewReader("Timestamp,Open,High,Low,Close,Volume,TickCount\nx,1,1,1,1,0,1\n"), 0)
	assert.Error(t, err)
}
