package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohlcbridge/internal/model"
)

func newWriter(t *testing.T, clientID string, path string) *Writer {
	t.Helper()
	w, err := New(WriterConfig{DBPath: path, ClientID: clientID}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWriter_AppendAndRead(t *testing.T) {
	w := newWriter(t, "1", filepath.Join(t.TempDir(), "bars.db"))

	b1 := model.Bar{BucketStart: time.Unix(0, 0).UTC(), Open: 1.085, High: 1.0855, Low: 1.085, Close: 1.0855, TickCount: 2}
	b2 := model.Bar{BucketStart: time.Unix(5, 0).UTC(), Open: 1.084, High: 1.084, Low: 1.084, Close: 1.084, Volume: 10, TickCount: 1}
	require.NoError(t, w.Append("EURUSD", model.TF5s, b2))
	require.NoError(t, w.Append("EURUSD", model.TF5s, b1))
	require.NoError(t, w.Append("EURUSD", model.TF1m, b1))

	got, err := w.ReadBars("EURUSD", model.TF5s, -1)
	require.NoError(t, err)
	assert.Equal(t, []model.Bar{b1, b2}, got)

	last, err := w.GetLastTimestamp("EURUSD", model.TF5s)
	require.NoError(t, err)
	assert.EqualValues(t, 5, last)

	last, err = w.GetLastTimestamp("GBPUSD", model.TF5s)
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestWriter_ReplaceSameBucket(t *testing.T) {
	w := newWriter(t, "1", filepath.Join(t.TempDir(), "bars.db"))

	b := model.Bar{BucketStart: time.Unix(60, 0).UTC(), Open: 1, High: 1, Low: 1, Close: 1, TickCount: 1}
	require.NoError(t, w.Append("GBPUSD", model.TF1m, b))
	b.Close, b.High, b.TickCount = 2, 2, 2
	require.NoError(t, w.Append("GBPUSD", model.TF1m, b))

	got, err := w.ReadBars("GBPUSD", model.TF1m, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].TickCount)
}

func TestWriter_ClientNamespacing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a := newWriter(t, "a", path)
	require.NoError(t, a.Append("EURUSD", model.TF1s, model.Bar{BucketStart: time.Unix(1, 0).UTC(), TickCount: 1}))
	a.Close()

	b := newWriter(t, "b", path)
	got, err := b.ReadBars("EURUSD", model.TF1s, -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}
