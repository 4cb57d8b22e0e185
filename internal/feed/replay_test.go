package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayFeedStreamsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.csv")
	data := "2026-01-05T14:30:01Z,100.0,100.1\n" +
		"1767623402,100.5,100.6\n" + // unix seconds are accepted too
		"not-a-timestamp,1,2\n" + // skipped
		"2026-01-05T14:30:03Z,abc,100.9\n" + // skipped
		"2026-01-05T14:30:04Z,101.0,101.1\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	f := NewReplayFeed(path, "BTCUSDT")
	ticks, err := f.Ticks(context.Background())
	require.NoError(t, err)

	var got []float64
	for tick := range ticks {
		assert.Equal(t, "BTCUSDT", tick.Symbol)
		got = append(got, tick.Bid)
	}
	assert.Equal(t, []float64{100.0, 100.5, 101.0}, got)
}

func TestReplayFeedMissingFile(t *testing.T) {
	f := NewReplayFeed(filepath.Join(t.TempDir(), "absent.csv"), "BTCUSDT")
	_, err := f.Ticks(context.Background())
	assert.Error(t, err)
}

func TestReplayFeedStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.csv")
	data := "2026-01-05T14:30:01Z,100.0,100.1\n" +
		"2026-01-05T14:30:02Z,100.2,100.3\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	f := NewReplayFeed(path, "BTCUSDT")
	ticks, err := f.Ticks(ctx)
	require.NoError(t, err)

	<-ticks
	cancel()

	// the channel closes once the producer observes the cancellation
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-ticks:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("feed did not stop after cancel")
		}
	}
}
