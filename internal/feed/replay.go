package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// ReplayFeed replays recorded ticks from a CSV file, for deterministic
// offline runs of the engine. Expected columns: timestamp (RFC3339 or unix
// seconds), bid, ask.
type ReplayFeed struct {
	Path   string
	Symbol string
}

func NewReplayFeed(path, symbol string) *ReplayFeed {
	return &ReplayFeed{Path: path, Symbol: symbol}
}

// Ticks streams the file contents in order. Malformed rows are skipped;
// ordering is whatever the file contains, since the engine is responsible
// for dropping stale events either way.
func (f *ReplayFeed) Ticks(ctx context.Context) (<-chan types.Tick, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}

	out := make(chan types.Tick)
	go func() {
		defer close(out)
		defer file.Close()

		r := csv.NewReader(file)
		r.FieldsPerRecord = -1
		for {
			record, err := r.Read()
			if err == io.EOF {
				return
			}
			if err != nil || len(record) < 3 {
				continue
			}
			tick, ok := parseTick(record, f.Symbol)
			if !ok {
				continue
			}
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func parseTick(record []string, symbol string) (types.Tick, bool) {
	ts, ok := parseTimestamp(record[0])
	if !ok {
		return types.Tick{}, false
	}
	bid, err1 := strconv.ParseFloat(record[1], 64)
	ask, err2 := strconv.ParseFloat(record[2], 64)
	if err1 != nil || err2 != nil {
		return types.Tick{}, false
	}
	return types.Tick{Symbol: symbol, Bid: bid, Ask: ask, Timestamp: ts}, true
}

func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
