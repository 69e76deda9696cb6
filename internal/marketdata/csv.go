// Package marketdata loads historical candle series for the cmd
// entrypoints' demo exchange/frame schemas: a CSV reader and a
// synthetic sample generator, both producing the engine's own
// exchangeclient.Candle rather than a live feed.
package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/backtestkit/internal/exchangeclient"
)

// LoadCSV reads a timestamp,open,high,low,close,volume CSV file into an
// ascending-by-timestamp candle series. Timestamps accept Unix seconds,
// Unix milliseconds, or RFC3339.
func LoadCSV(path string) ([]exchangeclient.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if _, err := strconv.ParseFloat(header[1], 64); err == nil {
		// First row is data, not a header; rewind and read it too.
		if _, err := file.Seek(0, 0); err != nil {
			return nil, err
		}
		reader = csv.NewReader(file)
	}

	var candles []exchangeclient.Candle
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if len(record) < 6 {
			continue
		}
		candle, err := parseRecord(record)
		if err != nil {
			continue
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].TimestampMs < candles[j].TimestampMs })
	return candles, nil
}

func parseRecord(record []string) (exchangeclient.Candle, error) {
	ts, err := parseTimestamp(record[0])
	if err != nil {
		return exchangeclient.Candle{}, err
	}
	open, err := decimal.NewFromString(record[1])
	if err != nil {
		return exchangeclient.Candle{}, fmt.Errorf("invalid open: %w", err)
	}
	high, err := decimal.NewFromString(record[2])
	if err != nil {
		return exchangeclient.Candle{}, fmt.Errorf("invalid high: %w", err)
	}
	low, err := decimal.NewFromString(record[3])
	if err != nil {
		return exchangeclient.Candle{}, fmt.Errorf("invalid low: %w", err)
	}
	closePrice, err := decimal.NewFromString(record[4])
	if err != nil {
		return exchangeclient.Candle{}, fmt.Errorf("invalid close: %w", err)
	}
	volume, err := decimal.NewFromString(record[5])
	if err != nil {
		return exchangeclient.Candle{}, fmt.Errorf("invalid volume: %w", err)
	}
	return exchangeclient.Candle{
		TimestampMs: ts.UnixMilli(),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePrice,
		Volume:      volume,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts > 10000000000 {
			return time.UnixMilli(ts), nil
		}
		return time.Unix(ts, 0), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, format := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
}

// GenerateSample synthesizes a deterministic candle series for demos
// and smoke tests, one candle per minute starting at start.
func GenerateSample(start time.Time, count int, basePrice float64) []exchangeclient.Candle {
	candles := make([]exchangeclient.Candle, 0, count)
	current := decimal.NewFromFloat(basePrice)
	when := start

	for i := 0; i < count; i++ {
		change := decimal.NewFromFloat((float64(i%10) - 5) * 0.001)
		open := current
		closePrice := current.Add(current.Mul(change))
		high := decimal.Max(open, closePrice).Mul(decimal.NewFromFloat(1.001))
		low := decimal.Min(open, closePrice).Mul(decimal.NewFromFloat(0.999))
		volume := decimal.NewFromFloat(1000 + float64(i%500))

		candles = append(candles, exchangeclient.Candle{
			TimestampMs: when.UnixMilli(),
			Open:        open,
			High:        high,
			Low:         low,
			Close:       closePrice,
			Volume:      volume,
		})

		when = when.Add(time.Minute)
		current = closePrice
	}
	return candles
}
