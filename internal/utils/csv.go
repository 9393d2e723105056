package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"smcPaperBot/internal/domain"
)

func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"})

	for _, k := range klines {
		writer.Write([]string{
			k.OpenTime.Format(time.RFC3339),
			k.CloseTime.Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}

// ReadKlinesFromCSV loads a kline series written by WriteKlinesToCSV.
func ReadKlinesFromCSV(filename string) ([]*domain.Kline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header := true
	var klines []*domain.Kline
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			continue
		}
		if len(rec) < 9 {
			return nil, fmt.Errorf("malformed kline row: %v", rec)
		}
		openTime, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("parsing open_time %q: %w", rec[0], err)
		}
		closeTime, err := time.Parse(time.RFC3339, rec[1])
		if err != nil {
			return nil, fmt.Errorf("parsing close_time %q: %w", rec[1], err)
		}
		k := &domain.Kline{
			OpenTime:  openTime,
			CloseTime: closeTime,
			Symbol:    rec[2],
			Interval:  rec[3],
			IsFinal:   true,
		}
		for i, dst := range []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume} {
			v, err := strconv.ParseFloat(rec[4+i], 64)
			if err != nil {
				return nil, fmt.Errorf("parsing numeric field %d: %w", 4+i, err)
			}
			*dst = v
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// ReadTradesFromCSV loads a trade export written by WriteTradesToCSV.
func ReadTradesFromCSV(filename string) ([]*domain.Trade, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header := true
	var trades []*domain.Trade
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			continue
		}
		if len(rec) < 14 {
			return nil, fmt.Errorf("malformed trade row: %v", rec)
		}
		exitTime, err := time.Parse(time.RFC3339, rec[7])
		if err != nil {
			return nil, fmt.Errorf("parsing exit_time %q: %w", rec[7], err)
		}
		bars, err := strconv.Atoi(rec[11])
		if err != nil {
			return nil, fmt.Errorf("parsing bars %q: %w", rec[11], err)
		}
		t := &domain.Trade{
			Symbol:      rec[0],
			Direction:   domain.Direction(rec[1]),
			Timeframe:   rec[2],
			Outcome:     domain.Outcome(rec[5]),
			ExitTime:    exitTime,
			BarsInTrade: bars,
		}
		floats := []struct {
			idx int
			dst *float64
		}{
			{3, &t.Entry}, {4, &t.StopLoss}, {6, &t.ExitPrice},
			{8, &t.RMultiple}, {9, &t.PnlPercent}, {10, &t.PnlQuote},
			{12, &t.MaxAdverseR}, {13, &t.MaxFavorableR},
		}
		for _, f := range floats {
			v, err := strconv.ParseFloat(rec[f.idx], 64)
			if err != nil {
				return nil, fmt.Errorf("parsing numeric field %d: %w", f.idx, err)
			}
			*f.dst = v
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// WriteTradesToCSV exports completed trades for spreadsheet review.
func WriteTradesToCSV(trades []*domain.Trade, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write([]string{
		"symbol", "direction", "timeframe", "entry", "stop_loss", "outcome",
		"exit_price", "exit_time", "r_multiple", "pnl_percent", "pnl_quote",
		"bars", "max_adverse_r", "max_favorable_r",
	})
	for _, t := range trades {
		writer.Write([]string{
			t.Symbol,
			string(t.Direction),
			t.Timeframe,
			strconv.FormatFloat(t.Entry, 'f', -1, 64),
			strconv.FormatFloat(t.StopLoss, 'f', -1, 64),
			string(t.Outcome),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			t.ExitTime.Format(time.RFC3339),
			strconv.FormatFloat(t.RMultiple, 'f', 4, 64),
			strconv.FormatFloat(t.PnlPercent, 'f', 4, 64),
			strconv.FormatFloat(t.PnlQuote, 'f', 4, 64),
			strconv.Itoa(t.BarsInTrade),
			strconv.FormatFloat(t.MaxAdverseR, 'f', 4, 64),
			strconv.FormatFloat(t.MaxFavorableR, 'f', 4, 64),
		})
	}
	return writer.Error()
}
