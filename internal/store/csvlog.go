package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/i474232898/irrigation-assistant/internal/weather"
)

// legacyTimeLayout is how older logs wrote forecast_time and fetched_at.
const legacyTimeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{
	"location_name",
	"latitude",
	"longitude",
	"forecast_time",
	"temp_c",
	"feels_like_c",
	"temp_min_c",
	"temp_max_c",
	"humidity_percent",
	"weather_condition",
	"wind_speed_mps",
	"precipitation_prob_percent",
	"cloudiness_percent",
	"fetched_at",
}

// CSVLog is an append-only forecast log kept in a flat CSV file with a
// header row. Each Append encodes the whole batch in memory and issues a
// single write, so a batch never interleaves with another from this process.
type CSVLog struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewCSVLog returns a log backed by the file at path. The file is created on
// the first append.
func NewCSVLog(path string, logger *slog.Logger) *CSVLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVLog{path: path, logger: logger}
}

// Append writes records to the end of the file, adding the header if the
// file is new. A truncated last line left by an earlier crash is terminated
// first so the new batch starts on its own row.
func (l *CSVLog) Append(ctx context.Context, records []weather.ForecastRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %v: %w", l.path, err, weather.ErrStoreUnavailable)
	}

	if err := l.writeBatch(f, records); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %v: %w", l.path, err, weather.ErrStoreUnavailable)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %v: %w", l.path, err, weather.ErrStoreUnavailable)
	}
	return nil
}

func (l *CSVLog) writeBatch(f *os.File, records []weather.ForecastRecord) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if size := info.Size(); size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			return err
		}
		if last[0] != '\n' {
			buf.WriteByte('\n')
		}
	}

	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, r := range records {
		if err := w.Write(encodeRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	return f.Sync()
}

// ReadAll parses the whole file. Rows that cannot be parsed (for example a
// partially written trailing row) are skipped.
func (l *CSVLog) ReadAll(ctx context.Context) ([]weather.ForecastRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, weather.ErrStoreMissing
		}
		return nil, fmt.Errorf("open %s: %v: %w", l.path, err, weather.ErrStoreUnavailable)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, weather.ErrStoreEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header %s: %v: %w", l.path, err, weather.ErrStoreUnavailable)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", l.path, err, weather.ErrStoreUnavailable)
	}

	var (
		out     []weather.ForecastRecord
		skipped int
	)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %v: %w", l.path, err, weather.ErrStoreUnavailable)
		}

		rec, err := decodeRow(cols, row)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}

	if skipped > 0 {
		l.logger.WarnContext(ctx, "skipped unparsable forecast log rows", "path", l.path, "rows", skipped)
	}
	if len(out) == 0 {
		return nil, weather.ErrStoreEmpty
	}
	return out, nil
}

// ReadSince returns the records fetched at or after since.
func (l *CSVLog) ReadSince(ctx context.Context, since time.Time) ([]weather.ForecastRecord, error) {
	all, err := l.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterSince(all, since), nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{"forecast_time", "fetched_at"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	return cols, nil
}

func encodeRow(r weather.ForecastRecord) []string {
	return []string{
		r.LocationName,
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
		r.ForecastTime.UTC().Format(time.RFC3339Nano),
		formatFloat(r.TempC),
		formatFloat(r.FeelsLikeC),
		formatFloat(r.TempMinC),
		formatFloat(r.TempMaxC),
		formatFloat(r.HumidityPercent),
		r.WeatherCondition,
		formatFloat(r.WindSpeedMPS),
		formatFloat(r.PrecipitationProbPercent),
		formatFloat(r.CloudinessPercent),
		r.FetchedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeRow(cols map[string]int, row []string) (weather.ForecastRecord, error) {
	d := rowDecoder{cols: cols, row: row}

	rec := weather.ForecastRecord{
		LocationName:             d.str("location_name"),
		Latitude:                 d.float("latitude"),
		Longitude:                d.float("longitude"),
		ForecastTime:             d.time("forecast_time"),
		TempC:                    d.float("temp_c"),
		FeelsLikeC:               d.float("feels_like_c"),
		TempMinC:                 d.float("temp_min_c"),
		TempMaxC:                 d.float("temp_max_c"),
		HumidityPercent:          d.float("humidity_percent"),
		WeatherCondition:         d.str("weather_condition"),
		WindSpeedMPS:             d.float("wind_speed_mps"),
		PrecipitationProbPercent: d.float("precipitation_prob_percent"),
		CloudinessPercent:        d.float("cloudiness_percent"),
		FetchedAt:                d.time("fetched_at"),
	}
	if d.err != nil {
		return weather.ForecastRecord{}, d.err
	}
	return rec, nil
}

// rowDecoder keeps the first error so a row is decoded in one pass.
type rowDecoder struct {
	cols map[string]int
	row  []string
	err  error
}

func (d *rowDecoder) cell(name string) (string, bool) {
	i, ok := d.cols[name]
	if !ok {
		return "", false
	}
	if i >= len(d.row) {
		if d.err == nil {
			d.err = fmt.Errorf("row has %d fields, want column %q at %d", len(d.row), name, i)
		}
		return "", false
	}
	return d.row[i], true
}

func (d *rowDecoder) str(name string) string {
	v, _ := d.cell(name)
	return v
}

func (d *rowDecoder) float(name string) float64 {
	v, ok := d.cell(name)
	if !ok || v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("%s: %w", name, err)
	}
	return f
}

func (d *rowDecoder) time(name string) time.Time {
	v, ok := d.cell(name)
	if !ok {
		return time.Time{}
	}
	t, err := parseTime(v)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("%s: %w", name, err)
	}
	return t
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation(legacyTimeLayout, s, time.UTC)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ weather.ForecastLog = (*CSVLog)(nil)
