package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"shopee-research/models"
)

// ErrEmptyResult is returned when asked to export a ResultSet with no rows.
var ErrEmptyResult = errors.New("storage: empty result set")

// Header returns the CSV header row for framing.
func Header(framing models.Framing) []string {
	rate, commission, revenue := framing.Columns()
	return []string{
		"keyword", "name", "price", "sales", "rating", "stock",
		"shop_location", "shop_name", "product_url",
		rate, commission, revenue,
	}
}

// WriteCSV encodes rs with a header row to w.
func WriteCSV(w io.Writer, rs models.ResultSet, framing models.Framing) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header(framing)); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, p := range rs {
		row := []string{
			p.Keyword,
			p.Name,
			formatMoney(p.Price),
			strconv.FormatInt(p.Sales, 10),
			strconv.FormatFloat(p.Rating, 'f', -1, 64),
			strconv.FormatInt(p.Stock, 10),
			p.ShopLocation,
			p.ShopName,
			p.URL,
			formatMoney(p.SalesRate),
			formatMoney(p.Commission),
			formatMoney(p.EstimatedRevenue),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// EncodeCSV returns the CSV bytes for a download. An empty rs yields
// ErrEmptyResult.
func EncodeCSV(rs models.ResultSet, framing models.Framing) ([]byte, error) {
	if len(rs) == 0 {
		return nil, ErrEmptyResult
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rs, framing); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CSVFileName builds <prefix>_<keyword>_<YYYYMMDD_HHMM>.csv when exactly
// one keyword was searched, <prefix>_<YYYYMMDD_HHMM>.csv otherwise.
func CSVFileName(prefix string, keywords []string, now time.Time) string {
	stamp := now.Format("20060102_1504")
	if len(keywords) == 1 {
		if kw := fileSafe(keywords[0]); kw != "" {
			return fmt.Sprintf("%s_%s_%s.csv", prefix, kw, stamp)
		}
	}
	return fmt.Sprintf("%s_%s.csv", prefix, stamp)
}

// CSVWriter exports ranked results to files under a directory.
type CSVWriter struct {
	dir    string
	prefix string
	now    func() time.Time
}

// NewCSVWriter creates the output directory if needed.
func NewCSVWriter(dir, prefix string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	return &CSVWriter{dir: dir, prefix: prefix, now: time.Now}, nil
}

// Export writes rs to a new file named by CSVFileName and returns its path.
// Nothing is written for an empty rs.
func (c *CSVWriter) Export(rs models.ResultSet, keywords []string, framing models.Framing) (string, error) {
	if len(rs) == 0 {
		return "", ErrEmptyResult
	}

	path := filepath.Join(c.dir, CSVFileName(c.prefix, keywords, c.now()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("csv: create file %q: %w", path, err)
	}

	if err := WriteCSV(f, rs, framing); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("csv: close %q: %w", path, err)
	}
	return path, nil
}

func formatMoney(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// fileSafe lowercases s and replaces anything outside [a-z0-9] with '_'.
func fileSafe(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}
