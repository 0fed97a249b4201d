package ingestion

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/progdex/progdex/internal/catalog"
)

// keyColumn names the CSV column (and JSON key) that holds the record id.
const keyColumn = "id"

// boolColumns and intColumns list the CSV columns parsed into typed values;
// every other column stays a string. JSON input carries its own types.
var (
	boolColumns = map[string]bool{
		"internship_required": true,
		"thesis_required":     true,
	}
	intColumns = map[string]bool{
		"admission_data_count": true,
	}
)

// LoadRecords reads catalog records from a .csv or .json file, dispatching on
// the file extension. The file format only shapes parsing — validation of the
// resulting records happens in the pipeline, per record.
func LoadRecords(path string) ([]catalog.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: open %s: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return ReadCSV(f)
	case ".json":
		return ReadJSON(f)
	default:
		return nil, fmt.Errorf("ingestion: unsupported catalog format %q (want .csv or .json)", ext)
	}
}

// ReadCSV parses catalog records from CSV. The first row is the header; the
// "id" column becomes the record key, the remaining columns become fields.
// Empty cells are omitted rather than stored as empty strings.
func ReadCSV(r io.Reader) ([]catalog.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingestion: read csv header: %w", err)
	}

	keyIdx := -1
	for i, col := range header {
		if col == keyColumn {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, fmt.Errorf("ingestion: csv header has no %q column", keyColumn)
	}

	var recs []catalog.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingestion: read csv line %d: %w", line, err)
		}

		rec := catalog.Record{
			Key:    strings.TrimSpace(row[keyIdx]),
			Fields: make(map[string]any, len(header)-1),
		}
		for i, col := range header {
			if i == keyIdx || i >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			v, err := parseCell(col, cell)
			if err != nil {
				return nil, fmt.Errorf("ingestion: csv line %d, column %s: %w", line, col, err)
			}
			rec.Fields[col] = v
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// parseCell converts one CSV cell per the column's declared type.
func parseCell(col, cell string) (any, error) {
	switch {
	case boolColumns[col]:
		b, err := strconv.ParseBool(cell)
		if err != nil {
			return nil, fmt.Errorf("parse bool %q: %w", cell, err)
		}
		return b, nil
	case intColumns[col]:
		n, err := strconv.Atoi(cell)
		if err != nil {
			return nil, fmt.Errorf("parse int %q: %w", cell, err)
		}
		return n, nil
	default:
		return cell, nil
	}
}

// ReadJSON parses catalog records from a JSON array of flat objects. Each
// object's "id" member becomes the record key; the rest become fields with
// their JSON types preserved.
func ReadJSON(r io.Reader) ([]catalog.Record, error) {
	var raw []map[string]any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("ingestion: decode json catalog: %w", err)
	}

	recs := make([]catalog.Record, 0, len(raw))
	for i, obj := range raw {
		key, _ := obj[keyColumn].(string)
		rec := catalog.Record{
			Key:    strings.TrimSpace(key),
			Fields: make(map[string]any, len(obj)),
		}
		if rec.Key == "" {
			return nil, fmt.Errorf("ingestion: json record %d has no %q member", i, keyColumn)
		}
		for k, v := range obj {
			if k == keyColumn || v == nil {
				continue
			}
			rec.Fields[k] = v
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
