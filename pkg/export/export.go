// Package export serializes the collected record batch to disk once a run
// ends, as a JSON array or a header+rows CSV table.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sietchlabs/scraper-go/pkg/types"
	"github.com/sirupsen/logrus"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Write serializes records to path in the given format. Partial results
// are exported the same way as complete ones.
func Write(logger *logrus.Logger, records []*types.Record, format, path string) error {
	var err error
	switch format {
	case FormatJSON:
		err = WriteJSON(records, path)
	case FormatCSV:
		err = WriteCSV(records, path)
	default:
		return fmt.Errorf("export: unsupported format %q", format)
	}
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"count":  len(records),
		"path":   path,
		"format": format,
	}).Info("Exported scraped records")
	return nil
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(records []*types.Record, path string) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshaling records: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export: writing %s: %w", path, err)
	}
	return nil
}

// csvHeader is the fixed column order of CSV exports.
var csvHeader = []string{
	"uid", "username", "status", "activity_level", "join_date",
	"last_seen", "message_count", "is_admin", "group", "seq",
}

// WriteCSV writes records as a header row followed by one row per record.
func WriteCSV(records []*types.Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("export: writing header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.UID, 10),
			r.Username,
			string(r.Status),
			strconv.Itoa(r.ActivityLevel),
			r.JoinDate.Format(time.RFC3339),
			r.LastSeen.Format(time.RFC3339),
			strconv.Itoa(r.MessageCount),
			strconv.FormatBool(r.IsAdmin),
			r.Group,
			strconv.Itoa(r.Seq),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("export: writing row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flushing %s: %w", path, err)
	}
	return nil
}
