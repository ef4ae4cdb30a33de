// Package logging provides the console log formatter and the bounded
// in-memory log ring that backs the dashboard's log API.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// ConsoleFormatter renders entries as a colored line: timestamp, level,
// message, then sorted key=value fields with pipeline identifiers first.
type ConsoleFormatter struct {
	// TimestampFormat controls how entry times are rendered
	TimestampFormat string
	// DisableColors strips colors, for non-terminal output
	DisableColors bool
}

// NewConsoleFormatter returns a formatter with RFC3339 timestamps.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	}
}

// Format implements logrus.Formatter.
func (f *ConsoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	levelColor := levelColor(entry.Level)
	timeColor := color.New(color.FgYellow)
	valueColor := color.New(color.FgWhite)
	if f.DisableColors {
		levelColor.DisableColor()
		timeColor.DisableColor()
		valueColor.DisableColor()
	}

	b.WriteString(timeColor.Sprint(entry.Time.Format(f.TimestampFormat)))
	b.WriteByte(' ')
	b.WriteString(levelColor.Sprintf("%-7s", strings.ToUpper(entry.Level.String())))
	b.WriteByte(' ')
	b.WriteString(levelColor.Sprint(entry.Message))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sortFields(keys)

	for _, k := range keys {
		v := entry.Data[k]
		var valueStr string
		switch v := v.(type) {
		case string:
			valueStr = fmt.Sprintf("%q", v)
		case error:
			valueStr = fmt.Sprintf("%q", v.Error())
		default:
			jsonBytes, err := json.Marshal(v)
			if err != nil {
				valueStr = fmt.Sprintf("%v", v)
			} else {
				valueStr = string(jsonBytes)
			}
		}

		fieldColor := color.New(color.FgCyan)
		if isImportantField(k) {
			fieldColor = color.New(color.FgGreen)
		}
		if f.DisableColors {
			fieldColor.DisableColor()
		}

		b.WriteByte(' ')
		b.WriteString(fieldColor.Sprintf("%s=", k))
		b.WriteString(valueColor.Sprint(valueStr))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.DebugLevel:
		return color.New(color.FgBlue)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel:
		return color.New(color.FgRed)
	case logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

func isImportantField(field string) bool {
	switch field {
	case "uid", "group", "run_id", "error":
		return true
	}
	return false
}

// sortFields orders pipeline identifiers before everything else, the rest
// alphabetically.
func sortFields(keys []string) {
	priority := map[string]int{
		"run_id":    1,
		"group":     2,
		"uid":       3,
		"worker_id": 4,
		"error":     5,
	}

	sort.Slice(keys, func(i, j int) bool {
		iPriority := priority[keys[i]]
		jPriority := priority[keys[j]]
		if iPriority != 0 && jPriority != 0 {
			return iPriority < jPriority
		}
		if iPriority != 0 {
			return true
		}
		if jPriority != 0 {
			return false
		}
		return keys[i] < keys[j]
	})
}
