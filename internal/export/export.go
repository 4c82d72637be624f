package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/xuri/excelize/v2"
)

// Format selects the export rendering.
type Format string

const (
	// FormatCSV renders comma separated values.
	FormatCSV Format = "csv"
	// FormatXLSX renders an Excel workbook.
	FormatXLSX Format = "xlsx"

	sheetName  = "Meals"
	timeLayout = "15:04"
)

// ErrUnsupportedFormat indicates an unknown export format.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Header lists the exported columns.
var Header = []string{
	"Date", "Time", "Food", "Calories", "Protein (g)", "Carbs (g)", "Fat (g)", "Fiber (g)", "Serving", "Confidence",
}

// ParseFormat resolves a format name; empty means CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType returns the MIME type of the rendering.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename builds the attachment name for an export ending on the day.
func (f Format) Filename(lastDay entries.Day) string {
	return fmt.Sprintf("platepal_%s.%s", strings.ReplaceAll(lastDay.String(), "-", ""), f)
}

// Write renders the entries in the format. Entries are written newest first;
// times are shown in the location.
func Write(w io.Writer, format Format, records []entries.Entry, location *time.Location) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, records, location)
	case FormatXLSX:
		return WriteXLSX(w, records, location)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteCSV renders the entries as CSV.
func WriteCSV(w io.Writer, records []entries.Entry, location *time.Location) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, entry := range ordered(records) {
		n := entry.Nutrition
		row := []string{
			entry.Date,
			clockTime(entry.LoggedAt, location),
			csvText(n.FoodName),
			strconv.Itoa(n.Calories),
			formatGrams(n.Protein),
			formatGrams(n.Carbs),
			formatGrams(n.Fat),
			formatGrams(n.Fiber),
			csvText(n.ServingSize),
			strconv.FormatFloat(n.Confidence, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX renders the entries as a single-sheet workbook.
func WriteXLSX(w io.Writer, records []entries.Entry, location *time.Location) error {
	workbook := excelize.NewFile()
	defer workbook.Close()

	if err := workbook.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	header := make([]interface{}, len(Header))
	for i, title := range Header {
		header[i] = title
	}
	if err := workbook.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}

	for index, entry := range ordered(records) {
		n := entry.Nutrition
		cell, err := excelize.CoordinatesToCellName(1, index+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			entry.Date,
			clockTime(entry.LoggedAt, location),
			n.FoodName,
			n.Calories,
			n.Protein,
			n.Carbs,
			n.Fat,
			n.Fiber,
			n.ServingSize,
			n.Confidence,
		}
		if err := workbook.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}

	if err := workbook.SetColWidth(sheetName, "A", "B", 12); err != nil {
		return err
	}
	if err := workbook.SetColWidth(sheetName, "C", "C", 30); err != nil {
		return err
	}
	if err := workbook.SetColWidth(sheetName, "I", "I", 20); err != nil {
		return err
	}
	return workbook.Write(w)
}

func ordered(records []entries.Entry) []entries.Entry {
	sorted := append([]entries.Entry(nil), records...)
	entries.SortNewestFirst(sorted)
	return sorted
}

func clockTime(instant time.Time, location *time.Location) string {
	if location == nil {
		location = time.Local
	}
	return instant.In(location).Format(timeLayout)
}

// csvText quotes free text that a spreadsheet would otherwise evaluate as a
// formula. Workbook cells are typed strings and need no quoting.
func csvText(value string) string {
	if value != "" && strings.ContainsRune("=+-@\t\r", rune(value[0])) {
		return "'" + value
	}
	return value
}

func formatGrams(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
