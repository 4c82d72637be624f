package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleEntries() []entries.Entry {
	return []entries.Entry{
		{
			EntryID:  "entry-001",
			UserID:   "user-1",
			Date:     "2024-01-04",
			LoggedAt: time.Date(2024, time.January, 4, 19, 30, 0, 0, time.UTC),
			Nutrition: entries.Nutrition{
				FoodName: "Lasagna", Calories: 620, Protein: 32, Carbs: 54.5, Fat: 28, Fiber: 4,
				ServingSize: "1 slice", Confidence: 85,
			},
		},
		{
			EntryID:  "entry-002",
			UserID:   "user-1",
			Date:     "2024-01-05",
			LoggedAt: time.Date(2024, time.January, 5, 8, 5, 0, 0, time.UTC),
			Nutrition: entries.Nutrition{
				FoodName: "Oatmeal, with berries", Calories: 310, Protein: 9.5, Carbs: 52, Fat: 6, Fiber: 7,
				ServingSize: "1 bowl", Confidence: 72.5,
			},
		},
	}
}

func TestWriteCSVNewestFirst(t *testing.T) {
	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, FormatCSV, sampleEntries(), time.UTC))

	rows, err := csv.NewReader(&buffer).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"2024-01-05", "08:05", "Oatmeal, with berries", "310", "9.5", "52", "6", "7", "1 bowl", "72.5"}, rows[1])
	assert.Equal(t, []string{"2024-01-04", "19:30", "Lasagna", "620", "32", "54.5", "28", "4", "1 slice", "85"}, rows[2])
}

func TestWriteCSVUsesLocationForTime(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	var buffer bytes.Buffer
	require.NoError(t, WriteCSV(&buffer, sampleEntries()[:1], tokyo))

	rows, err := csv.NewReader(&buffer).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "04:30", rows[1][1])
}

func TestWriteCSVNeutralizesFormulaText(t *testing.T) {
	record := sampleEntries()[0]
	record.Nutrition.FoodName = "=HYPERLINK(\"http://example.com\",\"click\")"
	record.Nutrition.ServingSize = "-1 cup"
	var buffer bytes.Buffer
	require.NoError(t, WriteCSV(&buffer, []entries.Entry{record}, time.UTC))

	rows, err := csv.NewReader(&buffer).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "'=HYPERLINK(\"http://example.com\",\"click\")", rows[1][2])
	assert.Equal(t, "'-1 cup", rows[1][8])

	for input, expected := range map[string]string{
		"+SUM(A1)": "'+SUM(A1)",
		"@cmd":     "'@cmd",
		"\tpadded": "'\tpadded",
		"Lasagna":  "Lasagna",
		"":         "",
	} {
		assert.Equal(t, expected, csvText(input), input)
	}
}

func TestWriteXLSXRoundTrips(t *testing.T) {
	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, FormatXLSX, sampleEntries(), time.UTC))

	workbook, err := excelize.OpenReader(&buffer)
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "Oatmeal, with berries", rows[1][2])
	assert.Equal(t, "310", rows[1][3])
	assert.Equal(t, "Lasagna", rows[2][2])
}

func TestWriteEmptyExportHasHeaderOnly(t *testing.T) {
	var buffer bytes.Buffer
	require.NoError(t, WriteCSV(&buffer, nil, time.UTC))

	rows, err := csv.NewReader(&buffer).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{Header}, rows)
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)

	format, err = ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, format)
	assert.Equal(t, "platepal_20240105.xlsx", format.Filename(entries.Day("2024-01-05")))

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
