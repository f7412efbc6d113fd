package httpapi

import (
	"bytes"
	"fmt"

	"wisefido-envlog/internal/models"

	"github.com/xuri/excelize/v2"
)

const readingsSheet = "Env Logs"

// ReadingsExportHeader export column order
var ReadingsExportHeader = []string{
	"ID",
	"Device ID",
	"Temperature SHT (°C)",
	"Temperature QMP (°C)",
	"Humidity (%)",
	"Pressure (hPa)",
	"Created At",
}

// GenerateReadingsExport renders readings (already newest first) to xlsx.
// Rows go through a StreamWriter so a full buffer stays cheap to export.
func GenerateReadingsExport(readings []models.Reading) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", readingsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	sw, err := f.NewStreamWriter(readingsSheet)
	if err != nil {
		return nil, fmt.Errorf("stream writer: %w", err)
	}
	if err := sw.SetColWidth(1, len(ReadingsExportHeader), 20); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}
	if err := sw.SetPanes(&excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	header := make([]any, len(ReadingsExportHeader))
	for i, h := range ReadingsExportHeader {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, fmt.Errorf("header row: %w", err)
	}

	for i, rd := range readings {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			rd.ID,
			rd.DeviceID,
			rd.TemperatureSht,
			rd.TemperatureQmp,
			rd.Humidity,
			rd.Pressure,
			rd.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := sw.SetRow(cell, row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush rows: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
