package environment

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"venue-telemetry/internal/models"
)

const exportSheet = "Environment"

var exportHeader = []string{
	"Recorded At", "Zone", "Sensor", "Sensor Type",
	"Temperature", "Humidity", "CO2", "VOC",
	"Noise", "Air Pressure", "Light",
}

// ExportEnvironmentalData 导出最近 hours 小时的环境数据为 xlsx
func (h *History) ExportEnvironmentalData(ctx context.Context, venueID string, hours int) ([]byte, error) {
	data, err := h.GetEnvironmentalData(ctx, venueID, hours)
	if err != nil {
		return nil, err
	}
	return BuildWorkbook(data)
}

// BuildWorkbook 生成环境数据工作簿
func BuildWorkbook(data []*models.EnvironmentalObservation) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}
	if err := f.SetColWidth(exportSheet, "A", "D", 22); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, obs := range data {
		row := i + 2
		values := []interface{}{
			obs.RecordedAt.UTC().Format(time.RFC3339),
			deref(obs.ZoneName),
			obs.SensorID,
			deref(obs.SensorType),
			obs.Temperature, obs.Humidity, obs.CO2Level, obs.VOCLevel,
			obs.NoiseLevel, obs.AirPressure, obs.LightLevel,
		}
		for col, v := range values {
			if fp, ok := v.(*float64); ok {
				if fp == nil {
					continue
				}
				v = *fp
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
