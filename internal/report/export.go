package report

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/xuri/excelize/v2"
)

const detailsSheet = "Детализация"

// ErrNothingToExport is returned when a period has no cars or no photos
var ErrNothingToExport = errors.New("nothing to export")

var detailsHeader = []string{"№", "Номер", "Описание", "Площадь (м²)", "Материалы (руб)", "Работы (руб)", "Дата", "Исполнитель"}

// ExportXLSX renders the period's car details as a spreadsheet
func (s *Service) ExportXLSX(period Period) ([]byte, string, error) {
	summary, err := s.Summary(period)
	if err != nil {
		return nil, "", err
	}
	if len(summary.Details) == 0 {
		return nil, "", ErrNothingToExport
	}

	data, err := buildWorkbook(summary.Details)
	if err != nil {
		return nil, "", fmt.Errorf("building workbook: %w", err)
	}
	return data, fmt.Sprintf("report_%s_to_%s.xlsx", period.From, period.To), nil
}

func buildWorkbook(details []CarDetail) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", detailsSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFD700"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Border: border})
	if err != nil {
		return nil, fmt.Errorf("creating cell style: %w", err)
	}

	header := make([]any, len(detailsHeader))
	for i, h := range detailsHeader {
		header[i] = h
	}
	if err := writeRow(f, detailsSheet, 1, header, headerStyle); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, d := range details {
		values := []any{i + 1, d.Plate, d.Description, d.Area, d.Cost, d.LaborCost, d.Date, d.Executor}
		if err := writeRow(f, detailsSheet, i+2, values, cellStyle); err != nil {
			return nil, fmt.Errorf("writing row for %s: %w", d.Plate, err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(detailsHeader))
	if err != nil {
		return nil, fmt.Errorf("resolving last column: %w", err)
	}
	if err := f.SetColWidth(detailsSheet, "A", lastCol, 15); err != nil {
		return nil, fmt.Errorf("setting column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// writeRow fills one sheet row starting at column A and applies style to it
func writeRow(f *excelize.File, sheet string, row int, values []any, style int) error {
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, first, &values); err != nil {
		return fmt.Errorf("setting values: %w", err)
	}
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return fmt.Errorf("styling %s:%s: %w", first, last, err)
	}
	return nil
}

// PhotoArchive zips the period's photos as photo_001.jpg, photo_002.png and
// so on. A file that cannot be read becomes a text note in its place.
func (s *Service) PhotoArchive(period Period) ([]byte, string, error) {
	photos, err := s.ListPhotos(period)
	if err != nil {
		return nil, "", err
	}
	if len(photos) == 0 {
		return nil, "", ErrNothingToExport
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, p := range photos {
		n := i + 1
		data, err := s.storage.Get(p.Filename)
		if err != nil {
			slog.Warn("Photo missing from archive", "photo_id", p.ID, "filename", p.Filename, "error", err)
			if err := writeZipEntry(zw, fmt.Sprintf("photo_%03d_%s.txt", n, p.ID),
				[]byte(fmt.Sprintf("Фото с ID: %s\nНе удалось загрузить файл: %v", p.ID, err))); err != nil {
				return nil, "", err
			}
			continue
		}
		ext := path.Ext(p.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		if err := writeZipEntry(zw, fmt.Sprintf("photo_%03d%s", n, ext), data); err != nil {
			return nil, "", err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing archive: %w", err)
	}

	return buf.Bytes(), fmt.Sprintf("photos_%s.zip", period.archiveLabel()), nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("adding %s to archive: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing %s to archive: %w", name, err)
	}
	return nil
}
