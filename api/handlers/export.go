package handlers

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/efir-portal/efir-api/api/mailer"
	"github.com/efir-portal/efir-api/models"
)

const exportSheet = "FIRs"

// firExportHeader is the header row of the FIR workbook
var firExportHeader = []string{
	"Reference",
	"Filed At",
	"Status",
	"Incident Type",
	"Date Of Incident",
	"Time Of Incident",
	"City",
	"State",
	"Pincode",
	"Address",
	"Anonymous",
	"Complainant",
	"Complainant Email",
	"Complainant Phone",
	"Accused",
	"Evidence Files",
	"Log Entries",
	"Description",
}

var firExportWidths = []float64{12, 18, 12, 16, 16, 14, 16, 16, 10, 30, 10, 20, 26, 16, 20, 14, 12, 60}

// firWorkbook renders views as a single sheet xlsx file
func firWorkbook(views []models.FirView) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1E3A8A"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(firExportHeader))
	for i, h := range firExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(firExportHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	for i, width := range firExportWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(exportSheet, col, col, width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, v := range views {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := exportRow(v)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func exportRow(v models.FirView) []interface{} {
	var name, email, phone string
	if v.Complainant != nil {
		name, email, phone = v.Complainant.Name, v.Complainant.Email, v.Complainant.Phone
	}
	anonymous := "No"
	if v.IsAnonymous {
		anonymous = "Yes"
	}
	return []interface{}{
		mailer.Reference(v.Fir),
		v.CreatedAt.Format("2006-01-02 15:04"),
		string(v.Status),
		string(v.IncidentType),
		v.DateOfIncident.Format("2006-01-02"),
		v.TimeOfIncident,
		v.City,
		v.State,
		v.Pincode,
		v.Address,
		anonymous,
		name,
		email,
		phone,
		v.AccusedName,
		len(v.Evidence),
		len(v.InvestigationLogs),
		v.Description,
	}
}
