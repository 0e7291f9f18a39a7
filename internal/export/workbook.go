// Package export writes stored invoice results to spreadsheets.
package export

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-tracker/internal/invoice"
)

// SheetName is the worksheet holding one row per invoice result
const SheetName = "Invoices"

var headers = []string{
	"Document ID",
	"File",
	"Supplier",
	"Invoice Number",
	"Invoice Date",
	"Total",
	"Confidence",
	"Validation Passed",
	"Method",
	"Processed At",
}

// WriteWorkbook writes an XLSX workbook with one row per result of every document
func WriteWorkbook(w io.Writer, docs []*invoice.Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	row := 2
	for _, doc := range docs {
		for _, r := range doc.Results {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(SheetName, cell, v)
			}
			write(1, doc.ID)
			write(2, doc.Filename)
			write(3, r.SupplierName)
			write(4, r.InvoiceNumber)
			write(5, r.InvoiceDate)
			write(6, r.TotalAmount.StringFixed(2))
			write(7, fmt.Sprintf("%.2f", r.Confidence))
			write(8, fmt.Sprintf("%t", r.ValidationPassed))
			write(9, r.ExtractionMethod)
			write(10, doc.CreatedAt.Format("2006-01-02 15:04:05"))
			row++
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38) // id
	_ = f.SetColWidth(SheetName, "B", "C", 32) // file, supplier
	_ = f.SetColWidth(SheetName, "D", "I", 16)
	_ = f.SetColWidth(SheetName, "J", "J", 20) // processed at

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	slog.Info("Exported invoices", "documents", len(docs), "rows", row-2)
	return nil
}
