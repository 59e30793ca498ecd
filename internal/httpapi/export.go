package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"

	"counterbook/backend/internal/domain"
)

var salesExportHeader = []string{"S.No.", "Product Name", "Quantity", "Total Price", "Customer Name", "Payment Mode", "Timestamp"}

// handleSalesExport streams the full legacy sales ledger as an xlsx workbook.
func (a *API) handleSalesExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	sales, err := a.service.AllSales(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	file := buildSalesWorkbook(sales)
	filename := fmt.Sprintf("sales_export_%s.xlsx", time.Now().UTC().Format("20060102_150405"))

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := file.Write(w); err != nil {
		// Headers are already gone; nothing left to send the client.
		return
	}
}

func buildSalesWorkbook(sales []domain.Sale) *excelize.File {
	file := excelize.NewFile()
	sheet := "Sales"
	file.SetSheetName("Sheet1", sheet)

	columns := []string{"A", "B", "C", "D", "E", "F", "G"}
	for i, title := range salesExportHeader {
		file.SetCellValue(sheet, fmt.Sprintf("%s1", columns[i]), title)
	}

	for i, sale := range sales {
		row := i + 2
		file.SetCellValue(sheet, fmt.Sprintf("A%d", row), i+1)
		file.SetCellValue(sheet, fmt.Sprintf("B%d", row), sale.ProductName)
		file.SetCellValue(sheet, fmt.Sprintf("C%d", row), sale.Quantity)
		file.SetCellValue(sheet, fmt.Sprintf("D%d", row), float64(sale.TotalCents)/100)
		file.SetCellValue(sheet, fmt.Sprintf("E%d", row), sale.CustomerName)
		file.SetCellValue(sheet, fmt.Sprintf("F%d", row), sale.PaymentMode)
		file.SetCellValue(sheet, fmt.Sprintf("G%d", row), sale.CreatedOn.Format("2006-01-02 15:04:05"))
	}

	return file
}
