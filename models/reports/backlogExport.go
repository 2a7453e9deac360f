package reports

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"github.com/xuri/excelize/v2"
)

type BacklogRow struct {
	OrderId          int    `json:"order_id"`
	Number           int    `json:"number"`
	ProductId        int    `json:"product_id"`
	ProductName      string `json:"product_name"`
	VariantLabel     string `json:"variant_label"`
	TargetQuantity   int    `json:"target_quantity"`
	CutQuantity      int    `json:"cut_quantity"`
	LastStageTotal   int    `json:"last_stage_total"`
	QuantityFinished int    `json:"quantity_finished"`
	QuantityPackaged int    `json:"quantity_packaged"`
	FinishingBacklog int    `json:"finishing_backlog"`
	PackagingBacklog int    `json:"packaging_backlog"`
}

// GetProductionBacklogReport lists per-order finishing and packaging backlog
// for producing orders, oldest first. queueStage narrows the result to orders
// with a non-zero backlog at that queue.
func GetProductionBacklogReport(ctx context.Context, queueStage *models.QueueStage) ([]*BacklogRow, error) {

	sqlT := `
SELECT
    po.id AS order_id,
    po.number,
    po.product_id,
    products.name AS product_name,
    po.variant_label,
    po.target_quantity,
    po.cut_quantity,
    COALESCE(last_entries.qty, 0) AS last_stage_total,
    COALESCE(fr.quantity_finished, 0) AS quantity_finished,
    COALESCE(fr.quantity_packaged, 0) AS quantity_packaged,
    COALESCE(last_entries.qty, 0) - COALESCE(fr.quantity_finished, 0) AS finishing_backlog,
    COALESCE(fr.quantity_finished, 0) - COALESCE(fr.quantity_packaged, 0) AS packaging_backlog
FROM
    production_orders po
        LEFT JOIN
    (SELECT
        se.order_id, SUM(se.quantity) AS qty
    FROM
        stage_entries se
            JOIN
        (SELECT
            order_id, MAX(stage_index) AS idx
        FROM
            production_order_stages
        GROUP BY order_id) ls ON ls.order_id = se.order_id
            AND ls.idx = se.stage_index
    GROUP BY se.order_id) last_entries ON last_entries.order_id = po.id
        LEFT JOIN
    finishing_records fr ON fr.order_id = po.id
        LEFT JOIN
    products ON products.id = po.product_id
WHERE
    po.business_id = @businessId
        AND po.status IN ('Producing', 'Finalized')
{{- if eq .queueStage "Finishing" }}
        AND COALESCE(last_entries.qty, 0) - COALESCE(fr.quantity_finished, 0) > 0
{{- end }}
{{- if eq .queueStage "Packaging" }}
        AND COALESCE(fr.quantity_finished, 0) - COALESCE(fr.quantity_packaged, 0) > 0
{{- end }}
ORDER BY po.entry_date , po.id;
`

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"queueStage": string(utils.DereferencePtr(queueStage)),
	})
	if err != nil {
		return nil, err
	}

	var records []*BacklogRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"businessId": businessId,
	}).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

// ExportBacklogExcel writes the backlog report as an xlsx workbook.
func ExportBacklogExcel(ctx context.Context, queueStage *models.QueueStage, w io.Writer) error {

	data, err := GetProductionBacklogReport(ctx, queueStage)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	headings := []string{
		"OrderNumber", "Product", "Variant", "TargetQty", "CutQty",
		"SewnQty", "FinishedQty", "PackagedQty", "FinishingBacklog", "PackagingBacklog",
	}
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, d.Number)
		f.SetCellValue(sheetName, "B"+row, d.ProductName)
		f.SetCellValue(sheetName, "C"+row, d.VariantLabel)
		f.SetCellValue(sheetName, "D"+row, d.TargetQuantity)
		f.SetCellValue(sheetName, "E"+row, d.CutQuantity)
		f.SetCellValue(sheetName, "F"+row, d.LastStageTotal)
		f.SetCellValue(sheetName, "G"+row, d.QuantityFinished)
		f.SetCellValue(sheetName, "H"+row, d.QuantityPackaged)
		f.SetCellValue(sheetName, "I"+row, d.FinishingBacklog)
		f.SetCellValue(sheetName, "J"+row, d.PackagingBacklog)
	}

	return f.Write(w)
}
