package apply

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/config"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/reconcile"
)

// maxColumnWidth 列宽上限（字符数）
const maxColumnWidth = 100

// Reformat 对目标表格做整表重排版
//
// 按配置的排序键重排数据行、加粗表头、左上对齐、按内容设定列宽并
// 冻结表头行。这是一次整表读改写，没有“已排版”标记做门卫，因此
// 必须可以安全重复执行。
func Reformat(ctx context.Context, store FileStore, folder, fileName string, webform config.WebformConfig) error {
	content, err := store.ReadBinary(ctx, fileName, folder)
	if err != nil {
		return err
	}

	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(reconcile.SheetName)
	if err != nil {
		return fmt.Errorf("failed to read sheet %q: %w", reconcile.SheetName, err)
	}
	if len(rows) == 0 {
		return nil
	}

	header := rows[0]
	data := dropEmptyRows(rows[1:])

	sortRows(data, header, webform)

	// 整表重写：先写排序后的数据，再清掉尾部多余的旧行
	for r, row := range data {
		for c := range header {
			value := ""
			if c < len(row) {
				value = row[c]
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(reconcile.SheetName, cell, value); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}
	for r := len(data) + 2; r <= len(rows); r++ {
		for c := range header {
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			if err := f.SetCellValue(reconcile.SheetName, cell, ""); err != nil {
				return fmt.Errorf("failed to clear cell %s: %w", cell, err)
			}
		}
	}

	if err := applyStyles(f, header, len(data)); err != nil {
		return err
	}

	if err := applyColumnWidths(f, header, data); err != nil {
		return err
	}

	if err := f.SetPanes(reconcile.SheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header row: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to serialize workbook: %w", err)
	}

	return store.WriteBinary(ctx, buf.Bytes(), fileName, folder)
}

// dropEmptyRows 去掉完全为空的行
func dropEmptyRows(rows [][]string) [][]string {
	filtered := make([][]string, 0, len(rows))
	for _, row := range rows {
		empty := true
		for _, cell := range row {
			if cell != "" {
				empty = false
				break
			}
		}
		if !empty {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// sortRows 按配置的键/类型/方向稳定排序数据行
func sortRows(data [][]string, header []string, webform config.WebformConfig) {
	idx := resolveSortColumn(webform.SortKey, header)
	if idx < 0 {
		return
	}

	less := lessFunc(webform.SortType)

	sort.SliceStable(data, func(i, j int) bool {
		a, b := cellAt(data[i], idx), cellAt(data[j], idx)
		if webform.SortAscending {
			return less(a, b)
		}
		return less(b, a)
	})
}

// resolveSortColumn 排序键解析：单个列字母（"A"）或表头列名
func resolveSortColumn(key string, header []string) int {
	key = strings.TrimSpace(key)
	if key == "" {
		return -1
	}

	if len(key) == 1 && key[0] >= 'A' && key[0] <= 'Z' {
		idx := int(key[0] - 'A')
		if idx < len(header) {
			return idx
		}
		return -1
	}

	for i, name := range header {
		if strings.TrimSpace(name) == key {
			return i
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

// lessFunc 按声明的类型比较两个单元格值；无法解析的值排在最后
func lessFunc(sortType string) func(a, b string) bool {
	switch sortType {
	case "int", "float":
		return func(a, b string) bool {
			fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
			fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
			if errA != nil {
				return false
			}
			if errB != nil {
				return true
			}
			return fa < fb
		}
	case "datetime":
		return func(a, b string) bool {
			ta, okA := parseDate(a)
			tb, okB := parseDate(b)
			if !okA {
				return false
			}
			if !okB {
				return true
			}
			return ta.Before(tb)
		}
	default:
		return func(a, b string) bool { return a < b }
	}
}

// parseDate 解析日期单元格（丹麦习惯日在前）
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		"02-01-2006 15:04:05",
		"02-01-2006",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// applyStyles 表头加粗，全表左上对齐
func applyStyles(f *excelize.File, header []string, dataRows int) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(reconcile.SheetName, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	if dataRows == 0 {
		return nil
	}

	bodyStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("failed to create body style: %w", err)
	}
	if err := f.SetRowStyle(reconcile.SheetName, 2, dataRows+1, bodyStyle); err != nil {
		return fmt.Errorf("failed to style data rows: %w", err)
	}
	return nil
}

// applyColumnWidths 按最长内容设定列宽，超限封顶
func applyColumnWidths(f *excelize.File, header []string, data [][]string) error {
	for c := range header {
		maxLen := len(header[c])
		for _, row := range data {
			if c < len(row) && len(row[c]) > maxLen {
				maxLen = len(row[c])
			}
		}

		width := float64(maxLen + 2)
		if width > maxColumnWidth {
			width = maxColumnWidth
		}

		col, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(reconcile.SheetName, col, col, width); err != nil {
			return fmt.Errorf("failed to set width for column %s: %w", col, err)
		}
	}
	return nil
}
