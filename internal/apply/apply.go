// Package apply 消费工作项并完成持久写入
package apply

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/xuri/excelize/v2"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/config"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/procerr"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/reconcile"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/sharepoint"
)

// FileStore 应用阶段所需的文档库能力
type FileStore interface {
	FetchFiles(ctx context.Context, folder string) ([]sharepoint.FileInfo, error)
	ReadBinary(ctx context.Context, fileName, folder string) ([]byte, error)
	WriteBinary(ctx context.Context, content []byte, fileName, folder string) error
}

// AttachmentFetcher 经鉴权下载附件字节
type AttachmentFetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Processor 工作项应用器
//
// 步骤严格按 建表 -> 追加 -> 重排版 -> 上传附件 的顺序执行，
// 不适用的步骤跳过。队列层是至少一次投递，因此整个应用过程必须幂等：
// 表格存在性与已知序列号在贴近写入时重新推导，重复投递不会产生重复行。
//
// 同一目标表格不允许并发写（重排版是整表读改写），部署上由消费端
// 串行化保证，本层不加锁。
type Processor struct {
	stores  func(site string) FileStore
	fetcher AttachmentFetcher
	cfg     *config.AppConfig
}

// NewProcessor 创建应用器
func NewProcessor(stores func(site string) FileStore, fetcher AttachmentFetcher, cfg *config.AppConfig) *Processor {
	return &Processor{
		stores:  stores,
		fetcher: fetcher,
		cfg:     cfg,
	}
}

// Apply 应用单个工作项
//
// 返回的 ApplyError 表示该条目失败（由调用方标记到队列层），
// 不影响其他条目。
func (p *Processor) Apply(ctx context.Context, item *model.WorkItem) error {
	webform, ok := p.cfg.Webform(item.FormType)
	if !ok {
		return &procerr.ApplyError{Step: "config", Err: fmt.Errorf("unknown form type %q", item.FormType)}
	}

	store := p.stores(item.Config.SiteName)

	// 贴近写入时重新对账，过滤重复投递带来的已落盘行
	state, err := reconcile.Reconcile(ctx, store, item.Config.FolderName, item.Config.FileName)
	if err != nil {
		return &procerr.ApplyError{Step: "reconcile", Err: err}
	}

	rows := filterKnown(item.Rows, state)

	wrote := false
	switch {
	case !state.Exists:
		if err := p.createSheet(ctx, store, item, webform, rows); err != nil {
			return &procerr.ApplyError{Step: "create_sheet", Err: err}
		}
		wrote = true
	case len(rows) > 0:
		if err := p.appendRows(ctx, store, item, rows); err != nil {
			return &procerr.ApplyError{Step: "append_rows", Err: err}
		}
		wrote = true
	default:
		log.Printf("条目 %s 的全部行已在表格中，跳过写入", item.Reference)
	}

	if wrote {
		if err := Reformat(ctx, store, item.Config.FolderName, item.Config.FileName, webform); err != nil {
			return &procerr.ApplyError{Step: "reformat", Err: err}
		}
	}

	if item.Config.AttachmentURL != "" && item.Config.AttachmentFolder != "" {
		if err := p.uploadAttachment(ctx, store, item.Config.AttachmentFolder, item.Config.AttachmentURL); err != nil {
			return &procerr.ApplyError{Step: "upload_attachment", Err: err}
		}
	}

	return nil
}

// filterKnown 去掉序列号已落盘的行
func filterKnown(rows []model.Row, state reconcile.State) []model.Row {
	if !state.Exists {
		return rows
	}
	filtered := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		if state.Known(row[reconcile.SerialColumn]) {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered
}

// createSheet 新建工作簿并写入全部行
//
// 列顺序固定取自静态映射，绝不从行键推断，保证多次建表列集合稳定。
func (p *Processor) createSheet(ctx context.Context, store FileStore, item *model.WorkItem, webform config.WebformConfig, rows []model.Row) error {
	columns := webform.Mapping().Columns()
	if len(columns) == 0 {
		return fmt.Errorf("webform %q has no columns configured", webform.ID)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reconcile.SheetName); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(reconcile.SheetName, cell, col); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for r, row := range rows {
		for c, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(reconcile.SheetName, cell, row[col]); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to serialize workbook: %w", err)
	}

	if err := store.WriteBinary(ctx, buf.Bytes(), item.Config.FileName, item.Config.FolderName); err != nil {
		return err
	}

	log.Printf("已新建表格 %q，写入 %d 行", item.Config.FileName, len(rows))
	return nil
}

// appendRows 向现有工作簿追加行
//
// 按现有表头的列顺序对齐写入，行中没有的列填空串。
func (p *Processor) appendRows(ctx context.Context, store FileStore, item *model.WorkItem, rows []model.Row) error {
	content, err := store.ReadBinary(ctx, item.Config.FileName, item.Config.FolderName)
	if err != nil {
		return err
	}

	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	existing, err := f.GetRows(reconcile.SheetName)
	if err != nil {
		return fmt.Errorf("failed to read sheet %q: %w", reconcile.SheetName, err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("sheet %q has no header row", reconcile.SheetName)
	}

	header := existing[0]

	// 尾部可能有历史遗留的空行，追加位置取最后一个非空行之后
	last := 0
	for i, row := range existing {
		for _, cell := range row {
			if cell != "" {
				last = i
				break
			}
		}
	}

	for r, row := range rows {
		for c, col := range header {
			cell, _ := excelize.CoordinatesToCellName(c+1, last+2+r)
			if err := f.SetCellValue(reconcile.SheetName, cell, row[col]); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to serialize workbook: %w", err)
	}

	if err := store.WriteBinary(ctx, buf.Bytes(), item.Config.FileName, item.Config.FolderName); err != nil {
		return err
	}

	log.Printf("已向表格 %q 追加 %d 行", item.Config.FileName, len(rows))
	return nil
}
