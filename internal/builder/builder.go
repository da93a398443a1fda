// Package builder 把未落盘的提交打包为工作项
package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/config"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/reconcile"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/transform"
)

// Build 为一个表单类型构建工作项
//
// 序列号已在对账集合中的提交被跳过，其余按读取顺序转换成行。
// 没有新行时返回 nil——无事可做不是错误。附件路由仅在配置声明了
// 附件字段且提交确实携带该附件时附加。
//
// 引用由表单类型、日期与行内容哈希组成，同一天重复运行产生不同批次
// 也能区分（内容相同则引用相同，由队列层按引用去重）。
func Build(formType string, state reconcile.State, submissions []*model.Submission, webform config.WebformConfig, now time.Time) (*model.WorkItem, error) {
	mapping := webform.Mapping()

	itemConfig := model.ItemConfig{
		SiteName:    webform.SiteName,
		FolderName:  webform.FolderName,
		FileName:    webform.ExcelFileName,
		SheetExists: state.Exists,
	}

	var rows []model.Row

	for _, sub := range submissions {
		if state.Known(sub.Serial) {
			continue
		}

		row, err := transform.Transform(sub.Serial, sub, mapping)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)

		if webform.AttachmentFolder != "" && webform.AttachmentField != "" {
			if url := sub.AttachmentURL(webform.AttachmentField); url != "" {
				itemConfig.AttachmentFolder = webform.AttachmentFolder
				itemConfig.AttachmentURL = url
			}
		}
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return &model.WorkItem{
		Reference: buildReference(formType, rows, now),
		FormType:  formType,
		Config:    itemConfig,
		Rows:      rows,
	}, nil
}

// buildReference 生成稳定引用：<表单类型>_<日期>_<内容哈希前8位>
func buildReference(formType string, rows []model.Row, now time.Time) string {
	canonical, _ := json.Marshal(rows)
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%s_%s_%s", formType, now.Format("2006-01-02"), hex.EncodeToString(sum[:])[:8])
}
