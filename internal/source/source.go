// Package source 从关系库读取原始表单提交
package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/procerr"
)

// Source 提交数据源
//
// 只读；查询失败不在本层重试，包装为 DataSourceError 向上传递。
type Source struct {
	db    *sql.DB
	table string
}

// New 创建数据源
func New(db *sql.DB, table string) *Source {
	return &Source{
		db:    db,
		table: table,
	}
}

// Fetch 获取指定表单类型的全部有效提交
//
// 仅保留 payload 与提交时间均非空的记录，按提交时间倒序（最新在前）。
// payload 无法解析、缺少序列号或带 purged 标记的记录被剔除。
// 无匹配记录返回空切片而非错误。
func (s *Source) Fetch(ctx context.Context, formType string) ([]*model.Submission, error) {
	query := fmt.Sprintf(`
		SELECT form_id, form_data, form_submitted_date
		FROM %s
		WHERE form_type = @form_type
		  AND form_data IS NOT NULL
		  AND form_submitted_date IS NOT NULL
		ORDER BY form_submitted_date DESC
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query, sql.Named("form_type", formType))
	if err != nil {
		return nil, &procerr.DataSourceError{Err: fmt.Errorf("failed to query submissions: %w", err)}
	}
	defer rows.Close()

	var submissions []*model.Submission

	for rows.Next() {
		var (
			formID      int64
			formData    string
			submittedAt time.Time
		)
		if err := rows.Scan(&formID, &formData, &submittedAt); err != nil {
			return nil, &procerr.DataSourceError{Err: fmt.Errorf("failed to scan row: %w", err)}
		}

		sub, ok := parseSubmission(formData, submittedAt)
		if !ok {
			continue
		}
		submissions = append(submissions, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, &procerr.DataSourceError{Err: fmt.Errorf("failed to iterate rows: %w", err)}
	}

	return submissions, nil
}

// parseSubmission 解析单条 form_data
//
// 非法 JSON、缺序列号视为结构性无效，带 purged 标记视为已清除，均跳过。
func parseSubmission(formData string, submittedAt time.Time) (*model.Submission, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(formData), &payload); err != nil {
		log.Printf("form_data 不是合法 JSON，跳过该行: %v", err)
		return nil, false
	}

	if _, purged := payload["purged"]; purged {
		return nil, false
	}

	serial := entityValue(payload, "serial")
	if serial == "" {
		log.Printf("form_data 缺少序列号，跳过该行")
		return nil, false
	}

	return &model.Submission{
		Serial:      serial,
		UUID:        entityValue(payload, "uuid"),
		SubmittedAt: submittedAt,
		Payload:     payload,
	}, true
}

// entityValue 取 entity.<field>[0].value 的字符串形式
func entityValue(payload map[string]any, field string) string {
	entity, ok := payload["entity"].(map[string]any)
	if !ok {
		return ""
	}
	list, ok := entity[field].([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	wrapper, ok := list[0].(map[string]any)
	if !ok {
		return ""
	}
	switch v := wrapper["value"].(type) {
	case string:
		return v
	case float64:
		// 序列号在库中可能是数字
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
