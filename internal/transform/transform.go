// Package transform 将原始提交映射为统一行形状
package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/procerr"
)

// Transform 按映射把一条提交转换为固定列形状的行
//
// 纯函数：对映射中的每条规则（有序）在提交 payload 中取值；路径缺失
// 产出显式空串，绝不缺列，保证所有行与映射列集合一致。仅当规则本身
// 非法时返回 MappingError——缺数据不是错误。
func Transform(serial string, sub *model.Submission, mapping model.FormMapping) (model.Row, error) {
	row := make(model.Row, len(mapping))

	for _, rule := range mapping {
		if err := validateRule(rule); err != nil {
			return nil, err
		}

		if rule.Path == "@serial" {
			row[rule.Name] = serial
			continue
		}

		row[rule.Name] = formatValue(resolvePath(sub.Payload, rule.Path))
	}

	return row, nil
}

// validateRule 校验单条映射规则（静态配置缺陷在此暴露）
func validateRule(rule model.ColumnRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return &procerr.MappingError{Column: rule.Name, Reason: "empty column name"}
	}
	if rule.Path == "" {
		return &procerr.MappingError{Column: rule.Name, Reason: "empty path"}
	}
	if strings.HasPrefix(rule.Path, "@") {
		if rule.Path != "@serial" {
			return &procerr.MappingError{Column: rule.Name, Reason: fmt.Sprintf("unknown directive %q", rule.Path)}
		}
		return nil
	}
	for _, seg := range strings.Split(rule.Path, ".") {
		if seg == "" {
			return &procerr.MappingError{Column: rule.Name, Reason: fmt.Sprintf("malformed path %q", rule.Path)}
		}
	}
	return nil
}

// resolvePath 沿点号路径取值
//
// 途中遇到数组时取首元素（OS2 的 entity 字段形如 [{"value": ...}]）。
// 任何一级缺失返回 nil。
func resolvePath(payload map[string]any, path string) any {
	var node any = payload

	for _, seg := range strings.Split(path, ".") {
		if list, ok := node.([]any); ok {
			if len(list) == 0 {
				return nil
			}
			node = list[0]
		}

		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[seg]
		if !ok {
			return nil
		}
	}

	return node
}

// formatValue 把叶子值归一为单元格字符串
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := formatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		// OS2 的包装结构取其 value 字段
		if inner, ok := val["value"]; ok {
			return formatValue(inner)
		}
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
