package model

// ColumnRule 单条列映射规则
//
// Name 为输出列名，Path 为在提交 payload 中的取值路径（点号分隔）。
// 特殊路径 "@serial" 取提交的序列号。
type ColumnRule struct {
	Name string `toml:"name" json:"name"`
	Path string `toml:"path" json:"path"`
}

// FormMapping 表单类型到输出列的有序映射
//
// 顺序即建表时的列顺序，外部提供且不可变。
type FormMapping []ColumnRule

// Columns 按映射顺序返回全部输出列名
func (m FormMapping) Columns() []string {
	cols := make([]string, len(m))
	for i, rule := range m {
		cols[i] = rule.Name
	}
	return cols
}
