package model

// Row 一条转换后的行：输出列名 -> 单元格值
//
// 列集合与映射完全一致，缺数据的列为显式空串。
type Row map[string]string

// ItemConfig 工作项的路由配置
type ItemConfig struct {
	SiteName         string `json:"site_name"`
	FolderName       string `json:"folder_name"`
	FileName         string `json:"file_name"`
	AttachmentFolder string `json:"attachment_folder,omitempty"`
	AttachmentURL    string `json:"attachment_url,omitempty"`
	SheetExists      bool   `json:"sheet_exists"`
}

// WorkItem 一个待应用的工作单元
//
// Reference 为稳定引用（表单类型 + 日期 + 内容哈希），队列层以其去重跟踪。
// Rows 保持构建时的顺序。
type WorkItem struct {
	Reference string     `json:"reference"`
	FormType  string     `json:"form_type"`
	Config    ItemConfig `json:"config"`
	Rows      []Row      `json:"rows"`
}
