package model

import "time"

// Submission 一条外部提交的表单记录
//
// 以 serial（每个表单类型内唯一的序列号）标识，读取后不可变。
// Payload 为数据源中 form_data 字段反序列化后的原始结构。
type Submission struct {
	Serial      string
	UUID        string
	SubmittedAt time.Time
	Payload     map[string]any
}

// AttachmentURL 提取指定附件字段的下载地址
//
// 附件位于 payload 的 data.attachments.<field>.url；任何一级缺失时返回空串。
func (s *Submission) AttachmentURL(field string) string {
	if field == "" || s.Payload == nil {
		return ""
	}
	data, ok := s.Payload["data"].(map[string]any)
	if !ok {
		return ""
	}
	attachments, ok := data["attachments"].(map[string]any)
	if !ok {
		return ""
	}
	entry, ok := attachments[field].(map[string]any)
	if !ok {
		return ""
	}
	url, _ := entry["url"].(string)
	return url
}
