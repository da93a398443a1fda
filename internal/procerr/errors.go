// Package procerr 定义流程的错误分类
//
// 分类决定处理策略：数据源错误向上传递不重试；映射错误属静态配置缺陷，
// 终止整次运行；入队错误按条目退避重试；应用错误仅标记单个条目失败；
// 业务错误转人工处理；流程错误中止运行并触发通知。
package procerr

import "fmt"

// DataSourceError 数据源查询/连接失败
type DataSourceError struct {
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source error: %v", e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// MappingError 映射规则本身非法（配置缺陷，非数据缺陷）
type MappingError struct {
	Column string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping error for column %q: %s", e.Column, e.Reason)
}

// EnqueueError 入队失败（重试耗尽后记录）
type EnqueueError struct {
	Reference string
	Attempts  int
	Err       error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("enqueue failed for %q after %d attempts: %v", e.Reference, e.Attempts, e.Err)
}

func (e *EnqueueError) Unwrap() error { return e.Err }

// ApplyError 单个工作项应用失败
type ApplyError struct {
	Step string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply step %s failed: %v", e.Step, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// BusinessError 违反业务规则，转交业务部门人工处理
type BusinessError struct {
	Reason string
}

func (e *BusinessError) Error() string { return e.Reason }

// ProcessError 流程级错误，中止运行并通知运维
type ProcessError struct {
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process error: %v", e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }
