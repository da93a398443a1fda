// Package pipeline 编排填充与处理两个阶段
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/builder"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/config"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/procerr"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/queue"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/reconcile"
)

// SubmissionSource 按表单类型读取提交
type SubmissionSource interface {
	Fetch(ctx context.Context, formType string) ([]*model.Submission, error)
}

// ReferenceLister 列出队列中现存引用
type ReferenceLister interface {
	References(ctx context.Context) (map[string]struct{}, error)
}

// BatchEnqueuer 批量入队工作项
type BatchEnqueuer interface {
	EnqueueAll(ctx context.Context, items []*model.WorkItem) queue.Summary
}

// Populator 填充阶段：读源、对账、构建批次并入队
type Populator struct {
	source   SubmissionSource
	refs     ReferenceLister
	enqueuer BatchEnqueuer
	stores   func(site string) reconcile.FileStore
	cfg      *config.AppConfig

	// now 可注入，测试时固定时钟
	now func() time.Time
}

// NewPopulator 创建填充器
func NewPopulator(source SubmissionSource, refs ReferenceLister, enqueuer BatchEnqueuer, stores func(site string) reconcile.FileStore, cfg *config.AppConfig) *Populator {
	return &Populator{
		source:   source,
		refs:     refs,
		enqueuer: enqueuer,
		stores:   stores,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run 执行一轮填充
//
// 按配置声明顺序逐个表单类型处理；队列里已有某表单类型的未完成批次时
// 整个跳过该类型，等下一轮再看，避免同一目标表格出现重叠批次。
// 单个表单类型的数据源或对账失败包装为 ProcessError 中止整轮，
// 因为继续跑剩余类型只会在下一轮重复同样的失败。
func (p *Populator) Run(ctx context.Context) (queue.Summary, error) {
	existing, err := p.refs.References(ctx)
	if err != nil {
		return queue.Summary{}, &procerr.ProcessError{Err: fmt.Errorf("failed to list queue references: %w", err)}
	}

	var items []*model.WorkItem

	for _, webform := range p.cfg.Webforms {
		if hasPending(existing, webform.ID) {
			log.Printf("表单类型 %s 在队列中已有未完成批次，本轮跳过", webform.ID)
			continue
		}

		item, err := p.buildItem(ctx, webform)
		if err != nil {
			return queue.Summary{}, &procerr.ProcessError{Err: err}
		}
		if item == nil {
			log.Printf("表单类型 %s 没有新提交", webform.ID)
			continue
		}

		if _, dup := existing[item.Reference]; dup {
			log.Printf("批次 %s 已在队列中，跳过", item.Reference)
			continue
		}

		log.Printf("表单类型 %s 构建批次 %s，共 %d 行", webform.ID, item.Reference, len(item.Rows))
		items = append(items, item)
	}

	return p.enqueuer.EnqueueAll(ctx, items), nil
}

// buildItem 为单个表单类型走 读源 -> 对账 -> 构建
func (p *Populator) buildItem(ctx context.Context, webform config.WebformConfig) (*model.WorkItem, error) {
	submissions, err := p.source.Fetch(ctx, webform.ID)
	if err != nil {
		return nil, err
	}
	if len(submissions) == 0 {
		return nil, nil
	}

	store := p.stores(webform.SiteName)
	state, err := reconcile.Reconcile(ctx, store, webform.FolderName, webform.ExcelFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile %s: %w", webform.ID, err)
	}

	return builder.Build(webform.ID, state, submissions, webform, p.now())
}

// hasPending 判断队列中是否已有该表单类型的批次
//
// 引用固定以 <表单类型>_ 开头，按前缀判断即可。
func hasPending(refs map[string]struct{}, formType string) bool {
	prefix := formType + "_"
	for ref := range refs {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}
