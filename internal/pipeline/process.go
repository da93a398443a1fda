package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/procerr"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/queue"
)

// completionMessage 条目完成时回写队列的消息
const completionMessage = "Process completed without exceptions"

// ItemQueue 处理阶段所需的队列能力
type ItemQueue interface {
	Next(ctx context.Context) (*queue.Item, error)
	Complete(ctx context.Context, itemID int64, message string) error
	Fail(ctx context.Context, itemID int64, message string) error
	PendingUser(ctx context.Context, itemID int64, message string) error
}

// Applier 把工作项落到持久层
type Applier interface {
	Apply(ctx context.Context, item *model.WorkItem) error
}

// Runner 处理阶段：逐条领取队列条目并应用
type Runner struct {
	queue   ItemQueue
	applier Applier
}

// NewRunner 创建处理器
func NewRunner(q ItemQueue, applier Applier) *Runner {
	return &Runner{queue: q, applier: applier}
}

// Run 清空队列
//
// 条目失败的归宿由错误分类决定：应用错误标记 failed 后继续领下一条；
// 业务错误标记 pending_user 转人工；无法分类的错误视为流程级故障，
// 标记失败后中止整轮并向上抛 ProcessError。
func (r *Runner) Run(ctx context.Context) (queue.Summary, error) {
	var summary queue.Summary

	for {
		item, err := r.queue.Next(ctx)
		if err != nil {
			return summary, &procerr.ProcessError{Err: fmt.Errorf("failed to get next queue item: %w", err)}
		}
		if item == nil {
			log.Printf("队列已清空: %d 成功, %d 失败", summary.Succeeded, summary.Failed)
			return summary, nil
		}

		log.Printf("开始处理条目 %s", item.Reference)

		if err := r.processOne(ctx, item); err != nil {
			summary.Failed++

			var applyErr *procerr.ApplyError
			if errors.As(err, &applyErr) {
				continue
			}

			var bizErr *procerr.BusinessError
			if errors.As(err, &bizErr) {
				continue
			}

			return summary, &procerr.ProcessError{Err: err}
		}

		summary.Succeeded++
	}
}

// processOne 应用单个条目并把结果回写队列
func (r *Runner) processOne(ctx context.Context, item *queue.Item) error {
	var work model.WorkItem
	if err := json.Unmarshal(item.Data, &work); err != nil {
		wrapped := &procerr.ApplyError{Step: "decode", Err: err}
		if failErr := r.queue.Fail(ctx, item.ID, wrapped.Error()); failErr != nil {
			log.Printf("回写条目 %d 失败状态出错: %v", item.ID, failErr)
		}
		return wrapped
	}

	err := r.applier.Apply(ctx, &work)
	if err == nil {
		if err := r.queue.Complete(ctx, item.ID, completionMessage); err != nil {
			return fmt.Errorf("failed to complete item %d: %w", item.ID, err)
		}
		log.Printf("条目 %s 处理完成", item.Reference)
		return nil
	}

	var bizErr *procerr.BusinessError
	if errors.As(err, &bizErr) {
		log.Printf("条目 %s 触发业务规则，转人工: %s", item.Reference, bizErr.Reason)
		if puErr := r.queue.PendingUser(ctx, item.ID, bizErr.Reason); puErr != nil {
			log.Printf("回写条目 %d 待人工状态出错: %v", item.ID, puErr)
		}
		return err
	}

	log.Printf("条目 %s 处理失败: %v", item.Reference, err)
	if failErr := r.queue.Fail(ctx, item.ID, err.Error()); failErr != nil {
		log.Printf("回写条目 %d 失败状态出错: %v", item.ID, failErr)
	}
	return err
}
