package pipeline

import (
	"fmt"
	"log"
)

// RunLog 收尾阶段所需的运行日志能力
type RunLog interface {
	MarkStaleRuns() (int64, error)
}

// Finalize 收尾阶段
//
// 把异常退出遗留的 running 记录收敛为 aborted。队列条目的终态由
// 处理阶段逐条回写，这里不再补救。
func Finalize(runLog RunLog) error {
	n, err := runLog.MarkStaleRuns()
	if err != nil {
		return fmt.Errorf("failed to finalize run logs: %w", err)
	}
	if n > 0 {
		log.Printf("收尾: %d 条悬挂运行记录已标记为 aborted", n)
	} else {
		log.Println("收尾: 没有悬挂的运行记录")
	}
	return nil
}
