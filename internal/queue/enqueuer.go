package queue

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/procerr"
)

// ItemAdder 入队所需的最小队列能力
type ItemAdder interface {
	AddItem(ctx context.Context, data any, reference string) error
}

// Summary 一次批量入队的结果计数
//
// 部分失败是正常的完成方式，以计数返回而非错误抛出。
type Summary struct {
	Succeeded int
	Failed    int
}

// Enqueuer 受并发上限约束的批量入队器
//
// 每个条目独立重试，第 k 次失败后的退避为 baseDelay * 2^(k-1)；
// 重试耗尽计为失败，不影响其余条目。
type Enqueuer struct {
	adder          ItemAdder
	maxConcurrency int64
	maxRetries     int
	baseDelay      time.Duration

	// sleep 可注入，测试时替换以免真实等待
	sleep func(time.Duration)
}

// NewEnqueuer 创建入队器；非法参数回落到默认值
func NewEnqueuer(adder ItemAdder, maxConcurrency, maxRetries int, baseDelay time.Duration) *Enqueuer {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Enqueuer{
		adder:          adder,
		maxConcurrency: int64(maxConcurrency),
		maxRetries:     maxRetries,
		baseDelay:      baseDelay,
		sleep:          time.Sleep,
	}
}

// EnqueueAll 并发入队全部工作项
//
// 派发前按条目完整内容的规范序列化排序，保证相同输入集合在任何
// 到达顺序下产生相同的派发顺序。
func (e *Enqueuer) EnqueueAll(ctx context.Context, items []*model.WorkItem) Summary {
	if len(items) == 0 {
		log.Println("没有新条目需要入队")
		return Summary{}
	}

	sorted := make([]*model.WorkItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return canonicalKey(sorted[i]) < canonicalKey(sorted[j])
	})

	log.Printf("按规范顺序入队 %d 个条目", len(sorted))

	sem := semaphore.NewWeighted(e.maxConcurrency)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    int
	)

	for _, item := range sorted {
		if err := sem.Acquire(ctx, 1); err != nil {
			// 上下文取消，剩余条目计为失败
			mu.Lock()
			failed++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(item *model.WorkItem) {
			defer wg.Done()
			defer sem.Release(1)

			ok := e.addOne(ctx, item)

			mu.Lock()
			if ok {
				succeeded++
			} else {
				failed++
			}
			mu.Unlock()
		}(item)
	}

	wg.Wait()

	summary := Summary{Succeeded: succeeded, Failed: failed}
	log.Printf("入队汇总: %d 成功, %d 失败, 共 %d", summary.Succeeded, summary.Failed, len(sorted))
	return summary
}

// addOne 入队单个条目，带退避重试
func (e *Enqueuer) addOne(ctx context.Context, item *model.WorkItem) bool {
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		err := e.adder.AddItem(ctx, item, item.Reference)
		if err == nil {
			log.Printf("条目已入队: %s", item.Reference)
			return true
		}

		if attempt >= e.maxRetries {
			log.Printf("入队放弃: %v", &procerr.EnqueueError{
				Reference: item.Reference,
				Attempts:  attempt,
				Err:       err,
			})
			return false
		}

		backoff := e.baseDelay * (1 << (attempt - 1))
		log.Printf("条目 %s 入队出错 (第 %d/%d 次)，%s 后重试: %v",
			item.Reference, attempt, e.maxRetries, backoff, err)
		e.sleep(backoff)
	}
	return false
}

// canonicalKey 条目完整内容的规范序列化
//
// 结构体字段顺序固定、map 键有序，相同内容必得相同键。
func canonicalKey(item *model.WorkItem) string {
	data, _ := json.Marshal(item)
	return string(data)
}
