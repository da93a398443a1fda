package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunRecord 一次运行的日志记录
type RunRecord struct {
	ID             string     `json:"id"`
	Phase          string     `json:"phase"`
	Status         string     `json:"status"`
	ItemsSucceeded int        `json:"items_succeeded"`
	ItemsFailed    int        `json:"items_failed"`
	Detail         string     `json:"detail"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// CreateRunLog 创建运行日志，返回 run_id
func (s *Store) CreateRunLog(phase string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO run_logs (id, phase, status)
		VALUES (?, ?, 'running')
	`, id, phase)
	if err != nil {
		return "", fmt.Errorf("failed to create run log: %w", err)
	}
	return id, nil
}

// CompleteRunLog 完成运行日志更新
func (s *Store) CompleteRunLog(id, status string, succeeded, failed int, detail string) error {
	_, err := s.db.Exec(`
		UPDATE run_logs SET
			status = ?,
			items_succeeded = ?,
			items_failed = ?,
			detail = ?,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, succeeded, failed, detail, id)
	if err != nil {
		return fmt.Errorf("failed to update run log: %w", err)
	}
	return nil
}

// RecentRuns 按开始时间倒序返回最近的运行记录
func (s *Store) RecentRuns(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, phase, status, items_succeeded, items_failed, detail, started_at, completed_at
		FROM run_logs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		var (
			r           RunRecord
			completedAt *time.Time
		)
		if err := rows.Scan(&r.ID, &r.Phase, &r.Status, &r.ItemsSucceeded, &r.ItemsFailed, &r.Detail, &r.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		r.CompletedAt = completedAt
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run logs: %w", err)
	}

	return records, nil
}

// MarkStaleRuns 把悬挂的 running 记录标记为 aborted
//
// finalize 阶段调用，避免异常退出留下永远 running 的记录。
func (s *Store) MarkStaleRuns() (int64, error) {
	res, err := s.db.Exec(`
		UPDATE run_logs SET
			status = 'aborted',
			completed_at = CURRENT_TIMESTAMP
		WHERE status = 'running'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale runs: %w", err)
	}
	return res.RowsAffected()
}
