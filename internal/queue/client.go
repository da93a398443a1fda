// Package queue 工作队列客户端与批量入队
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Item 队列中的一个条目
type Item struct {
	ID        int64           `json:"id"`
	Reference string          `json:"reference"`
	Data      json.RawMessage `json:"data"`
	Status    string          `json:"status"`
}

// Client 自动化服务器工作队列的 REST 客户端
//
// 队列提供至少一次投递；条目生命周期由 Complete/Fail/PendingUser 驱动。
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	workqueueID string
}

// NewClient 创建队列客户端
func NewClient(baseURL, token, workqueueID string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		workqueueID: workqueueID,
	}
}

// AddItem 按引用入队一个条目
func (c *Client) AddItem(ctx context.Context, data any, reference string) error {
	payload, err := json.Marshal(map[string]any{
		"data":      data,
		"reference": reference,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	endpoint := fmt.Sprintf("%s/workqueues/%s/items", c.baseURL, c.workqueueID)
	return c.send(ctx, http.MethodPost, endpoint, payload, nil)
}

// References 列出队列中全部现存引用
//
// 用于填充阶段跳过已在队列中的批次。
func (c *Client) References(ctx context.Context) (map[string]struct{}, error) {
	endpoint := fmt.Sprintf("%s/workqueues/%s/items", c.baseURL, c.workqueueID)

	var body struct {
		Items []Item `json:"items"`
	}
	if err := c.send(ctx, http.MethodGet, endpoint, nil, &body); err != nil {
		return nil, err
	}

	refs := make(map[string]struct{}, len(body.Items))
	for _, item := range body.Items {
		refs[item.Reference] = struct{}{}
	}
	return refs, nil
}

// Next 领取下一个待处理条目；队列空时返回 nil
func (c *Client) Next(ctx context.Context) (*Item, error) {
	endpoint := fmt.Sprintf("%s/workqueues/%s/items/next", c.baseURL, c.workqueueID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workqueue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("workqueue returned %s", resp.Status)
	}

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode queue item: %w", err)
	}
	return &item, nil
}

// Complete 标记条目处理完成
func (c *Client) Complete(ctx context.Context, itemID int64, message string) error {
	return c.setStatus(ctx, itemID, "completed", message)
}

// Fail 标记条目失败，失败原因随状态附带
func (c *Client) Fail(ctx context.Context, itemID int64, message string) error {
	return c.setStatus(ctx, itemID, "failed", message)
}

// PendingUser 标记条目待人工处理
func (c *Client) PendingUser(ctx context.Context, itemID int64, message string) error {
	return c.setStatus(ctx, itemID, "pending_user", message)
}

func (c *Client) setStatus(ctx context.Context, itemID int64, status, message string) error {
	payload, err := json.Marshal(map[string]string{
		"status":  status,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	endpoint := fmt.Sprintf("%s/workqueues/%s/items/%d/status", c.baseURL, c.workqueueID, itemID)
	return c.send(ctx, http.MethodPut, endpoint, payload, nil)
}

// send 发送请求并按需解码响应
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("workqueue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("workqueue returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
