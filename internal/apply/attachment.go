package apply

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fetcher 经 api-key 鉴权下载附件
type Fetcher struct {
	httpClient *http.Client
	apiKey     string
}

// NewFetcher 创建附件下载器
func NewFetcher(apiKey string) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
	}
}

// Download 下载附件字节，非 2xx 即错误
func (f *Fetcher) Download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download returned %s", resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment body: %w", err)
	}
	return content, nil
}

// uploadAttachment 把提交引用的附件搬运到目标文件夹
//
// 目标处已有同名文件时整步跳过（重复投递下的幂等保护）。
// 下载失败直接返回错误让条目失败，绝不带着空内容继续上传。
func (p *Processor) uploadAttachment(ctx context.Context, store FileStore, folder, fileURL string) error {
	fileName, err := fileNameFromURL(fileURL)
	if err != nil {
		return err
	}

	existing, err := store.FetchFiles(ctx, folder)
	if err != nil {
		return fmt.Errorf("failed to list attachment folder %q: %w", folder, err)
	}
	for _, f := range existing {
		if f.Name == fileName {
			log.Printf("附件 %q 已存在于目标文件夹，跳过下载与上传", fileName)
			return nil
		}
	}

	content, err := p.fetcher.Download(ctx, fileURL)
	if err != nil {
		return fmt.Errorf("failed to download attachment %q: %w", fileName, err)
	}

	if err := store.WriteBinary(ctx, content, fileName, folder); err != nil {
		return fmt.Errorf("failed to upload attachment %q: %w", fileName, err)
	}

	log.Printf("附件 %q 已上传至 %q", fileName, folder)
	return nil
}

// fileNameFromURL 从下载地址解析最终文件名
func fileNameFromURL(fileURL string) (string, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("invalid attachment url: %w", err)
	}

	segments := strings.Split(strings.TrimRight(parsed.Path, "/"), "/")
	name := segments[len(segments)-1]
	if name == "" {
		return "", fmt.Errorf("attachment url %q has no file name", fileURL)
	}

	decoded, err := url.PathUnescape(name)
	if err != nil {
		return name, nil
	}
	return decoded, nil
}
