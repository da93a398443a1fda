// Package sharepoint SharePoint 文档库 REST 客户端
package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FileInfo 文档库中的文件条目
type FileInfo struct {
	Name string `json:"Name"`
}

// Client 绑定到单个站点的文档库客户端
//
// 跨站点操作通过 WithSite 构造派生客户端完成，不原地修改。
type Client struct {
	httpClient *http.Client
	siteURL    string
	siteName   string
	library    string
	username   string
	password   string
}

// Config 客户端配置
type Config struct {
	SiteURL         string
	SiteName        string
	DocumentLibrary string
	Username        string
	Password        string
}

// New 创建文档库客户端
func New(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		siteURL:    strings.TrimRight(cfg.SiteURL, "/"),
		siteName:   cfg.SiteName,
		library:    cfg.DocumentLibrary,
		username:   cfg.Username,
		password:   cfg.Password,
	}
}

// WithSite 返回指向另一站点的派生客户端
func (c *Client) WithSite(siteName string) *Client {
	derived := *c
	derived.siteName = siteName
	return &derived
}

// FetchFiles 列出文件夹下的全部文件
//
// 文件夹不存在时返回空列表而非错误。
func (c *Client) FetchFiles(ctx context.Context, folder string) ([]FileInfo, error) {
	endpoint := fmt.Sprintf("%s/GetFolderByServerRelativeUrl('%s')/Files?$select=Name",
		c.apiBase(), escapePath(c.folderPath(folder)))

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to list folder %q: %s", folder, resp.Status)
	}

	var body struct {
		Value []FileInfo `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode file list: %w", err)
	}

	return body.Value, nil
}

// ReadBinary 读取文件内容
func (c *Client) ReadBinary(ctx context.Context, fileName, folder string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/GetFileByServerRelativeUrl('%s')/$value",
		c.apiBase(), escapePath(c.folderPath(folder)+"/"+fileName))

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to read file %q: %s", fileName, resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return content, nil
}

// WriteBinary 上传文件内容（同名覆盖）
func (c *Client) WriteBinary(ctx context.Context, content []byte, fileName, folder string) error {
	endpoint := fmt.Sprintf("%s/GetFolderByServerRelativeUrl('%s')/Files/add(url='%s',overwrite=true)",
		c.apiBase(), escapePath(c.folderPath(folder)), escapePath(fileName))

	resp, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(content), "application/octet-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to upload file %q: %s", fileName, resp.Status)
	}
	return nil
}

// apiBase 当前站点的 REST 根
func (c *Client) apiBase() string {
	if c.siteName == "" {
		return c.siteURL + "/_api/web"
	}
	return fmt.Sprintf("%s/sites/%s/_api/web", c.siteURL, c.siteName)
}

// folderPath 服务器相对路径（文档库 + 文件夹）
func (c *Client) folderPath(folder string) string {
	path := c.library
	if c.siteName != "" {
		path = "sites/" + c.siteName + "/" + path
	}
	if folder != "" {
		path += "/" + strings.Trim(folder, "/")
	}
	return "/" + path
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json;odata=nometadata")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sharepoint request failed: %w", err)
	}
	return resp, nil
}

// escapePath 转义路径中的特殊字符（单引号按 OData 习惯成对转义）
func escapePath(path string) string {
	escaped := url.PathEscape(path)
	// PathEscape 会转义斜杠，路径分隔符需要保留
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return strings.ReplaceAll(escaped, "'", "''")
}
