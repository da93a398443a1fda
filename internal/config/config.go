package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
)

// AppConfig 应用配置
//
// 加载后视为不可变；针对单次运行的覆盖（如测试路由）通过构造派生副本完成，
// 不允许原地修改共享配置。
type AppConfig struct {
	Server     ServerConfig     `toml:"server"`
	Data       DataConfig       `toml:"data"`
	Queue      QueueConfig      `toml:"queue"`
	Source     SourceConfig     `toml:"datasource"`
	SharePoint SharePointConfig `toml:"sharepoint"`
	Attachment AttachmentConfig `toml:"attachment"`
	Notify     NotifyConfig     `toml:"notify"`
	Webforms   []WebformConfig  `toml:"webform"`
}

// ServerConfig 状态服务配置
type ServerConfig struct {
	Port int `toml:"port"`
}

// DataConfig 本地数据配置（运行日志库）
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// QueueConfig 工作队列配置
type QueueConfig struct {
	URL              string `toml:"url"`
	Token            string `toml:"token"`
	WorkqueueID      string `toml:"workqueue_id"`
	MaxConcurrency   int    `toml:"max_concurrency"`
	MaxRetries       int    `toml:"max_retries"`
	RetryBaseDelayMS int    `toml:"retry_base_delay_ms"`
}

// BaseDelay 重试退避基准时长
func (q QueueConfig) BaseDelay() time.Duration {
	return time.Duration(q.RetryBaseDelayMS) * time.Millisecond
}

// SourceConfig 提交数据源配置
type SourceConfig struct {
	Driver     string `toml:"driver"`
	ConnString string `toml:"conn_string"`
	Table      string `toml:"table"`
}

// SharePointConfig 文档库配置
type SharePointConfig struct {
	SiteURL         string `toml:"site_url"`
	DocumentLibrary string `toml:"document_library"`
	Username        string `toml:"username"`
	Password        string `toml:"password"`
}

// AttachmentConfig 附件下载配置
type AttachmentConfig struct {
	APIKey string `toml:"api_key"`
}

// NotifyConfig 错误邮件通知配置
type NotifyConfig struct {
	SMTPServer string `toml:"smtp_server"`
	SMTPPort   int    `toml:"smtp_port"`
	Sender     string `toml:"sender"`
	Recipient  string `toml:"recipient"`
}

// WebformConfig 单个表单类型的路由配置
//
// Columns 的顺序即目标表格的列顺序。SortKey 支持列字母（"A"）或列名，
// SortType 取 str/int/float/datetime。
type WebformConfig struct {
	ID               string             `toml:"id"`
	SiteName         string             `toml:"site_name"`
	FolderName       string             `toml:"folder_name"`
	ExcelFileName    string             `toml:"excel_file_name"`
	AttachmentFolder string             `toml:"attachment_folder"`
	AttachmentField  string             `toml:"attachment_field"`
	SortKey          string             `toml:"sort_key"`
	SortType         string             `toml:"sort_type"`
	SortAscending    bool               `toml:"sort_ascending"`
	Columns          []model.ColumnRule `toml:"column"`
}

// Mapping 返回该表单类型的列映射
func (w WebformConfig) Mapping() model.FormMapping {
	return model.FormMapping(w.Columns)
}

// Webform 按表单类型查找路由配置
func (c *AppConfig) Webform(id string) (WebformConfig, bool) {
	for _, w := range c.Webforms {
		if w.ID == id {
			return w, true
		}
	}
	return WebformConfig{}, false
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port: 20271,
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Queue: QueueConfig{
			MaxConcurrency:   10,
			MaxRetries:       3,
			RetryBaseDelayMS: 500,
		},
		Source: SourceConfig{
			Driver: "sqlserver",
			Table:  "[journalizing].[Forms]",
		},
		SharePoint: SharePointConfig{
			SiteURL:         "https://aarhuskommune.sharepoint.com",
			DocumentLibrary: "Delte dokumenter",
		},
	}
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// LoadConfig 从 config.toml 加载配置
//
// 配置文件位于可执行文件同目录下；密钥类字段由环境变量覆盖
// （.env 文件若存在则先行加载）。
func LoadConfig() (*AppConfig, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	config := DefaultConfig()

	exeDir, err := GetExeDir()
	if err != nil {
		// 无法获取可执行文件目录，使用当前目录
		exeDir = "."
	}

	configPath := filepath.Join(exeDir, "config.toml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 配置文件不存在，使用默认配置
			applyEnvOverrides(config)
			return config, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config.toml: %w", err)
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides 环境变量覆盖（用于密钥与本地调试）
func applyEnvOverrides(config *AppConfig) {
	if v := os.Getenv("ATS_URL"); v != "" {
		config.Queue.URL = v
	}
	if v := os.Getenv("ATS_TOKEN"); v != "" {
		config.Queue.Token = v
	}
	if v := os.Getenv("DB_CONNECTION_STRING"); v != "" {
		config.Source.ConnString = v
	}
	if v := os.Getenv("SHAREPOINT_USERNAME"); v != "" {
		config.SharePoint.Username = v
	}
	if v := os.Getenv("SHAREPOINT_PASSWORD"); v != "" {
		config.SharePoint.Password = v
	}
	if v := os.Getenv("OS2_API_KEY"); v != "" {
		config.Attachment.APIKey = v
	}
	if v := os.Getenv("ERROR_EMAIL"); v != "" {
		config.Notify.Recipient = v
	}
	if v := os.Getenv("ERROR_SENDER"); v != "" {
		config.Notify.Sender = v
	}
	if v := os.Getenv("SMTP_SERVER"); v != "" {
		config.Notify.SMTPServer = v
	}
}

// EnsureDataDir 确保数据目录存在
//
// 数据目录位于可执行文件同目录下。
func EnsureDataDir(config *AppConfig) (string, error) {
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}

	dataDir := filepath.Join(exeDir, config.Data.DataDir)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}

	return dataDir, nil
}
