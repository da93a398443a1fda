package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/apply"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/config"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/notify"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/pipeline"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/queue"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/reconcile"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/server"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/sharepoint"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/source"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/store"
)

var (
	queuePhase    = flag.Bool("queue", false, "填充阶段: 读取提交并入队新批次")
	processPhase  = flag.Bool("process", false, "处理阶段: 清空队列并写入表格")
	finalizePhase = flag.Bool("finalize", false, "收尾阶段: 清理悬挂的运行记录")
	servePhase    = flag.Bool("serve", false, "启动状态查询服务")
)

func main() {
	flag.Parse()

	fmt.Println("==========================================")
	fmt.Println("  MBU Formulardata - 表单数据归档自动化")
	fmt.Println("==========================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	dataDir, err := config.EnsureDataDir(cfg)
	if err != nil {
		log.Fatalf("创建数据目录失败: %v", err)
	}

	st, err := store.New(filepath.Join(dataDir, "formulardata.db"))
	if err != nil {
		log.Fatalf("初始化运行日志库失败: %v", err)
	}
	defer st.Close()

	switch {
	case *queuePhase:
		runPhase(cfg, st, "populate", runPopulate)
	case *processPhase:
		runPhase(cfg, st, "process", runProcess)
	case *finalizePhase:
		if err := pipeline.Finalize(st); err != nil {
			log.Fatalf("收尾失败: %v", err)
		}
	case *servePhase:
		srv := server.NewServer(st)
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		fmt.Printf("状态服务启动中，监听端口 %d ...\n", cfg.Server.Port)
		if err := srv.Run(addr); err != nil {
			log.Fatalf("服务启动失败: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runPhase 执行一个阶段并记录运行日志；流程级失败触发邮件通知
func runPhase(cfg *config.AppConfig, st *store.Store, phase string, run func(context.Context, *config.AppConfig) (queue.Summary, error)) {
	ctx := context.Background()

	runID, err := st.CreateRunLog(phase)
	if err != nil {
		log.Printf("创建运行日志失败: %v", err)
	}

	summary, runErr := run(ctx, cfg)

	status := "completed"
	detail := ""
	if runErr != nil {
		status = "failed"
		detail = runErr.Error()
	}
	if runID != "" {
		if err := st.CompleteRunLog(runID, status, summary.Succeeded, summary.Failed, detail); err != nil {
			log.Printf("更新运行日志失败: %v", err)
		}
	}

	if runErr != nil {
		mailer := notify.NewMailer(cfg.Notify)
		if mailErr := mailer.NotifyError("MBU Formulardata "+phase, runErr); mailErr != nil {
			log.Printf("发送错误邮件失败: %v", mailErr)
		}
		log.Fatalf("阶段 %s 失败: %v", phase, runErr)
	}

	log.Printf("阶段 %s 完成: %d 成功, %d 失败", phase, summary.Succeeded, summary.Failed)
}

// runPopulate 填充阶段装配与执行
func runPopulate(ctx context.Context, cfg *config.AppConfig) (queue.Summary, error) {
	db, err := sql.Open(cfg.Source.Driver, cfg.Source.ConnString)
	if err != nil {
		return queue.Summary{}, fmt.Errorf("failed to open submission database: %w", err)
	}
	defer db.Close()

	src := source.New(db, cfg.Source.Table)

	spClient := newSharePointClient(cfg)
	stores := func(site string) reconcile.FileStore {
		return spClient.WithSite(site)
	}

	queueClient := queue.NewClient(cfg.Queue.URL, cfg.Queue.Token, cfg.Queue.WorkqueueID)
	enqueuer := queue.NewEnqueuer(queueClient, cfg.Queue.MaxConcurrency, cfg.Queue.MaxRetries, cfg.Queue.BaseDelay())

	populator := pipeline.NewPopulator(src, queueClient, enqueuer, stores, cfg)
	return populator.Run(ctx)
}

// runProcess 处理阶段装配与执行
func runProcess(ctx context.Context, cfg *config.AppConfig) (queue.Summary, error) {
	spClient := newSharePointClient(cfg)
	stores := func(site string) apply.FileStore {
		return spClient.WithSite(site)
	}

	fetcher := apply.NewFetcher(cfg.Attachment.APIKey)
	processor := apply.NewProcessor(stores, fetcher, cfg)

	queueClient := queue.NewClient(cfg.Queue.URL, cfg.Queue.Token, cfg.Queue.WorkqueueID)

	runner := pipeline.NewRunner(queueClient, processor)
	return runner.Run(ctx)
}

func newSharePointClient(cfg *config.AppConfig) *sharepoint.Client {
	return sharepoint.New(sharepoint.Config{
		SiteURL:         cfg.SharePoint.SiteURL,
		DocumentLibrary: cfg.SharePoint.DocumentLibrary,
		Username:        cfg.SharePoint.Username,
		Password:        cfg.SharePoint.Password,
	})
}
