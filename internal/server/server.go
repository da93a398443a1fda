// Package server 运行状态查询服务
package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/store"
)

// Server HTTP 状态服务器
//
// 只读；自动化本身由计划任务驱动，这里仅暴露运行日志给运维查看。
type Server struct {
	router *gin.Engine
	store  *store.Store
}

// NewServer 创建服务器
func NewServer(sqliteStore *store.Store) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.Default(),
		store:  sqliteStore,
	}

	s.setupRoutes()

	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.GetHealth)
		api.GET("/runs", s.ListRuns)
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	LastRun string `json:"lastRun"` // 最近一次运行的开始时间
}

// GetHealth 健康检查
// GET /api/health
func (s *Server) GetHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}

	runs, err := s.store.RecentRuns(1)
	if err == nil && len(runs) > 0 {
		resp.LastRun = runs[0].StartedAt.Format("2006-01-02 15:04:05")
	}

	c.JSON(http.StatusOK, resp)
}

// ListRuns 查询最近的运行记录
// GET /api/runs?limit=20
func (s *Server) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	runs, err := s.store.RecentRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Run 启动服务器
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
