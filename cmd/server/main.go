package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/config"
	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/eventbus"
	"github.com/clauseforge/backend/internal/handler"
	"github.com/clauseforge/backend/internal/pkg/database"
	"github.com/clauseforge/backend/internal/pkg/llm"
	"github.com/clauseforge/backend/internal/repository"
	"github.com/clauseforge/backend/internal/router"
	"github.com/clauseforge/backend/internal/service"
	"github.com/clauseforge/backend/internal/service/generator"
	"github.com/clauseforge/backend/internal/service/orchestrator"
	"github.com/clauseforge/backend/internal/service/session"
	"github.com/clauseforge/backend/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if dir := filepath.Dir(cfg.Database.DSN); cfg.Database.Type != "mysql" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化 Repository
	tplRepo := repository.NewTemplateRepository(db)
	clauseRepo := repository.NewClauseRepository(db)
	docRepo := repository.NewDocumentRepository(db)

	// 初始化系统预置模板
	if err := service.InitSystemTemplates(tplRepo); err != nil {
		log.Fatalf("Failed to init system templates: %v", err)
	}

	// 初始化 Service
	templateService := service.NewTemplateService(tplRepo, clauseRepo, docRepo)
	documentService := service.NewDocumentService(docRepo, tplRepo)

	// 文档事件总线与审查策略订阅
	bus := eventbus.NewDocumentEventBus()
	reviewPolicy := subscriber.NewReviewPolicy(docRepo, domain.Severity(cfg.Engine.ReviewSeverity))
	reviewPolicy.Register(bus)

	// 文档会话服务（条款推进）
	gen := generator.New(llm.NewClient(cfg))
	sess := session.New(docRepo, clauseRepo, gen, bus)

	// 初始化全局任务编排器，后台批量推进文档
	executor := &advanceExecutorAdapter{session: sess}
	orchestrator.InitGlobalOrchestrator(cfg.Engine.MaxWorkers, executor, retryableAdvanceError)
	defer orchestrator.ShutdownGlobalOrchestrator()

	// 初始化 Handler
	templateHandler := handler.NewTemplateHandler(templateService)
	documentHandler := handler.NewDocumentHandler(documentService, sess)

	// 设置路由
	r := router.Setup(cfg, templateHandler, documentHandler)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
