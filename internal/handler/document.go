package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/repository"
	"github.com/clauseforge/backend/internal/service"
	"github.com/clauseforge/backend/internal/service/generator"
	"github.com/clauseforge/backend/internal/service/orchestrator"
	"github.com/clauseforge/backend/internal/service/session"
)

// DocumentHandler 文档处理器
type DocumentHandler struct {
	docService service.DocumentService
	session    *session.Session
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(docService service.DocumentService, sess *session.Session) *DocumentHandler {
	return &DocumentHandler{docService: docService, session: sess}
}

// Create 创建文档实例
// POST /api/documents
func (h *DocumentHandler) Create(c *gin.Context) {
	var req service.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.docService.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(documentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// List 按状态或模板获取文档列表
// GET /api/documents?status=xxx or ?template_id=xxx
func (h *DocumentHandler) List(c *gin.Context) {
	if status := c.Query("status"); status != "" {
		docs, err := h.docService.ListByStatus(c.Request.Context(), status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, docs)
		return
	}

	templateID, ok := parseQueryUint(c, "template_id")
	if !ok {
		return
	}
	docs, err := h.docService.ListByTemplate(c.Request.Context(), templateID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, docs)
}

// Get 获取文档
// GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	doc, err := h.docService.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(documentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// GetByRefKey 按对外引用标识获取文档
// GET /api/documents/ref/:refKey
func (h *DocumentHandler) GetByRefKey(c *gin.Context) {
	doc, err := h.docService.GetByRefKey(c.Request.Context(), c.Param("refKey"))
	if err != nil {
		c.JSON(documentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Advance 推进文档一个条款
// POST /api/documents/:id/advance
func (h *DocumentHandler) Advance(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.session.Advance(c.Request.Context(), id)
	if err != nil {
		c.JSON(advanceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Run 把文档推进任务提交到后台队列
// POST /api/documents/:id/run
func (h *DocumentHandler) Run(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if _, err := h.docService.Get(c.Request.Context(), id); err != nil {
		c.JSON(documentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	orch := orchestrator.GetGlobalOrchestrator()
	if orch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "orchestrator not initialized"})
		return
	}
	if err := orch.EnqueueJob(orchestrator.NewAdvanceJob(id)); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	klog.V(6).Infof("文档推进任务已入队: docID=%d", id)
	c.JSON(http.StatusAccepted, gin.H{"message": "document run enqueued"})
}

// Pause 暂停文档推进
// POST /api/documents/:id/pause
func (h *DocumentHandler) Pause(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	doc, err := h.session.Pause(c.Request.Context(), id)
	if err != nil {
		c.JSON(advanceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Resume 恢复 paused/needs_review 文档
// POST /api/documents/:id/resume
func (h *DocumentHandler) Resume(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	doc, err := h.session.Resume(c.Request.Context(), id)
	if err != nil {
		c.JSON(advanceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Preview 获取文档当前进度的 Markdown 预览
// GET /api/documents/:id/preview
func (h *DocumentHandler) Preview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	markdown, err := h.docService.Preview(c.Request.Context(), id)
	if err != nil {
		c.JSON(documentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markdown": markdown})
}

// Render 获取已完成文档的完整 Markdown
// GET /api/documents/:id/render
func (h *DocumentHandler) Render(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	markdown, err := h.docService.Render(c.Request.Context(), id)
	if err != nil {
		c.JSON(documentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markdown": markdown})
}

// Delete 删除文档实例
// DELETE /api/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.docService.Delete(c.Request.Context(), id); err != nil {
		c.JSON(documentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
}

// Status 获取后台编排器状态
// GET /api/documents/queue/status
func (h *DocumentHandler) Status(c *gin.Context) {
	orch := orchestrator.GetGlobalOrchestrator()
	if orch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "orchestrator not initialized"})
		return
	}
	c.JSON(http.StatusOK, orch.GetQueueStatus())
}

// parseQueryUint 解析查询参数为 uint
func parseQueryUint(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter: " + name})
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// documentErrorStatus 文档服务错误到 HTTP 状态码的映射
func documentErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrDocumentNotFound), errors.Is(err, service.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTemplateHasNoClauses), errors.Is(err, service.ErrDocumentNotCompleted):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// advanceErrorStatus 推进相关错误到 HTTP 状态码的映射
// 瞬时失败与并发冲突返回 503/409，调用方可重试
func advanceErrorStatus(err error) int {
	switch {
	case session.IsInvalidState(err):
		return http.StatusConflict
	case errors.Is(err, session.ErrConcurrencyConflict):
		return http.StatusConflict
	case generator.IsTransient(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrDocumentNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
