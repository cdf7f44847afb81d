package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clauseforge/backend/internal/service"
)

// TemplateHandler 模板处理器
type TemplateHandler struct {
	service service.TemplateService
}

// NewTemplateHandler 创建模板处理器
func NewTemplateHandler(service service.TemplateService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

// Create 创建模板
// POST /api/templates
func (h *TemplateHandler) Create(c *gin.Context) {
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tpl, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(templateErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, tpl)
}

// List 获取模板列表
// GET /api/templates
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, templates)
}

// Get 获取模板及其条款
// GET /api/templates/:id
func (h *TemplateHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	tpl, err := h.service.GetWithClauses(c.Request.Context(), id)
	if err != nil {
		c.JSON(templateErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// Update 更新模板元信息
// PUT /api/templates/:id
func (h *TemplateHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req service.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tpl, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(templateErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// Delete 删除模板（级联删除条款与文档）
// DELETE /api/templates/:id
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		c.JSON(templateErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "template deleted"})
}

// AddClause 向模板追加条款
// POST /api/templates/:id/clauses
func (h *TemplateHandler) AddClause(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req service.ClauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	clause, err := h.service.AddClause(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(templateErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, clause)
}

// UpdateClause 更新条款配置
// PUT /api/templates/:id/clauses/:clauseId
func (h *TemplateHandler) UpdateClause(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	clauseID, err := strconv.ParseUint(c.Param("clauseId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clause id"})
		return
	}

	var req service.ClauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	clause, err := h.service.UpdateClause(c.Request.Context(), id, uint(clauseID), req)
	if err != nil {
		c.JSON(templateErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, clause)
}

// DeleteClause 删除条款
// DELETE /api/templates/:id/clauses/:clauseId
func (h *TemplateHandler) DeleteClause(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	clauseID, err := strconv.ParseUint(c.Param("clauseId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clause id"})
		return
	}

	if err := h.service.DeleteClause(c.Request.Context(), id, uint(clauseID)); err != nil {
		c.JSON(templateErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "clause deleted"})
}

// parseID 解析 URL 中的 :id 参数
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// templateErrorStatus 模板服务错误到 HTTP 状态码的映射
func templateErrorStatus(err error) int {
	var specErr *service.ClauseSpecError
	switch {
	case errors.Is(err, service.ErrTemplateNotFound), errors.Is(err, service.ErrClauseNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTemplateConflict), errors.Is(err, service.ErrOrderConflict):
		return http.StatusConflict
	case errors.As(err, &specErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
