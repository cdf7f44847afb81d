package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/model"
	"github.com/clauseforge/backend/internal/repository"
	"github.com/clauseforge/backend/internal/utils"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrTemplateHasNoClauses = errors.New("template has no clauses")
	ErrDocumentNotCompleted = errors.New("document is not completed")
)

// CreateDocumentRequest 创建文档实例请求
type CreateDocumentRequest struct {
	DocTemplateID uint           `json:"doc_template_id" binding:"required"`
	Params        map[string]any `json:"params"`
}

// DocumentService 文档实例服务接口
// 推进/暂停/恢复由 session 包负责，这里只覆盖生命周期之外的读写
type DocumentService interface {
	Create(ctx context.Context, req CreateDocumentRequest) (*model.Document, error)
	Get(ctx context.Context, id uint) (*model.Document, error)
	GetByRefKey(ctx context.Context, refKey string) (*model.Document, error)
	ListByStatus(ctx context.Context, status string) ([]model.Document, error)
	ListByTemplate(ctx context.Context, templateID uint) ([]model.Document, error)
	Delete(ctx context.Context, id uint) error

	// Preview 返回文档当前进度的 Markdown 预览，任何状态可用
	Preview(ctx context.Context, id uint) (string, error)
	// Render 返回完整文档的 Markdown，仅 completed 状态可用
	Render(ctx context.Context, id uint) (string, error)
}

// documentService 实现
type documentService struct {
	docRepo repository.DocumentRepository
	tplRepo repository.TemplateRepository
}

// NewDocumentService 创建服务实例
func NewDocumentService(docRepo repository.DocumentRepository, tplRepo repository.TemplateRepository) DocumentService {
	return &documentService{docRepo: docRepo, tplRepo: tplRepo}
}

// Create 基于模板创建文档实例
// 新文档从第一个条款开始推进，ref_key 作为对外引用标识
func (s *documentService) Create(ctx context.Context, req CreateDocumentRequest) (*model.Document, error) {
	tpl, err := s.tplRepo.GetWithClauses(req.DocTemplateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if len(tpl.Clauses) == 0 {
		return nil, ErrTemplateHasNoClauses
	}

	params := req.Params
	if params == nil {
		params = map[string]any{}
	}

	doc := &model.Document{
		RefKey:             uuid.NewString(),
		DocTemplateID:      tpl.ID,
		Content:            datatypes.NewJSONType(domain.DocumentContent{}),
		Params:             datatypes.NewJSONType(params),
		Status:             model.DocStatusInProgress,
		CurrentClauseOrder: 1,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	klog.Infof("文档已创建: id=%d, refKey=%s, template=%s", doc.ID, doc.RefKey, tpl.Name)
	klog.V(6).Infof("文档参数: id=%d, params=%s", doc.ID, utils.ToJSON(params))
	return doc, nil
}

// Get 按 ID 获取文档
func (s *documentService) Get(ctx context.Context, id uint) (*model.Document, error) {
	doc, err := s.docRepo.Get(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetByRefKey 按对外引用标识获取文档
func (s *documentService) GetByRefKey(ctx context.Context, refKey string) (*model.Document, error) {
	doc, err := s.docRepo.GetByRefKey(refKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListByStatus 按状态获取文档列表
func (s *documentService) ListByStatus(ctx context.Context, status string) ([]model.Document, error) {
	return s.docRepo.GetByStatus(status)
}

// ListByTemplate 获取模板下全部文档
func (s *documentService) ListByTemplate(ctx context.Context, templateID uint) ([]model.Document, error) {
	return s.docRepo.GetByTemplate(templateID)
}

// Delete 删除文档实例
func (s *documentService) Delete(ctx context.Context, id uint) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.docRepo.Delete(id)
}

// Preview 拼装当前进度的 Markdown 预览
func (s *documentService) Preview(ctx context.Context, id uint) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return renderMarkdown(doc), nil
}

// Render 拼装完整文档的 Markdown，未完成的文档拒绝渲染
func (s *documentService) Render(ctx context.Context, id uint) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.Status != model.DocStatusCompleted {
		return "", ErrDocumentNotCompleted
	}
	return renderMarkdown(doc), nil
}

// renderMarkdown 按条款顺序拼装 Markdown，跳过的条款不出现在产出中
func renderMarkdown(doc *model.Document) string {
	var sb strings.Builder
	for _, rec := range doc.Content.Data().OrderedRecords() {
		if rec.Skipped {
			continue
		}
		sb.WriteString("## ")
		sb.WriteString(rec.SectionName)
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(rec.Text))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
