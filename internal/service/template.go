package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/model"
	"github.com/clauseforge/backend/internal/repository"
)

var (
	ErrTemplateNotFound = errors.New("document template not found")
	ErrTemplateConflict = errors.New("template name already exists")
	ErrClauseNotFound   = errors.New("clause not found")
	ErrOrderConflict    = errors.New("clause order_num already used in template")
)

// ClauseSpecError 条款配置校验失败
type ClauseSpecError struct {
	SectionName string
	Err         error
}

func (e *ClauseSpecError) Error() string {
	return fmt.Sprintf("invalid clause spec (%s): %v", e.SectionName, e.Err)
}

func (e *ClauseSpecError) Unwrap() error {
	return e.Err
}

// ClauseRequest 条款配置请求
// JSON 配置在写入时全部校验，谓词/正则非法直接拒绝
type ClauseRequest struct {
	OrderNum         int                               `json:"order_num" binding:"required,min=1"`
	SectionName      string                            `json:"section_name" binding:"required,min=1,max=255"`
	Type             domain.ClauseType                 `json:"type" binding:"required,oneof=mandatory optional"`
	IncludeWhen      *domain.Predicate                 `json:"include_when"`
	TypeAlternatives map[string]domain.AlternativeSpec `json:"type_alternatives"`
	AlertConditions  map[string]domain.AlertCondition  `json:"alert_conditions"`
	Suggestions      map[string]domain.SuggestionRule  `json:"suggestions"`
	SystemPrompt     string                            `json:"system_prompt"`
}

// CreateTemplateRequest 创建模板请求，可携带初始条款
type CreateTemplateRequest struct {
	Name        string          `json:"name" binding:"required,min=1,max=255"`
	Description string          `json:"description" binding:"max=1000"`
	Clauses     []ClauseRequest `json:"clauses"`
}

// UpdateTemplateRequest 更新模板元信息请求
type UpdateTemplateRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=255"`
	Description string `json:"description" binding:"max=1000"`
}

// TemplateService 模板服务接口
type TemplateService interface {
	Create(ctx context.Context, req CreateTemplateRequest) (*model.DocTemplate, error)
	List(ctx context.Context) ([]model.DocTemplate, error)
	Get(ctx context.Context, id uint) (*model.DocTemplate, error)
	GetWithClauses(ctx context.Context, id uint) (*model.DocTemplate, error)
	Update(ctx context.Context, id uint, req UpdateTemplateRequest) (*model.DocTemplate, error)
	Delete(ctx context.Context, id uint) error

	AddClause(ctx context.Context, templateID uint, req ClauseRequest) (*model.Clause, error)
	UpdateClause(ctx context.Context, templateID, clauseID uint, req ClauseRequest) (*model.Clause, error)
	DeleteClause(ctx context.Context, templateID, clauseID uint) error
}

// templateService 实现
type templateService struct {
	tplRepo    repository.TemplateRepository
	clauseRepo repository.ClauseRepository
	docRepo    repository.DocumentRepository
}

// NewTemplateService 创建服务实例
func NewTemplateService(
	tplRepo repository.TemplateRepository,
	clauseRepo repository.ClauseRepository,
	docRepo repository.DocumentRepository,
) TemplateService {
	return &templateService{
		tplRepo:    tplRepo,
		clauseRepo: clauseRepo,
		docRepo:    docRepo,
	}
}

// Create 创建模板
// 初始条款的 order_num 不允许重复，任一条款配置非法则整体拒绝
func (s *templateService) Create(ctx context.Context, req CreateTemplateRequest) (*model.DocTemplate, error) {
	if _, err := s.tplRepo.GetByName(req.Name); err == nil {
		return nil, ErrTemplateConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check template name: %w", err)
	}

	seen := make(map[int]bool, len(req.Clauses))
	clauses := make([]model.Clause, 0, len(req.Clauses))
	for _, cr := range req.Clauses {
		if seen[cr.OrderNum] {
			return nil, ErrOrderConflict
		}
		seen[cr.OrderNum] = true

		clause, err := buildClause(cr)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, *clause)
	}

	tpl := &model.DocTemplate{
		Name:        req.Name,
		Description: req.Description,
		Clauses:     clauses,
	}
	if err := s.tplRepo.Create(tpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	klog.Infof("模板已创建: id=%d, name=%s, clauses=%d", tpl.ID, tpl.Name, len(clauses))
	return tpl, nil
}

// List 获取全部模板
func (s *templateService) List(ctx context.Context) ([]model.DocTemplate, error) {
	return s.tplRepo.List()
}

// Get 获取模板元信息
func (s *templateService) Get(ctx context.Context, id uint) (*model.DocTemplate, error) {
	tpl, err := s.tplRepo.Get(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

// GetWithClauses 获取模板及其按 order_num 排序的全部条款
func (s *templateService) GetWithClauses(ctx context.Context, id uint) (*model.DocTemplate, error) {
	tpl, err := s.tplRepo.GetWithClauses(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template with clauses: %w", err)
	}
	return tpl, nil
}

// Update 更新模板元信息
func (s *templateService) Update(ctx context.Context, id uint, req UpdateTemplateRequest) (*model.DocTemplate, error) {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != tpl.Name {
		if _, err := s.tplRepo.GetByName(req.Name); err == nil {
			return nil, ErrTemplateConflict
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to check template name: %w", err)
		}
	}

	tpl.Name = req.Name
	tpl.Description = req.Description
	if err := s.tplRepo.Save(tpl); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	return tpl, nil
}

// Delete 删除模板，级联删除其条款与全部文档实例
// 破坏性操作，只能由调用方显式触发
func (s *templateService) Delete(ctx context.Context, id uint) error {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	docs, err := s.docRepo.GetByTemplate(id)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	if len(docs) > 0 {
		klog.Warningf("级联删除模板及其文档: templateID=%d, name=%s, documents=%d",
			id, tpl.Name, len(docs))
	}

	if err := s.tplRepo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

// AddClause 向模板追加条款
// order_num 与既有条款冲突时拒绝，不做自动顺延
func (s *templateService) AddClause(ctx context.Context, templateID uint, req ClauseRequest) (*model.Clause, error) {
	if _, err := s.Get(ctx, templateID); err != nil {
		return nil, err
	}

	clause, err := buildClause(req)
	if err != nil {
		return nil, err
	}
	clause.DocTemplateID = templateID

	if err := s.clauseRepo.Create(clause); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return nil, ErrOrderConflict
		}
		return nil, fmt.Errorf("failed to create clause: %w", err)
	}
	return clause, nil
}

// UpdateClause 更新条款配置
func (s *templateService) UpdateClause(ctx context.Context, templateID, clauseID uint, req ClauseRequest) (*model.Clause, error) {
	clause, err := s.getClause(templateID, clauseID)
	if err != nil {
		return nil, err
	}

	updated, err := buildClause(req)
	if err != nil {
		return nil, err
	}
	updated.ID = clause.ID
	updated.DocTemplateID = clause.DocTemplateID
	updated.CreatedAt = clause.CreatedAt

	if err := s.clauseRepo.Save(updated); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return nil, ErrOrderConflict
		}
		return nil, fmt.Errorf("failed to update clause: %w", err)
	}
	return updated, nil
}

// DeleteClause 删除条款
func (s *templateService) DeleteClause(ctx context.Context, templateID, clauseID uint) error {
	clause, err := s.getClause(templateID, clauseID)
	if err != nil {
		return err
	}
	if err := s.clauseRepo.Delete(clause.ID); err != nil {
		return fmt.Errorf("failed to delete clause: %w", err)
	}
	return nil
}

// getClause 获取条款并校验归属模板
func (s *templateService) getClause(templateID, clauseID uint) (*model.Clause, error) {
	clause, err := s.clauseRepo.Get(clauseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrClauseNotFound
		}
		return nil, fmt.Errorf("failed to get clause: %w", err)
	}
	if clause.DocTemplateID != templateID {
		return nil, ErrClauseNotFound
	}
	return clause, nil
}

// buildClause 把请求转换为条款模型并校验全部 JSON 配置
func buildClause(req ClauseRequest) (*model.Clause, error) {
	clause := &model.Clause{
		OrderNum:         req.OrderNum,
		SectionName:      req.SectionName,
		Type:             req.Type,
		IncludeWhen:      datatypes.NewJSONType(req.IncludeWhen),
		TypeAlternatives: datatypes.NewJSONType(req.TypeAlternatives),
		AlertConditions:  datatypes.NewJSONType(req.AlertConditions),
		Suggestions:      datatypes.NewJSONType(req.Suggestions),
		SystemPrompt:     req.SystemPrompt,
	}
	if err := clause.ValidateSpec(); err != nil {
		return nil, &ClauseSpecError{SectionName: req.SectionName, Err: err}
	}
	return clause, nil
}
