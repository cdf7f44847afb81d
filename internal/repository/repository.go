package repository

import (
	"errors"

	"github.com/clauseforge/backend/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict 乐观并发写入冲突：期望版本已被别的提交推进
var ErrVersionConflict = errors.New("document version conflict")

// ErrDuplicateOrder 条款 order_num 在模板内重复
var ErrDuplicateOrder = errors.New("duplicate clause order_num in template")

// TemplateRepository 模板 Repository 接口
type TemplateRepository interface {
	Create(tpl *model.DocTemplate) error
	List() ([]model.DocTemplate, error)
	Get(id uint) (*model.DocTemplate, error)
	GetWithClauses(id uint) (*model.DocTemplate, error)
	GetByName(name string) (*model.DocTemplate, error)
	Save(tpl *model.DocTemplate) error
	Delete(id uint) error
}

// ClauseRepository 条款 Repository 接口
type ClauseRepository interface {
	Create(clause *model.Clause) error
	Get(id uint) (*model.Clause, error)
	GetByTemplate(templateID uint) ([]model.Clause, error)
	// GetAt 取模板中指定 order_num 的条款，不存在返回 ErrNotFound
	GetAt(templateID uint, orderNum int) (*model.Clause, error)
	// NextAfter 取模板中 order_num 大于给定值的最小条款（顺序允许留空隙）
	NextAfter(templateID uint, orderNum int) (*model.Clause, error)
	Save(clause *model.Clause) error
	Delete(id uint) error
}

// DocumentRepository 文档 Repository 接口
type DocumentRepository interface {
	Create(doc *model.Document) error
	Get(id uint) (*model.Document, error)
	GetByRefKey(refKey string) (*model.Document, error)
	GetByTemplate(templateID uint) ([]model.Document, error)
	GetByStatus(status string) ([]model.Document, error)
	// SaveWithVersion 乐观并发写入：只有当数据库中 version 仍等于
	// expectedVersion 时才提交，并把 version +1；否则返回 ErrVersionConflict
	SaveWithVersion(doc *model.Document, expectedVersion int) error
	// UpdateStatus 仅更新状态字段（外部策略使用，不触碰 content/position）
	UpdateStatus(id uint, from, to string) error
	Delete(id uint) error
}
