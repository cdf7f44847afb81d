package repository

import (
	"errors"

	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/model"
)

// documentRepository 实现
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建 Repository 实例
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 创建文档
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// Get 按 ID 获取文档
func (r *documentRepository) Get(id uint) (*model.Document, error) {
	var doc model.Document
	result := r.db.First(&doc, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &doc, nil
}

// GetByRefKey 按对外引用标识获取文档
func (r *documentRepository) GetByRefKey(refKey string) (*model.Document, error) {
	var doc model.Document
	result := r.db.Where("ref_key = ?", refKey).First(&doc)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &doc, nil
}

// GetByTemplate 获取模板下全部文档
func (r *documentRepository) GetByTemplate(templateID uint) ([]model.Document, error) {
	var docs []model.Document
	result := r.db.Where("doc_template_id = ?", templateID).Order("id ASC").Find(&docs)
	return docs, result.Error
}

// GetByStatus 按状态获取文档（如查询全部待复核文档）
func (r *documentRepository) GetByStatus(status string) ([]model.Document, error) {
	var docs []model.Document
	result := r.db.Where("status = ?", status).Order("id ASC").Find(&docs)
	return docs, result.Error
}

// SaveWithVersion 乐观并发写入
// 提交条件：数据库中 version 仍等于 expectedVersion；命中则整体更新并 version+1
// 未命中说明期间有别的提交，返回 ErrVersionConflict，由调用方整体重试
func (r *documentRepository) SaveWithVersion(doc *model.Document, expectedVersion int) error {
	doc.Version = expectedVersion + 1
	result := r.db.Model(&model.Document{}).
		Where("id = ? AND version = ?", doc.ID, expectedVersion).
		Select("content", "params", "status", "current_clause_order", "version", "error_msg", "updated_at").
		Updates(doc)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		doc.Version = expectedVersion
		klog.V(6).Infof("文档乐观写入冲突: docID=%d, expectedVersion=%d", doc.ID, expectedVersion)
		return ErrVersionConflict
	}
	return nil
}

// UpdateStatus 条件更新状态：仅当当前状态为 from 时改为 to
// 状态翻转同时递增 version，让正在进行中的乐观提交落空，
// 否则推进中的 commit 会把 status 原样写回、把这次翻转覆盖掉
func (r *documentRepository) UpdateStatus(id uint, from, to string) error {
	result := r.db.Model(&model.Document{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "version": gorm.Expr("version + 1")})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Delete 删除文档（仅限用户显式操作）
func (r *documentRepository) Delete(id uint) error {
	return r.db.Delete(&model.Document{}, id).Error
}
