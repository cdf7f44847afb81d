package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/clauseforge/backend/internal/model"
)

// templateRepository 实现
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建 Repository 实例
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// Create 创建模板
func (r *templateRepository) Create(tpl *model.DocTemplate) error {
	return r.db.Create(tpl).Error
}

// List 获取全部模板（不含条款）
func (r *templateRepository) List() ([]model.DocTemplate, error) {
	var templates []model.DocTemplate
	result := r.db.Order("id ASC").Find(&templates)
	return templates, result.Error
}

// Get 按 ID 获取模板
func (r *templateRepository) Get(id uint) (*model.DocTemplate, error) {
	var tpl model.DocTemplate
	result := r.db.First(&tpl, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &tpl, nil
}

// GetWithClauses 获取模板及其按 order_num 升序排列的条款
// 顺序永远来自 order_num 列，不依赖存储迭代顺序
func (r *templateRepository) GetWithClauses(id uint) (*model.DocTemplate, error) {
	var tpl model.DocTemplate
	result := r.db.Preload("Clauses", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_num ASC")
	}).First(&tpl, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &tpl, nil
}

// GetByName 按唯一名称获取模板
func (r *templateRepository) GetByName(name string) (*model.DocTemplate, error) {
	var tpl model.DocTemplate
	result := r.db.Where("name = ?", name).First(&tpl)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &tpl, nil
}

// Save 更新模板
func (r *templateRepository) Save(tpl *model.DocTemplate) error {
	return r.db.Save(tpl).Error
}

// Delete 删除模板，级联删除条款与文档（破坏性操作）
func (r *templateRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		// 纯 Go sqlite 驱动默认不开启外键约束，级联手工执行
		if err := tx.Where("doc_template_id = ?", id).Delete(&model.Clause{}).Error; err != nil {
			return err
		}
		if err := tx.Where("doc_template_id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.DocTemplate{}, id).Error
	})
}
