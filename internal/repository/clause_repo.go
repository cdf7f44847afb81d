package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/clauseforge/backend/internal/model"
)

// clauseRepository 实现
type clauseRepository struct {
	db *gorm.DB
}

// NewClauseRepository 创建 Repository 实例
func NewClauseRepository(db *gorm.DB) ClauseRepository {
	return &clauseRepository{db: db}
}

// Create 创建条款，order_num 冲突返回 ErrDuplicateOrder
func (r *clauseRepository) Create(clause *model.Clause) error {
	err := r.db.Create(clause).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	return err
}

// Get 按 ID 获取条款
func (r *clauseRepository) Get(id uint) (*model.Clause, error) {
	var clause model.Clause
	result := r.db.First(&clause, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &clause, nil
}

// GetByTemplate 获取模板下全部条款，按 order_num 升序
func (r *clauseRepository) GetByTemplate(templateID uint) ([]model.Clause, error) {
	var clauses []model.Clause
	result := r.db.Where("doc_template_id = ?", templateID).
		Order("order_num ASC").
		Find(&clauses)
	return clauses, result.Error
}

// GetAt 取指定 order_num 的条款
func (r *clauseRepository) GetAt(templateID uint, orderNum int) (*model.Clause, error) {
	var clause model.Clause
	result := r.db.Where("doc_template_id = ? AND order_num = ?", templateID, orderNum).
		First(&clause)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &clause, nil
}

// NextAfter 取 order_num 大于给定值的最小条款
func (r *clauseRepository) NextAfter(templateID uint, orderNum int) (*model.Clause, error) {
	var clause model.Clause
	result := r.db.Where("doc_template_id = ? AND order_num > ?", templateID, orderNum).
		Order("order_num ASC").
		First(&clause)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &clause, nil
}

// Save 更新条款，order_num 冲突返回 ErrDuplicateOrder
func (r *clauseRepository) Save(clause *model.Clause) error {
	err := r.db.Save(clause).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	return err
}

// Delete 删除条款
func (r *clauseRepository) Delete(id uint) error {
	return r.db.Delete(&model.Clause{}, id).Error
}

// isUniqueViolation 判断是否唯一约束冲突
// sqlite 与 mysql 的报错文本不同，统一按关键字匹配
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
