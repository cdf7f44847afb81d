package model

import "time"

// DocTemplate 文档模板表
// 模板持有一组有序条款，删除模板会级联删除条款与其下所有文档实例
// 级联删除是破坏性操作，调用方必须显式触发
type DocTemplate struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Name        string     `json:"name" gorm:"size:255;not null;uniqueIndex"`
	Description string     `json:"description" gorm:"size:1000"`
	IsSystem    bool       `json:"is_system" gorm:"default:false"` // 是否系统预置
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	Clauses     []Clause   `json:"clauses,omitempty" gorm:"foreignKey:DocTemplateID;constraint:OnDelete:CASCADE;"`
	Documents   []Document `json:"documents,omitempty" gorm:"foreignKey:DocTemplateID;constraint:OnDelete:CASCADE;"`
}

// TableName 指定表名
func (DocTemplate) TableName() string {
	return "doc_templates"
}
