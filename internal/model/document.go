package model

import (
	"time"

	"gorm.io/datatypes"

	"github.com/clauseforge/backend/internal/domain"
)

// 文档状态
const (
	DocStatusInProgress  = "in_progress"  // 正在逐条款推进
	DocStatusCompleted   = "completed"    // 全部条款处理完毕（终态）
	DocStatusFailed      = "failed"       // 生成永久失败（终态）
	DocStatusNeedsReview = "needs_review" // 高危告警待人工确认
	DocStatusPaused      = "paused"       // 用户主动暂停
)

// Document 文档实例表
// content 由本文档独占，只有推进操作会写入
// version 用于乐观并发控制，每次提交 +1
type Document struct {
	ID                 uint                                       `json:"id" gorm:"primaryKey"`
	RefKey             string                                     `json:"ref_key" gorm:"size:64;uniqueIndex"` // 对外引用标识（UUID）
	DocTemplateID      uint                                       `json:"doc_template_id" gorm:"index;not null"`
	Content            datatypes.JSONType[domain.DocumentContent] `json:"content"`
	Params             datatypes.JSONType[map[string]any]         `json:"params"` // 调用方提供的上下文参数
	Status             string                                     `json:"status" gorm:"size:20;index;default:in_progress"`
	CurrentClauseOrder int                                        `json:"current_clause_order" gorm:"default:1"`
	Version            int                                        `json:"version" gorm:"default:0"`
	ErrorMsg           string                                     `json:"error_msg" gorm:"size:2000"`
	CreatedAt          time.Time                                  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time                                  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Document) TableName() string {
	return "documents"
}

// BuildContext 构建当前文档的处理上下文
func (d *Document) BuildContext() *domain.Context {
	return domain.NewContext(d.Params.Data(), d.Content.Data())
}

// IsTerminal 判断文档是否处于终态
func (d *Document) IsTerminal() bool {
	return d.Status == DocStatusCompleted || d.Status == DocStatusFailed
}
