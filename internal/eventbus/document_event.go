package eventbus

import "github.com/clauseforge/backend/internal/domain"

// DocumentEventType 文档事件类型
type DocumentEventType string

const (
	DocumentEventClauseAdvanced DocumentEventType = "ClauseAdvanced" // 一个条款提交完成（含跳过）
	DocumentEventCompleted      DocumentEventType = "Completed"      // 文档全部条款处理完毕
	DocumentEventFailed         DocumentEventType = "Failed"         // 文档永久失败
)

// DocumentEvent 文档事件
// 推进操作在提交之后发布，订阅方看到的是已持久化的状态
type DocumentEvent struct {
	Type        DocumentEventType
	DocumentID  uint
	ClauseOrder int
	SectionName string
	VariantKey  string
	Skipped     bool
	AlertCount  int
	MaxSeverity domain.Severity
}

type DocumentEventHandler = Handler[DocumentEvent]
type DocumentEventBus = Bus[DocumentEventType, DocumentEvent]

// NewDocumentEventBus 创建文档事件总线
func NewDocumentEventBus() *DocumentEventBus {
	return NewBus[DocumentEventType, DocumentEvent]()
}
