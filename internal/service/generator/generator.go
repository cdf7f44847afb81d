package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/pkg/llm"
	"github.com/clauseforge/backend/internal/utils"
)

// GenerationError 生成失败
// Transient=true 表示瞬时失败（限流/超时/服务端错误），调用方可重试且不改变文档状态；
// Transient=false 表示永久失败，文档应转入 failed
type GenerationError struct {
	Transient bool
	RequestID string
	Err       error
}

func (e *GenerationError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("generation failed (%s, request=%s): %v", kind, e.RequestID, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsTransient 判断错误是否为可重试的瞬时生成失败
func IsTransient(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr) && genErr.Transient
}

// ContentGenerator 内容生成边界
// 引擎只依赖这一个函数调用，底层传输方式不做约束
type ContentGenerator interface {
	Generate(ctx context.Context, systemPrompt string, docCtx *domain.Context) (string, error)
}

// llmGenerator 基于 LLM 客户端的实现
type llmGenerator struct {
	client *llm.Client
}

// New 创建内容生成适配器
func New(client *llm.Client) ContentGenerator {
	return &llmGenerator{client: client}
}

// Generate 调用起草后端生成条款文本
func (g *llmGenerator) Generate(ctx context.Context, systemPrompt string, docCtx *domain.Context) (string, error) {
	requestID := uuid.NewString()

	if strings.TrimSpace(systemPrompt) == "" {
		return "", &GenerationError{
			RequestID: requestID,
			Err:       fmt.Errorf("empty system prompt"),
		}
	}

	messages := []llm.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(docCtx)},
	}

	klog.V(6).Infof("开始生成条款内容: request=%s, promptLen=%d", requestID, len(systemPrompt))

	text, err := g.client.Chat(ctx, messages)
	if err != nil {
		classified := classify(err)
		classified.RequestID = requestID
		klog.Warningf("条款内容生成失败: request=%s, transient=%v, err=%v",
			requestID, classified.Transient, err)
		return "", classified
	}

	// 起草后端偶尔把正文包在 Markdown 代码块里，入库前剥掉围栏
	text = utils.ExtractMarkdown(text)

	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{
			Transient: true, // 空响应多为后端抖动，按瞬时失败处理
			RequestID: requestID,
			Err:       fmt.Errorf("empty completion"),
		}
	}

	klog.V(6).Infof("条款内容生成完成: request=%s, textLen=%d", requestID, len(text))
	return text, nil
}

// classify 区分瞬时与永久失败
// 超时/取消/网络错误/限流/服务端错误 -> 瞬时；其余 4xx -> 永久
func classify(err error) *GenerationError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &GenerationError{Transient: true, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &GenerationError{Transient: true, Err: err}
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return &GenerationError{Transient: true, Err: err}
		default:
			return &GenerationError{Transient: false, Err: err}
		}
	}

	// 无法判定的错误按瞬时处理，避免把可恢复的故障误判成终态
	return &GenerationError{Transient: true, Err: err}
}

// buildUserPrompt 把累积上下文整理为用户消息
// 包含调用方参数与此前各条款的已生成文本，供起草后端参考
func buildUserPrompt(docCtx *domain.Context) string {
	var b strings.Builder
	b.WriteString("Draft the clause described by the system instructions.\n")

	if len(docCtx.Params) > 0 {
		b.WriteString("\nDocument parameters:\n")
		for _, key := range domain.SortedKeys(docCtx.Params) {
			fmt.Fprintf(&b, "- %s: %v\n", key, docCtx.Params[key])
		}
	}

	records := docCtx.Content.OrderedRecords()
	if len(records) > 0 {
		b.WriteString("\nPreviously drafted sections:\n")
		for _, rec := range records {
			if rec.Skipped {
				continue
			}
			fmt.Fprintf(&b, "\n## %s\n%s\n", rec.SectionName, rec.Text)
		}
	}

	return b.String()
}
