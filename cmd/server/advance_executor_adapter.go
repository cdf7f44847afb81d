package main

import (
	"context"
	"errors"

	"github.com/clauseforge/backend/internal/service/generator"
	"github.com/clauseforge/backend/internal/service/session"
)

// advanceExecutorAdapter 将文档会话服务适配为AdvanceExecutor接口
// 避免orchestrator和session之间的循环依赖
type advanceExecutorAdapter struct {
	session *session.Session
}

// RunDocument 把文档推进到终态或不可推进为止
// 实现orchestrator.AdvanceExecutor接口
func (a *advanceExecutorAdapter) RunDocument(ctx context.Context, documentID uint) error {
	_, err := a.session.AdvanceToCompletion(ctx, documentID)
	return err
}

// retryableAdvanceError 瞬时生成失败与并发冲突值得重试
// 非法状态（暂停/终态/待审查）与永久失败不再重试
func retryableAdvanceError(err error) bool {
	return generator.IsTransient(err) || errors.Is(err, session.ErrConcurrencyConflict)
}
