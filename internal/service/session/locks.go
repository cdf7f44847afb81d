package session

import "sync"

// docLocks 进程内的文档级互斥锁，保证同一文档同一时刻只有一个推进操作
// 跨进程的并发由文档的 version 字段做最终裁决
type docLocks struct {
	mu     sync.Mutex
	locked map[uint]struct{}
}

func newDocLocks() *docLocks {
	return &docLocks{locked: make(map[uint]struct{})}
}

// TryLock 尝试占用文档，已被占用时返回 false
func (l *docLocks) TryLock(docID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.locked[docID]; busy {
		return false
	}
	l.locked[docID] = struct{}{}
	return true
}

// Unlock 释放文档
func (l *docLocks) Unlock(docID uint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, docID)
}
