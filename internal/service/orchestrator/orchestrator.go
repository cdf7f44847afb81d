package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// -----------------------------
// Job 定义
// -----------------------------
type Job struct {
	DocumentID uint
	EnqueuedAt time.Time
	RetryCount int
	MaxRetries int
	Timeout    time.Duration
}

// -----------------------------
// AdvanceExecutor 接口
// -----------------------------
// RunDocument 把文档推进到终态或不可推进为止
type AdvanceExecutor interface {
	RunDocument(ctx context.Context, documentID uint) error
}

// RetryPredicate 判断执行错误是否值得重试
// 瞬时生成失败、乐观并发冲突应重试；永久失败与非法状态不应重试
type RetryPredicate func(err error) bool

// -----------------------------
// Orchestrator
// -----------------------------
type Orchestrator struct {
	jobQueue    *jobQueue
	retryQueue  *jobQueue
	retryTicker *time.Ticker

	pool *ants.Pool

	executor  AdvanceExecutor
	retryable RetryPredicate

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	activeCancellations map[uint]context.CancelFunc
	cancelMutex         sync.Mutex
}

// -----------------------------
// 错误定义
// -----------------------------
var (
	ErrOrchestratorStopped = errors.New("orchestrator is stopped")
	ErrQueueFull           = errors.New("job queue is full")
)

// NewAdvanceJob
// 说明：创建一个文档推进任务，初始化重试次数与超时
// 参数：documentID 文档ID
// 返回：*Job 初始化后的任务对象
func NewAdvanceJob(documentID uint) *Job {
	return &Job{
		DocumentID: documentID,
		EnqueuedAt: time.Now(),
		RetryCount: 0,
		MaxRetries: 5,
		Timeout:    10 * time.Minute,
	}
}

// -----------------------------
// 构造函数
// -----------------------------
func NewOrchestrator(maxWorkers int, executor AdvanceExecutor, retryable RetryPredicate) (*Orchestrator, error) {
	ctx, cancel := context.WithCancel(context.Background())

	jobQ := newJobQueue(120)
	retryQ := newJobQueue(120)

	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(1000),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		klog.Errorf("ants pool initialization failed: %v", err)
		cancel()
		return nil, err
	}

	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	return &Orchestrator{
		jobQueue:            jobQ,
		retryQueue:          retryQ,
		retryTicker:         time.NewTicker(500 * time.Millisecond),
		pool:                pool,
		activeCancellations: make(map[uint]context.CancelFunc),
		executor:            executor,
		retryable:           retryable,
		ctx:                 ctx,
		cancel:              cancel,
	}, nil
}

// -----------------------------
// 启动
// -----------------------------
func (o *Orchestrator) Start() {
	go o.dispatchLoop()
	go o.processRetryQueue()
}

// -----------------------------
// 停止
// -----------------------------
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		klog.V(6).Infof("Orchestrator stopping...")

		// 1. 停止接收新任务，关闭队列
		o.cancel()
		o.jobQueue.Close()
		o.retryQueue.Close()

		// 2. 等待队列中待执行的任务全部分发完毕
		for {
			if o.jobQueue.Len() == 0 && o.retryQueue.Len() == 0 {
				break
			}
			time.Sleep(100 * time.Millisecond)
			klog.V(6).Infof("Waiting for queues to empty: main=%d, retry=%d", o.jobQueue.Len(), o.retryQueue.Len())
		}

		// 3. 等待正在执行的推进任务完成
		runningTasks := o.pool.Running()
		if runningTasks > 0 {
			klog.V(6).Infof("Waiting for %d running jobs to complete (timeout: 12min)", runningTasks)
		}

		// 使用 ReleaseTimeout 等待，覆盖单个任务的10分钟超时
		timeout := 12 * time.Minute
		rErr := o.pool.ReleaseTimeout(timeout)

		if rErr == nil {
			klog.V(6).Infof("All running jobs completed before timeout")
		} else {
			klog.Warningf("Timeout after %v: some running jobs may be forced to stop", timeout)
		}

		klog.V(6).Infof("Orchestrator stopped completely")
	})
}

// -----------------------------
// 入队任务
// -----------------------------
func (o *Orchestrator) EnqueueJob(job *Job) error {
	select {
	case <-o.ctx.Done():
		return ErrOrchestratorStopped
	default:
	}

	if err := o.jobQueue.Enqueue(job); err != nil {
		if errors.Is(err, ErrQueueFull) {
			klog.Warningf("Job queue full: documentID=%d", job.DocumentID)
		}
		return err
	}
	klog.V(6).Infof("Job enqueued: documentID=%d", job.DocumentID)
	return nil
}

func (o *Orchestrator) EnqueueBatch(jobs []*Job) error {
	var failedJobs []*Job
	for _, job := range jobs {
		if err := o.EnqueueJob(job); err != nil {
			klog.Warningf("Batch enqueue failed for documentID=%d: %v", job.DocumentID, err)
			failedJobs = append(failedJobs, job)
		}
	}
	if len(failedJobs) > 0 {
		return fmt.Errorf("failed to enqueue %d jobs (total %d)", len(failedJobs), len(jobs))
	}
	return nil
}

// -----------------------------
// 取消任务
// -----------------------------
func (o *Orchestrator) registerCancel(documentID uint, cancel context.CancelFunc) {
	o.cancelMutex.Lock()
	defer o.cancelMutex.Unlock()
	o.activeCancellations[documentID] = cancel
}

func (o *Orchestrator) unregisterCancel(documentID uint) {
	o.cancelMutex.Lock()
	defer o.cancelMutex.Unlock()
	delete(o.activeCancellations, documentID)
}

// CancelJob 取消正在执行的文档推进
// 推进在条款边界响应取消：已提交的条款保持不变
func (o *Orchestrator) CancelJob(documentID uint) bool {
	o.cancelMutex.Lock()
	cancel, ok := o.activeCancellations[documentID]
	o.cancelMutex.Unlock()
	if !ok {
		return false
	}

	klog.V(6).Infof("Cancelling job: documentID=%d", documentID)
	cancel()
	return true
}

// -----------------------------
// Dispatch Loop
// -----------------------------
func (o *Orchestrator) dispatchLoop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		default:
			job, ok := o.jobQueue.Dequeue()
			if !ok {
				continue
			}
			o.tryDispatch(job)
		}
	}
}

// -----------------------------
// Retry Queue Loop
// -----------------------------
func (o *Orchestrator) processRetryQueue() {
	defer o.retryTicker.Stop()
	// 增加协程级Panic防护，避免协程退出
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Retry queue loop panic recovered: %v", r)
		}
	}()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.retryTicker.C:
			for i := 0; i < 10; i++ {
				job, ok := o.retryQueue.Dequeue()
				if !ok {
					break
				}
				// 单个任务Panic不影响整个循环
				func() {
					defer func() {
						if r := recover(); r != nil {
							klog.Errorf("Retry dispatch panic: documentID=%d, err=%v",
								job.DocumentID, r)
						}
					}()
					o.tryDispatch(job)
				}()
			}
		}
	}
}

// -----------------------------
// Try Dispatch
// -----------------------------
// tryDispatch 只负责分发到协程池，提交失败时按重试上限重试入队
func (o *Orchestrator) tryDispatch(job *Job) {
	if job.MaxRetries <= 0 || job.RetryCount >= job.MaxRetries {
		klog.Warningf("任务重试已达上限，放弃入队: documentID=%d, retry=%d/%d",
			job.DocumentID, job.RetryCount, job.MaxRetries)
		return
	}
	if err := o.pool.Submit(func() {
		o.executeJob(job)
	}); err == nil {
		return
	} else {
		klog.Errorf("提交任务到协程池失败: documentID=%d, err=%v", job.DocumentID, err)
	}

	job.RetryCount++
	if err := o.retryQueue.Enqueue(job); err != nil {
		klog.Errorf("任务重试入队失败: documentID=%d, err=%v", job.DocumentID, err)
	}
}

// executeJob 统一控制重试
// 只有可重试的错误（瞬时生成失败/并发冲突）进入退避重试；
// 其余错误由推进逻辑自己落库处理，这里直接结束
func (o *Orchestrator) executeJob(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Job panic recovered: documentID=%d, err=%v", job.DocumentID, r)
			o.unregisterCancel(job.DocumentID)
		}
	}()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(o.ctx, timeout)
	defer cancel()
	runCtx, manualCancel := context.WithCancel(ctx)
	defer manualCancel()

	o.registerCancel(job.DocumentID, manualCancel)
	defer o.unregisterCancel(job.DocumentID)

	for i := job.RetryCount; i < job.MaxRetries; i++ {
		job.RetryCount = i

		err := o.executor.RunDocument(runCtx, job.DocumentID)
		if err == nil {
			klog.V(6).Infof("Job completed: documentID=%d", job.DocumentID)
			return
		}
		if !o.retryable(err) {
			klog.Warningf("任务结束且不可重试: documentID=%d, err=%v", job.DocumentID, err)
			return
		}

		backoff := time.Second << i
		if backoff > time.Minute {
			backoff = time.Minute
		}

		klog.Warningf("任务重试失败: documentID=%d, retry=%d/%d, err=%v, backoff=%v",
			job.DocumentID, i+1, job.MaxRetries, err, backoff)

		select {
		case <-runCtx.Done():
			klog.Warningf("任务被取消或超时: documentID=%d", job.DocumentID)
			return
		case <-time.After(backoff):
		}
	}

	klog.Errorf("任务执行失败且超过重试上限: documentID=%d", job.DocumentID)
}

// -----------------------------
// Queue Status
// -----------------------------
type QueueStatus struct {
	QueueLength   int `json:"queue_length"`
	ActiveWorkers int `json:"active_workers"`
}

func (o *Orchestrator) GetQueueStatus() *QueueStatus {
	return &QueueStatus{
		QueueLength:   o.jobQueue.Len(),
		ActiveWorkers: o.pool.Running(),
	}
}

// -----------------------------
// JobQueue (Ring Buffer) + Reject New
// -----------------------------
type jobQueue struct {
	maxSize int
	items   []*Job
	mutex   sync.Mutex
	cond    *sync.Cond
	closed  bool
}

func newJobQueue(maxSize int) *jobQueue {
	q := &jobQueue{
		maxSize: maxSize,
		items:   make([]*Job, 0, maxSize),
	}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *jobQueue) Enqueue(job *Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrOrchestratorStopped
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrQueueFull // Reject New
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return nil
}

func (q *jobQueue) Dequeue() (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

func (q *jobQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

func (q *jobQueue) Close() {
	q.mutex.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mutex.Unlock()
}

// -------------------- Global Orchestrator --------------------
var (
	globalOrchestrator *Orchestrator
	orchestratorOnce   sync.Once
)

func InitGlobalOrchestrator(maxWorkers int, executor AdvanceExecutor, retryable RetryPredicate) error {
	var initErr error
	orchestratorOnce.Do(func() {
		orch, err := NewOrchestrator(maxWorkers, executor, retryable)
		if err != nil {
			initErr = err
			return
		}
		globalOrchestrator = orch
		globalOrchestrator.Start()
		klog.V(6).Infof("Global orchestrator initialized: maxWorkers=%d", maxWorkers)
	})
	return initErr
}

func GetGlobalOrchestrator() *Orchestrator {
	return globalOrchestrator
}

func ShutdownGlobalOrchestrator() {
	if globalOrchestrator != nil {
		globalOrchestrator.Stop()
		klog.V(6).Infof("Global orchestrator shutdown")
	}
}
