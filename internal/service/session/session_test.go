package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/eventbus"
	"github.com/clauseforge/backend/internal/model"
	"github.com/clauseforge/backend/internal/repository"
	"github.com/clauseforge/backend/internal/service/generator"
)

// fakeGenerator 可编程的生成器桩
type fakeGenerator struct {
	generate func(ctx context.Context, systemPrompt string, docCtx *domain.Context) (string, error)
	calls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt string, docCtx *domain.Context) (string, error) {
	f.calls++
	if f.generate != nil {
		return f.generate(ctx, systemPrompt, docCtx)
	}
	return "generated text for: " + systemPrompt, nil
}

// flakyDocRepo 包装真实 Repository，可注入一次性的提交失败
type flakyDocRepo struct {
	repository.DocumentRepository
	saveErr error
}

func (r *flakyDocRepo) SaveWithVersion(doc *model.Document, expectedVersion int) error {
	if r.saveErr != nil {
		err := r.saveErr
		r.saveErr = nil
		return err
	}
	return r.DocumentRepository.SaveWithVersion(doc, expectedVersion)
}

type testEnv struct {
	db         *gorm.DB
	docRepo    repository.DocumentRepository
	clauseRepo repository.ClauseRepository
	gen        *fakeGenerator
	bus        *eventbus.DocumentEventBus
	session    *Session
	template   *model.DocTemplate
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.DocTemplate{}, &model.Clause{}, &model.Document{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tpl := &model.DocTemplate{
		Name: "Mutual NDA",
		Clauses: []model.Clause{
			{
				OrderNum:     1,
				SectionName:  "Introduction",
				Type:         domain.ClauseMandatory,
				SystemPrompt: "draft intro",
				TypeAlternatives: datatypes.NewJSONType(map[string]domain.AlternativeSpec{
					"short_form": {
						When:         domain.Predicate{Field: "style", Op: domain.OpEquals, Value: "short"},
						SystemPrompt: "draft short intro",
					},
				}),
			},
			{
				OrderNum:    2,
				SectionName: "Confidentiality",
				Type:        domain.ClauseOptional,
				IncludeWhen: datatypes.NewJSONType(&domain.Predicate{
					Field: "has_nda_flag", Op: domain.OpTruthy,
				}),
				SystemPrompt: "draft confidentiality",
				AlertConditions: datatypes.NewJSONType(map[string]domain.AlertCondition{
					"unlimited_term": {
						ConditionSpec: domain.ConditionSpec{
							Type:  domain.CondForbiddenWords,
							Words: []string{"perpetual"},
						},
						Severity: domain.SeverityCritical,
						Message:  "no unlimited term",
					},
				}),
			},
			{
				OrderNum:     4, // 顺序留空隙
				SectionName:  "Signatures",
				Type:         domain.ClauseMandatory,
				SystemPrompt: "draft signatures",
			},
		},
	}
	if err := repository.NewTemplateRepository(db).Create(tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}

	gen := &fakeGenerator{}
	bus := eventbus.NewDocumentEventBus()
	docRepo := repository.NewDocumentRepository(db)
	clauseRepo := repository.NewClauseRepository(db)

	return &testEnv{
		db:         db,
		docRepo:    docRepo,
		clauseRepo: clauseRepo,
		gen:        gen,
		bus:        bus,
		session:    New(docRepo, clauseRepo, gen, bus),
		template:   tpl,
	}
}

func (e *testEnv) newDocument(t *testing.T, params map[string]any) *model.Document {
	t.Helper()
	doc := &model.Document{
		RefKey:             fmt.Sprintf("doc-%d", len(params)),
		DocTemplateID:      e.template.ID,
		Content:            datatypes.NewJSONType(domain.DocumentContent{}),
		Params:             datatypes.NewJSONType(params),
		Status:             model.DocStatusInProgress,
		CurrentClauseOrder: 1,
	}
	if err := e.docRepo.Create(doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

// 完整遍历：可选条款不纳入时记为跳过，游标单调推进，最终转入 completed
func TestAdvanceFullTraversalWithSkip(t *testing.T) {
	env := setupEnv(t)
	doc := env.newDocument(t, map[string]any{"has_nda_flag": false, "style": "long"})

	var events []eventbus.DocumentEvent
	env.bus.Subscribe(eventbus.DocumentEventClauseAdvanced, func(ctx context.Context, e eventbus.DocumentEvent) error {
		events = append(events, e)
		return nil
	})

	ctx := context.Background()

	// 条款1：默认变体
	result, err := env.session.Advance(ctx, doc.ID)
	if err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	if result.ClauseOrder != 1 || result.Skipped || result.VariantKey != "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Document.CurrentClauseOrder != 2 {
		t.Fatalf("cursor should be 2, got %d", result.Document.CurrentClauseOrder)
	}

	// 条款2：不纳入，跳过
	result, err = env.session.Advance(ctx, doc.ID)
	if err != nil {
		t.Fatalf("advance 2: %v", err)
	}
	if !result.Skipped {
		t.Fatalf("clause 2 should be skipped")
	}
	if env.gen.calls != 1 {
		t.Fatalf("skipped clause must not hit the generator, calls=%d", env.gen.calls)
	}

	// 条款4：跨过空隙
	result, err = env.session.Advance(ctx, doc.ID)
	if err != nil {
		t.Fatalf("advance 3: %v", err)
	}
	if result.ClauseOrder != 4 || result.SectionName != "Signatures" {
		t.Fatalf("expected clause 4 after gap, got %+v", result)
	}

	// 没有剩余条款，转入 completed
	result, err = env.session.Advance(ctx, doc.ID)
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if !result.Completed || result.Document.Status != model.DocStatusCompleted {
		t.Fatalf("expected completion, got %+v", result.Document)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 ClauseAdvanced events, got %d", len(events))
	}
	reloaded, _ := env.docRepo.Get(doc.ID)
	if reloaded.Version != 4 {
		t.Fatalf("expected 4 commits, version=%d", reloaded.Version)
	}
	rec, ok := reloaded.Content.Data().Record(2)
	if !ok || !rec.Skipped {
		t.Fatalf("skip record missing: %+v", rec)
	}

	// completed 同样是终态，不可再推进
	if _, err := env.session.Advance(ctx, doc.ID); !IsInvalidState(err) {
		t.Fatalf("expected InvalidStateError on completed document, got %v", err)
	}
}

// 变体按谓词选择并记录在条款记录里
func TestAdvanceSelectsVariant(t *testing.T) {
	env := setupEnv(t)
	doc := env.newDocument(t, map[string]any{"has_nda_flag": true, "style": "short"})

	result, err := env.session.Advance(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if result.VariantKey != "short_form" {
		t.Fatalf("expected short_form variant, got %q", result.VariantKey)
	}
	rec, _ := result.Document.Content.Data().Record(1)
	if rec.VariantKey != "short_form" {
		t.Fatalf("variant not persisted: %+v", rec)
	}
}

// 瞬时生成失败不改变文档状态，重试后原位续跑
func TestAdvanceTransientFailureLeavesStateUnchanged(t *testing.T) {
	env := setupEnv(t)
	doc := env.newDocument(t, map[string]any{"has_nda_flag": true, "style": "long"})

	env.gen.generate = func(ctx context.Context, prompt string, docCtx *domain.Context) (string, error) {
		return "", &generator.GenerationError{Transient: true, Err: errors.New("rate limited")}
	}

	_, err := env.session.Advance(context.Background(), doc.ID)
	if !generator.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}

	reloaded, _ := env.docRepo.Get(doc.ID)
	if reloaded.Status != model.DocStatusInProgress || reloaded.CurrentClauseOrder != 1 || reloaded.Version != 0 {
		t.Fatalf("transient failure must not change state: %+v", reloaded)
	}
	if len(reloaded.Content.Data()) != 0 {
		t.Fatalf("transient failure must not write content")
	}

	// 恢复后重试成功
	env.gen.generate = nil
	result, err := env.session.Advance(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.ClauseOrder != 1 {
		t.Fatalf("retry should process the same clause, got %d", result.ClauseOrder)
	}
}

// 永久生成失败把文档转入 failed 并记录原因
func TestAdvancePermanentFailureMarksFailed(t *testing.T) {
	env := setupEnv(t)
	doc := env.newDocument(t, map[string]any{"has_nda_flag": true, "style": "long"})

	env.gen.generate = func(ctx context.Context, prompt string, docCtx *domain.Context) (string, error) {
		return "", &generator.GenerationError{Transient: false, Err: errors.New("invalid request")}
	}

	var failedEvents int
	env.bus.Subscribe(eventbus.DocumentEventFailed, func(ctx context.Context, e eventbus.DocumentEvent) error {
		failedEvents++
		return nil
	})

	_, err := env.session.Advance(context.Background(), doc.ID)
	if err == nil || generator.IsTransient(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}

	reloaded, _ := env.docRepo.Get(doc.ID)
	if reloaded.Status != model.DocStatusFailed {
		t.Fatalf("expected failed, got %s", reloaded.Status)
	}
	if reloaded.ErrorMsg == "" {
		t.Fatalf("error message should be persisted")
	}
	if failedEvents != 1 {
		t.Fatalf("expected 1 Failed event, got %d", failedEvents)
	}

	// 终态不可再推进
	_, err = env.session.Advance(context.Background(), doc.ID)
	if !IsInvalidState(err) {
		t.Fatalf("expected InvalidStateError on failed document, got %v", err)
	}
}

// 解析失败（谓词引用未知字段）属于配置错误，文档转入 failed
func TestAdvanceResolutionErrorMarksFailed(t *testing.T) {
	env := setupEnv(t)
	// has_nda_flag 缺失：include_when 谓词评估报 UnknownFieldError
	doc := env.newDocument(t, map[string]any{"style": "long"})

	_, err := env.session.Advance(context.Background(), doc.ID) // 条款1 正常
	if err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	_, err = env.session.Advance(context.Background(), doc.ID) // 条款2 解析失败
	if err == nil {
		t.Fatalf("expected resolution error")
	}
	var fieldErr *domain.UnknownFieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected UnknownFieldError cause, got %v", err)
	}

	reloaded, _ := env.docRepo.Get(doc.ID)
	if reloaded.Status != model.DocStatusFailed {
		t.Fatalf("expected failed, got %s", reloaded.Status)
	}
}

// 提交冲突返回 ErrConcurrencyConflict，整次推进无任何落库效果
func TestAdvanceConcurrencyConflict(t *testing.T) {
	env := setupEnv(t)
	doc := env.newDocument(t, map[string]any{"has_nda_flag": true, "style": "long"})

	flaky := &flakyDocRepo{DocumentRepository: env.docRepo, saveErr: repository.ErrVersionConflict}
	sess := New(flaky, env.clauseRepo, env.gen, env.bus)

	var advancedEvents int
	env.bus.Subscribe(eventbus.DocumentEventClauseAdvanced, func(ctx context.Context, e eventbus.DocumentEvent) error {
		advancedEvents++
		return nil
	})

	_, err := sess.Advance(context.Background(), doc.ID)
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if advancedEvents != 0 {
		t.Fatalf("conflicting commit must not publish events")
	}

	reloaded, _ := env.docRepo.Get(doc.ID)
	if reloaded.CurrentClauseOrder != 1 || len(reloaded.Content.Data()) != 0 {
		t.Fatalf("conflicting commit must not persist anything: %+v", reloaded)
	}

	// 冲突后整体重试成功
	result, err := sess.Advance(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("retry after conflict: %v", err)
	}
	if result.ClauseOrder != 1 {
		t.Fatalf("unexpected clause: %d", result.ClauseOrder)
	}
}

// 暂停后拒绝推进，恢复后继续
func TestPauseAndResume(t *testing.T) {
	env := setupEnv(t)
	doc := env.newDocument(t, map[string]any{"has_nda_flag": true, "style": "long"})
	ctx := context.Background()

	if _, err := env.session.Advance(ctx, doc.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}

	paused, err := env.session.Pause(ctx, doc.ID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != model.DocStatusPaused {
		t.Fatalf("expected paused, got %s", paused.Status)
	}

	if _, err := env.session.Advance(ctx, doc.ID); !IsInvalidState(err) {
		t.Fatalf("paused document must not advance, got %v", err)
	}
	// 重复暂停同样被拒绝
	if _, err := env.session.Pause(ctx, doc.ID); !IsInvalidState(err) {
		t.Fatalf("expected InvalidStateError on double pause, got %v", err)
	}

	resumed, err := env.session.Resume(ctx, doc.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != model.DocStatusInProgress {
		t.Fatalf("expected in_progress, got %s", resumed.Status)
	}

	result, err := env.session.Advance(ctx, doc.ID)
	if err != nil {
		t.Fatalf("advance after resume: %v", err)
	}
	// 从中断位置继续，不重做已提交的条款
	if result.ClauseOrder != 2 {
		t.Fatalf("expected clause 2 after resume, got %d", result.ClauseOrder)
	}
}

// 生成阶段并发暂停：状态翻转递增 version，推进方的提交落空而不是把暂停写回
func TestPauseDuringAdvanceIsNotOverwritten(t *testing.T) {
	env := setupEnv(t)
	doc := env.newDocument(t, map[string]any{"has_nda_flag": true, "style": "long"})
	ctx := context.Background()

	env.gen.generate = func(ctx context.Context, prompt string, docCtx *domain.Context) (string, error) {
		if _, err := env.session.Pause(ctx, doc.ID); err != nil {
			t.Fatalf("pause during generation: %v", err)
		}
		return "drafted text", nil
	}

	_, err := env.session.Advance(ctx, doc.ID)
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	reloaded, _ := env.docRepo.Get(doc.ID)
	if reloaded.Status != model.DocStatusPaused {
		t.Fatalf("pause must survive the in-flight commit, got %s", reloaded.Status)
	}
	if reloaded.CurrentClauseOrder != 1 || len(reloaded.Content.Data()) != 0 {
		t.Fatalf("conflicting commit must not persist anything: %+v", reloaded)
	}

	// 恢复后从原位置继续
	if _, err := env.session.Resume(ctx, doc.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	env.gen.generate = nil
	result, err := env.session.Advance(ctx, doc.ID)
	if err != nil {
		t.Fatalf("advance after resume: %v", err)
	}
	if result.ClauseOrder != 1 {
		t.Fatalf("expected clause 1 after resume, got %d", result.ClauseOrder)
	}
}

// error_msg 截断落在完整 rune 边界上
func TestTruncateKeepsRuneBoundary(t *testing.T) {
	s := "错误原因说明"
	got := truncate(s, 7) // 每个汉字 3 字节，7 落在第三个字中间
	if got != "错误" {
		t.Fatalf("expected rune-aligned truncation, got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated string is not valid UTF-8: %q", got)
	}
	if truncate("short", 100) != "short" {
		t.Fatalf("strings under the limit must pass through")
	}
}

// 后台整跑：一直推进到 completed
func TestAdvanceToCompletion(t *testing.T) {
	env := setupEnv(t)
	doc := env.newDocument(t, map[string]any{"has_nda_flag": true, "style": "long"})

	final, err := env.session.AdvanceToCompletion(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if final.Status != model.DocStatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if len(final.Content.Data()) != 3 {
		t.Fatalf("expected 3 clause records, got %d", len(final.Content.Data()))
	}
}

// 告警评估结果随条款记录持久化
func TestAdvanceRecordsAlerts(t *testing.T) {
	env := setupEnv(t)
	doc := env.newDocument(t, map[string]any{"has_nda_flag": true, "style": "long"})

	env.gen.generate = func(ctx context.Context, prompt string, docCtx *domain.Context) (string, error) {
		return "obligations survive in perpetual form", nil
	}

	ctx := context.Background()
	if _, err := env.session.Advance(ctx, doc.ID); err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	result, err := env.session.Advance(ctx, doc.ID)
	if err != nil {
		t.Fatalf("advance 2: %v", err)
	}
	if len(result.Alerts) != 1 || result.Alerts[0].Key != "unlimited_term" {
		t.Fatalf("expected unlimited_term alert, got %+v", result.Alerts)
	}

	reloaded, _ := env.docRepo.Get(doc.ID)
	rec, _ := reloaded.Content.Data().Record(2)
	if len(rec.Alerts) != 1 || rec.Alerts[0].Severity != domain.SeverityCritical {
		t.Fatalf("alerts not persisted: %+v", rec.Alerts)
	}
}
