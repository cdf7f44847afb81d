package subscriber

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/eventbus"
	"github.com/clauseforge/backend/internal/model"
	"github.com/clauseforge/backend/internal/repository"
)

func setupPolicyTest(t *testing.T) (repository.DocumentRepository, *model.Document) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.DocTemplate{}, &model.Clause{}, &model.Document{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tpl := &model.DocTemplate{Name: "tpl"}
	if err := repository.NewTemplateRepository(db).Create(tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}

	docRepo := repository.NewDocumentRepository(db)
	doc := &model.Document{RefKey: "ref", DocTemplateID: tpl.ID, Status: model.DocStatusInProgress}
	if err := docRepo.Create(doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return docRepo, doc
}

// 达到阈值的告警把文档转入 needs_review
func TestReviewPolicyTriggersOnThreshold(t *testing.T) {
	docRepo, doc := setupPolicyTest(t)
	bus := eventbus.NewDocumentEventBus()
	NewReviewPolicy(docRepo, domain.SeverityCritical).Register(bus)

	event := eventbus.DocumentEvent{
		Type:        eventbus.DocumentEventClauseAdvanced,
		DocumentID:  doc.ID,
		ClauseOrder: 2,
		AlertCount:  1,
		MaxSeverity: domain.SeverityCritical,
	}
	if err := bus.Publish(context.Background(), event.Type, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	reloaded, _ := docRepo.Get(doc.ID)
	if reloaded.Status != model.DocStatusNeedsReview {
		t.Fatalf("expected needs_review, got %s", reloaded.Status)
	}
}

// 低于阈值的告警不触发
func TestReviewPolicyIgnoresBelowThreshold(t *testing.T) {
	docRepo, doc := setupPolicyTest(t)
	bus := eventbus.NewDocumentEventBus()
	NewReviewPolicy(docRepo, domain.SeverityCritical).Register(bus)

	event := eventbus.DocumentEvent{
		Type:        eventbus.DocumentEventClauseAdvanced,
		DocumentID:  doc.ID,
		AlertCount:  2,
		MaxSeverity: domain.SeverityWarning,
	}
	bus.Publish(context.Background(), event.Type, event)

	reloaded, _ := docRepo.Get(doc.ID)
	if reloaded.Status != model.DocStatusInProgress {
		t.Fatalf("warning below threshold must not trigger review, got %s", reloaded.Status)
	}
}

// 文档已离开 in_progress 时放弃迁移，不报错
func TestReviewPolicySkipsWhenStatusMoved(t *testing.T) {
	docRepo, doc := setupPolicyTest(t)
	bus := eventbus.NewDocumentEventBus()
	NewReviewPolicy(docRepo, domain.SeverityWarning).Register(bus)

	if err := docRepo.UpdateStatus(doc.ID, model.DocStatusInProgress, model.DocStatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}

	event := eventbus.DocumentEvent{
		Type:        eventbus.DocumentEventClauseAdvanced,
		DocumentID:  doc.ID,
		AlertCount:  1,
		MaxSeverity: domain.SeverityCritical,
	}
	if err := bus.Publish(context.Background(), event.Type, event); err != nil {
		t.Fatalf("publish should swallow the missed transition: %v", err)
	}

	reloaded, _ := docRepo.Get(doc.ID)
	if reloaded.Status != model.DocStatusPaused {
		t.Fatalf("paused document must stay paused, got %s", reloaded.Status)
	}
}
