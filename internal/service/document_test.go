package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/model"
)

func TestCreateDocument(t *testing.T) {
	templates, documents, _ := setupServices(t)
	ctx := context.Background()

	tpl, err := templates.Create(ctx, CreateTemplateRequest{
		Name:    "NDA",
		Clauses: []ClauseRequest{validClauseRequest(1)},
	})
	require.NoError(t, err)

	doc, err := documents.Create(ctx, CreateDocumentRequest{
		DocTemplateID: tpl.ID,
		Params:        map[string]any{"party": "Acme"},
	})
	require.NoError(t, err)
	require.Equal(t, model.DocStatusInProgress, doc.Status)
	require.Equal(t, 1, doc.CurrentClauseOrder)
	require.NotEmpty(t, doc.RefKey)

	byRef, err := documents.GetByRefKey(ctx, doc.RefKey)
	require.NoError(t, err)
	require.Equal(t, doc.ID, byRef.ID)
}

func TestCreateDocumentRequiresClauses(t *testing.T) {
	templates, documents, _ := setupServices(t)
	ctx := context.Background()

	empty, err := templates.Create(ctx, CreateTemplateRequest{Name: "Empty"})
	require.NoError(t, err)

	_, err = documents.Create(ctx, CreateDocumentRequest{DocTemplateID: empty.ID})
	require.ErrorIs(t, err, ErrTemplateHasNoClauses)

	_, err = documents.Create(ctx, CreateDocumentRequest{DocTemplateID: 9999})
	require.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestRenderRequiresCompletion(t *testing.T) {
	templates, documents, _ := setupServices(t)
	ctx := context.Background()

	tpl, err := templates.Create(ctx, CreateTemplateRequest{
		Name:    "NDA",
		Clauses: []ClauseRequest{validClauseRequest(1)},
	})
	require.NoError(t, err)

	doc, err := documents.Create(ctx, CreateDocumentRequest{DocTemplateID: tpl.ID})
	require.NoError(t, err)

	_, err = documents.Render(ctx, doc.ID)
	require.ErrorIs(t, err, ErrDocumentNotCompleted)

	// 预览对任何状态可用
	_, err = documents.Preview(ctx, doc.ID)
	require.NoError(t, err)
}

// 渲染按条款顺序拼装，跳过的条款不出现在产出中
func TestRenderMarkdownOrderAndSkips(t *testing.T) {
	content := domain.DocumentContent{}
	content.Set(4, domain.ClauseRecord{SectionName: "Signatures", Text: "sign here"})
	content.Set(1, domain.ClauseRecord{SectionName: "Introduction", Text: "intro text"})
	content.Set(2, domain.ClauseRecord{SectionName: "Confidentiality", Skipped: true})

	doc := &model.Document{Content: datatypes.NewJSONType(content)}
	markdown := renderMarkdown(doc)

	require.Contains(t, markdown, "## Introduction")
	require.Contains(t, markdown, "## Signatures")
	require.NotContains(t, markdown, "Confidentiality")
	require.Less(t,
		strings.Index(markdown, "## Introduction"),
		strings.Index(markdown, "## Signatures"),
		"sections must follow clause order")
}
