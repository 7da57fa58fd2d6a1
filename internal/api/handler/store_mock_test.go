package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/promptlab/promptlab/internal/store"
	"github.com/promptlab/promptlab/pkg/models"
)

// mockStore implements the subset of store.Store the handler tests touch.
type mockStore struct {
	store.Store

	getJobFn         func(id uuid.UUID) (*models.Job, error)
	getTemplateFn    func(id uuid.UUID) (*models.Template, error)
	listTemplatesFn  func() ([]*models.Template, error)
	createTemplateFn func(tmpl *models.Template) error
	pingErr          error
}

func (m *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	return m.getJobFn(id)
}

func (m *mockStore) GetTemplate(_ context.Context, id uuid.UUID) (*models.Template, error) {
	return m.getTemplateFn(id)
}

func (m *mockStore) ListTemplates(context.Context) ([]*models.Template, error) {
	return m.listTemplatesFn()
}

func (m *mockStore) CreateTemplate(_ context.Context, tmpl *models.Template) error {
	return m.createTemplateFn(tmpl)
}

func (m *mockStore) Ping(context.Context) error {
	return m.pingErr
}
