package services

import (
	"context"
	"fmt"

	"saldo/internal/access"
	"saldo/internal/amqp"
	"saldo/internal/core"
	applog "saldo/internal/log"
)

// CategoryService runs category operations through a scoped accessor and
// announces changes.
type CategoryService struct {
	notifier
}

func NewCategoryService(events Publisher) *CategoryService {
	return &CategoryService{notifier{events: events}}
}

func (s *CategoryService) List(ctx context.Context, acc *access.Accessor, typ core.TransactionType) ([]core.Category, error) {
	cats, err := acc.ListCategories(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (s *CategoryService) Get(ctx context.Context, acc *access.Accessor, id string) (core.Category, error) {
	return acc.GetCategory(ctx, id)
}

func (s *CategoryService) Create(ctx context.Context, acc *access.Accessor, c core.Category) (core.Category, error) {
	created, err := acc.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Category created", "category_id", created.ID, "user_id", created.UserID)
	s.publish(ctx, amqp.CategoryCreated, created.ID, created.UserID, acc.Scope().CallerID)
	return created, nil
}

func (s *CategoryService) Update(ctx context.Context, acc *access.Accessor, id string, patch core.CategoryPatch) (core.Category, error) {
	updated, err := acc.UpdateCategory(ctx, id, patch)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Category updated", "category_id", updated.ID)
	s.publish(ctx, amqp.CategoryUpdated, updated.ID, updated.UserID, acc.Scope().CallerID)
	return updated, nil
}

func (s *CategoryService) Delete(ctx context.Context, acc *access.Accessor, id string) error {
	if err := acc.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Category deleted", "category_id", id)
	owner := acc.Scope().WriteOwner()
	s.publish(ctx, amqp.CategoryDeleted, id, owner, owner)
	return nil
}
