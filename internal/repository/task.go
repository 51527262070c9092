package repository

import (
	"context"
	"sort"

	"invite_mall/internal/model"
)

type TaskFilter struct {
	Status model.TaskStatus
	UserID string
}

// CreateTask stores a new task, enforcing one task per inviter order and
// unique task numbers.
func (r *Repository) CreateTask(ctx context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.taskByOrder[task.OrderID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := r.taskByNo[task.TaskNo]; exists {
		return ErrTaskNoTaken
	}
	r.tasks[task.TaskID] = task.Clone()
	r.taskByNo[task.TaskNo] = task.TaskID
	r.taskByOrder[task.OrderID] = task.TaskID
	return nil
}

func (r *Repository) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (r *Repository) GetTaskByNo(ctx context.Context, taskNo string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.taskByNo[taskNo]
	if !ok {
		return nil, ErrNotFound
	}
	return r.tasks[id].Clone(), nil
}

func (r *Repository) TaskExistsForOrder(ctx context.Context, orderID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.taskByOrder[orderID]
	return ok
}

func (r *Repository) UpdateTask(ctx context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.TaskID]; !ok {
		return ErrNotFound
	}
	r.tasks[task.TaskID] = task.Clone()
	return nil
}

func (r *Repository) ListTasks(ctx context.Context, filter TaskFilter) ([]*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Task, 0)
	for _, t := range r.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && t.UserID != filter.UserID {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
