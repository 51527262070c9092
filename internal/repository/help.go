package repository

import (
	"context"

	"invite_mall/internal/model"
)

// CreateHelp stores a help, rejecting a second help for the same task and
// helper unless allowDuplicate is set.
func (r *Repository) CreateHelp(ctx context.Context, help *model.Help, allowDuplicate bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !allowDuplicate {
		for _, id := range r.taskHelps[help.TaskID] {
			if r.helps[id].HelperUserID == help.HelperUserID {
				return ErrAlreadyExists
			}
		}
	}
	h := *help
	r.helps[help.HelpID] = &h
	r.taskHelps[help.TaskID] = append(r.taskHelps[help.TaskID], help.HelpID)
	if help.OrderID != "" {
		r.helpByOrder[help.OrderID] = help.HelpID
	}
	return nil
}

// FindHelp returns the first help the helper bound to the task.
func (r *Repository) FindHelp(ctx context.Context, taskID, helperUserID string) (*model.Help, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.taskHelps[taskID] {
		if h := r.helps[id]; h.HelperUserID == helperUserID {
			c := *h
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *Repository) GetHelpByOrder(ctx context.Context, orderID string) (*model.Help, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.helpByOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r.helps[id]
	return &c, nil
}

func (r *Repository) ListHelpsByTask(ctx context.Context, taskID string) ([]*model.Help, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.taskHelps[taskID]
	out := make([]*model.Help, 0, len(ids))
	for _, id := range ids {
		c := *r.helps[id]
		out = append(out, &c)
	}
	return out, nil
}

// ListTaskIDsByHelperStatus returns, in no particular order, the tasks owning at
// least one help with the given helper status.
func (r *Repository) ListTaskIDsByHelperStatus(ctx context.Context, status model.HelperStatus) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0)
	for taskID, ids := range r.taskHelps {
		for _, id := range ids {
			if r.helps[id].HelperStatus == status {
				out = append(out, taskID)
				break
			}
		}
	}
	return out, nil
}

// AttachHelpOrder sets the order of a help that has none, provided no other
// help references the order.
func (r *Repository) AttachHelpOrder(ctx context.Context, helpID, orderID string) (*model.Help, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.helps[helpID]
	if !ok {
		return nil, ErrNotFound
	}
	if h.OrderID != "" {
		return nil, ErrHelpOrderSet
	}
	if _, bound := r.helpByOrder[orderID]; bound {
		return nil, ErrOrderBound
	}
	h.OrderID = orderID
	r.helpByOrder[orderID] = helpID
	c := *h
	return &c, nil
}

// UpdateHelp replaces a help's mutable fields. The order reference is owned
// by AttachHelpOrder and is left untouched.
func (r *Repository) UpdateHelp(ctx context.Context, help *model.Help) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.helps[help.HelpID]
	if !ok {
		return ErrNotFound
	}
	c := *help
	c.OrderID = h.OrderID
	r.helps[help.HelpID] = &c
	return nil
}
