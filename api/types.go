package api

import (
	"context"

	"taskboard/domain"
)

// Storage abstracts task persistence for handlers.
type Storage interface {
	ListTasks(ctx context.Context, owner string) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.Patch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) (domain.Task, error)
}

// Deduper makes task creation idempotent per owner and key.
type Deduper interface {
	// Reserve records the key. It returns true when the key was newly
	// reserved, or the id of the task an earlier request created under it.
	Reserve(ctx context.Context, owner, key string) (string, bool, error)
	// Remember stores the id created under a reserved key.
	Remember(ctx context.Context, owner, key, id string) error
	// Remove deletes a reserved key, used when the create fails.
	Remove(ctx context.Context, owner, key string) error
}

// Authenticator is implemented by types able to extract the caller's email
// from an Authorization header.
type Authenticator interface {
	EmailFromAuthHeader(string) (string, error)
}

// taskRecord is the JSON shape of a task on the wire.
type taskRecord struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Category       string `json:"category"`
	CompletionDate string `json:"completionDate,omitempty"`
	CompletionTime string `json:"completionTime,omitempty"`
	OwnerEmail     string `json:"ownerEmail"`
}

func newTaskRecord(t domain.Task) taskRecord {
	return taskRecord{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Category:       t.Category.String(),
		CompletionDate: t.CompletionDate,
		CompletionTime: t.CompletionTime,
		OwnerEmail:     t.OwnerEmail,
	}
}

// draftRequest is the POST body. The owner may arrive under any of the keys
// older clients used.
type draftRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	CompletionDate string `json:"completionDate"`
	CompletionTime string `json:"completionTime"`
	OwnerEmail     string `json:"ownerEmail"`
	Email          string `json:"email"`
	UserEmail      string `json:"userEmail"`
}

func (r draftRequest) owner() string {
	switch {
	case r.OwnerEmail != "":
		return r.OwnerEmail
	case r.Email != "":
		return r.Email
	default:
		return r.UserEmail
	}
}

func (r draftRequest) toDraft() (domain.Draft, error) {
	d := domain.Draft{
		Title:          r.Title,
		Description:    r.Description,
		CompletionDate: r.CompletionDate,
		CompletionTime: r.CompletionTime,
	}
	if r.Category != "" {
		c, err := domain.ParseCategory(r.Category)
		if err != nil {
			return domain.Draft{}, err
		}
		d.Category = c
	}
	d = d.Normalize()
	return d, d.Validate()
}

// patchRequest is the PUT body. Absent fields are left untouched.
type patchRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	Category       *string `json:"category"`
	CompletionDate *string `json:"completionDate"`
	CompletionTime *string `json:"completionTime"`
	OwnerEmail     *string `json:"ownerEmail"`
}

func (r patchRequest) toPatch() (domain.Patch, error) {
	p := domain.Patch{
		Title:          r.Title,
		Description:    r.Description,
		CompletionDate: r.CompletionDate,
		CompletionTime: r.CompletionTime,
		OwnerEmail:     r.OwnerEmail,
	}
	if r.Category != nil {
		c, err := domain.ParseCategory(*r.Category)
		if err != nil {
			return domain.Patch{}, err
		}
		p.Category = &c
	}
	return p, nil
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}
