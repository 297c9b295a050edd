package remote

import (
	"errors"
	"fmt"
	"net/http"

	"taskboard/domain"
)

const maxResponseSize = 4 << 20 // 4 MiB

// ErrNotFound is matched by StatusError values carrying a 404.
var ErrNotFound = errors.New("remote: task not found")

// StatusError reports a non-success HTTP response from the task store.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("remote: %s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TokenSource supplies the bearer token for each request. *session.Session
// satisfies it.
type TokenSource interface {
	Token() string
}

// taskRecord is the store's JSON representation of a task. Older store
// deployments use Mongo style "_id" and "email"/"userEmail" keys, which are
// accepted on read.
type taskRecord struct {
	ID             string `json:"id,omitempty"`
	MongoID        string `json:"_id,omitempty"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Category       string `json:"category"`
	CompletionDate string `json:"completionDate,omitempty"`
	CompletionTime string `json:"completionTime,omitempty"`
	OwnerEmail     string `json:"ownerEmail,omitempty"`
	Email          string `json:"email,omitempty"`
	UserEmail      string `json:"userEmail,omitempty"`
}

// createAck is the insert acknowledgement some stores return instead of the
// created record.
type createAck struct {
	InsertedID string `json:"insertedId"`
}

type draftRecord struct {
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Category       string `json:"category"`
	CompletionDate string `json:"completionDate,omitempty"`
	CompletionTime string `json:"completionTime,omitempty"`
	OwnerEmail     string `json:"ownerEmail"`
}

type patchRecord struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	Category       *string `json:"category,omitempty"`
	CompletionDate *string `json:"completionDate,omitempty"`
	CompletionTime *string `json:"completionTime,omitempty"`
}

func (r taskRecord) id() string {
	if r.ID != "" {
		return r.ID
	}
	return r.MongoID
}

func (r taskRecord) owner() string {
	switch {
	case r.OwnerEmail != "":
		return r.OwnerEmail
	case r.Email != "":
		return r.Email
	default:
		return r.UserEmail
	}
}

func (r taskRecord) toDomain() (domain.Task, error) {
	cat, err := domain.ParseCategory(r.Category)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:             r.id(),
		Title:          r.Title,
		Description:    r.Description,
		Category:       cat,
		CompletionDate: r.CompletionDate,
		CompletionTime: r.CompletionTime,
		OwnerEmail:     r.owner(),
	}, nil
}

func newDraftRecord(owner string, d domain.Draft) draftRecord {
	return draftRecord{
		Title:          d.Title,
		Description:    d.Description,
		Category:       d.Category.String(),
		CompletionDate: d.CompletionDate,
		CompletionTime: d.CompletionTime,
		OwnerEmail:     owner,
	}
}

func newPatchRecord(p domain.Patch) patchRecord {
	rec := patchRecord{
		Title:          p.Title,
		Description:    p.Description,
		CompletionDate: p.CompletionDate,
		CompletionTime: p.CompletionTime,
	}
	if p.Category != nil {
		c := p.Category.String()
		rec.Category = &c
	}
	return rec
}
