package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 50
	MaxDescriptionLength = 200

	DateLayout = "2006-01-02"
)

var (
	ErrEmptyTitle         = errors.New("domain: task title is required")
	ErrTitleTooLong       = errors.New("domain: task title is too long")
	ErrDescriptionTooLong = errors.New("domain: task description is too long")
	ErrInvalidDate        = errors.New("domain: invalid completion date")
	ErrInvalidTime        = errors.New("domain: invalid completion time")
	ErrOwnerImmutable     = errors.New("domain: task owner cannot be changed")
	ErrEmptyPatch         = errors.New("domain: update has no fields")
	ErrMissingOwner       = errors.New("domain: owner email is required")
)

// Task represents a single board item.
type Task struct {
	// ID is assigned by the task store and is empty until the task is persisted.
	ID string

	// LocalID marks a task that only exists locally while its create is in flight.
	LocalID string

	Title          string
	Description    string
	Category       Category
	CompletionDate string
	CompletionTime string
	OwnerEmail     string
}

// Key returns the identifier the board tracks the task under.
func (t Task) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.LocalID
}

// Pending reports whether the task is still waiting for a store id.
func (t Task) Pending() bool { return t.ID == "" }

// Draft carries the user supplied fields for a new task.
type Draft struct {
	Title          string
	Description    string
	Category       Category
	CompletionDate string
	CompletionTime string
}

// Normalize trims free text and fills the default category.
func (d Draft) Normalize() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	if d.Category == "" {
		d.Category = CategoryTodo
	}
	return d
}

func (d Draft) Validate() error {
	if err := validateTitle(d.Title); err != nil {
		return err
	}
	if err := validateDescription(d.Description); err != nil {
		return err
	}
	if d.Category != "" && !d.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, string(d.Category))
	}
	if err := validateDate(d.CompletionDate); err != nil {
		return err
	}
	return validateTime(d.CompletionTime)
}

// Task builds the local representation of the draft for the given owner.
func (d Draft) Task(owner, localID string) Task {
	return Task{
		LocalID:        localID,
		Title:          d.Title,
		Description:    d.Description,
		Category:       d.Category,
		CompletionDate: d.CompletionDate,
		CompletionTime: d.CompletionTime,
		OwnerEmail:     owner,
	}
}

// Patch describes a partial task update. Nil fields are left untouched.
type Patch struct {
	Title          *string
	Description    *string
	Category       *Category
	CompletionDate *string
	CompletionTime *string
	OwnerEmail     *string
}

func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.CompletionDate == nil && p.CompletionTime == nil && p.OwnerEmail == nil
}

// Validate checks the patch against the task it will be applied to.
func (p Patch) Validate(current Task) error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.OwnerEmail != nil && !strings.EqualFold(*p.OwnerEmail, current.OwnerEmail) {
		return ErrOwnerImmutable
	}
	if p.Title != nil {
		if err := validateTitle(strings.TrimSpace(*p.Title)); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Category != nil && !p.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, string(*p.Category))
	}
	if p.CompletionDate != nil {
		if err := validateDate(*p.CompletionDate); err != nil {
			return err
		}
	}
	if p.CompletionTime != nil {
		if err := validateTime(*p.CompletionTime); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns t with the patch fields copied over. The owner never changes.
func (p Patch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.CompletionDate != nil {
		t.CompletionDate = *p.CompletionDate
	}
	if p.CompletionTime != nil {
		t.CompletionTime = *p.CompletionTime
	}
	return t
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: %d characters, limit %d", ErrTitleTooLong, utf8.RuneCountInString(title), MaxTitleLength)
	}
	return nil
}

func validateDescription(desc string) error {
	if n := utf8.RuneCountInString(desc); n > MaxDescriptionLength {
		return fmt.Errorf("%w: %d characters, limit %d", ErrDescriptionTooLong, n, MaxDescriptionLength)
	}
	return nil
}

func validateDate(v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, v); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, v)
	}
	return nil
}

func validateTime(v string) error {
	if v == "" {
		return nil
	}
	if _, err := ParseClock(v); err != nil {
		return err
	}
	return nil
}

// ParseClock parses a 24h time of day in HH:MM or HH:MM:SS form.
func ParseClock(v string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTime, v)
}

// StringPtr and CategoryPtr help build patches.
func StringPtr(s string) *string { return &s }

func CategoryPtr(c Category) *Category { return &c }
