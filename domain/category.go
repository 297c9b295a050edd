package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCategory = errors.New("domain: invalid task category")

// Category identifies the board column a task lives in.
type Category string

const (
	CategoryTodo       Category = "To-Do"
	CategoryInProgress Category = "In-Progress"
	CategoryDone       Category = "Done"
)

// Categories lists every board column in display order.
var Categories = [...]Category{CategoryTodo, CategoryInProgress, CategoryDone}

func (c Category) IsValid() bool {
	switch c {
	case CategoryTodo, CategoryInProgress, CategoryDone:
		return true
	default:
		return false
	}
}

func (c Category) String() string { return string(c) }

// ParseCategory maps a store or user supplied category onto its canonical
// value. Matching ignores case, surrounding space and the separator between
// words, so "to-do", "todo" and "In Progress" are all accepted.
func ParseCategory(raw string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "", " ", "", "_", "").Replace(key)
	switch key {
	case "todo":
		return CategoryTodo, nil
	case "inprogress":
		return CategoryInProgress, nil
	case "done":
		return CategoryDone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
	}
}
