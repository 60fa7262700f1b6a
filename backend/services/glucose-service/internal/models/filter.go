package models

import (
	"fmt"
	"strings"
	"time"
)

// SortOrder orders records by device timestamp.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder accepts asc or desc (any case); empty means desc.
func ParseSortOrder(value string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(value))) {
	case "", SortDesc:
		return SortDesc, nil
	case SortAsc:
		return SortAsc, nil
	default:
		return "", fmt.Errorf("sort must be one of %q, %q", SortAsc, SortDesc)
	}
}

// ListFilter selects a page of one user's records. Start and End are inclusive.
type ListFilter struct {
	UserID string
	Start  *time.Time
	End    *time.Time
	Sort   SortOrder
	Limit  int
	Offset int
}
