package handlers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"glucoseapi/backend/services/glucose-service/internal/models"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

var queryTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseListFilter validates /levels query parameters.
func parseListFilter(q url.Values) (models.ListFilter, error) {
	filter := models.ListFilter{
		UserID: strings.TrimSpace(q.Get("user_id")),
		Limit:  defaultLimit,
	}
	if filter.UserID == "" {
		return filter, fmt.Errorf("user_id is required")
	}

	var err error
	if filter.Start, err = parseQueryTime(q, "start"); err != nil {
		return filter, err
	}
	if filter.End, err = parseQueryTime(q, "end"); err != nil {
		return filter, err
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return filter, fmt.Errorf("limit must be an integer between 1 and %d", maxLimit)
		}
		filter.Limit = limit
	}

	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	if filter.Sort, err = models.ParseSortOrder(q.Get("sort")); err != nil {
		return filter, fmt.Errorf("sort must be 'asc' or 'desc'")
	}
	return filter, nil
}

// parseQueryTime returns nil for an absent parameter. Zoned values are
// converted to UTC wall time, the form device timestamps are stored in.
func parseQueryTime(q url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range queryTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("%s must be an ISO-8601 datetime", name)
}
