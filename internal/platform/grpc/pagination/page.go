// Package pagination normalizes list request paging fields.
package pagination

import (
	"fmt"
	"strconv"
	"strings"
)

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// OrderByConfig configures order_by validation.
type OrderByConfig struct {
	Default string
	Allowed []string
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	return max(pageSize, 1)
}

// NormalizeOrderBy validates order_by and applies defaults.
func NormalizeOrderBy(orderBy string, cfg OrderByConfig) (string, error) {
	orderBy = strings.TrimSpace(orderBy)
	if orderBy == "" {
		return cfg.Default, nil
	}
	for _, allowed := range cfg.Allowed {
		if orderBy == allowed {
			return orderBy, nil
		}
	}
	return "", fmt.Errorf("invalid order_by: %s", orderBy)
}

// ParseOffsetToken reads a page token holding the offset of the next page.
// An empty token starts at zero.
func ParseOffsetToken(token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid page_token: %s", token)
	}
	return offset, nil
}

// Window bounds a page of total items starting at offset and returns the
// token for the following page, empty once the items are exhausted.
func Window(offset, pageSize, total int) (start, end int, nextToken string) {
	start = min(max(offset, 0), total)
	end = min(start+pageSize, total)
	if end < total {
		nextToken = strconv.Itoa(end)
	}
	return start, end, nextToken
}
