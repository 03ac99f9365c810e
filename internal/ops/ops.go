package ops

import (
	"strings"

	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/item"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// knownStatuses lists the values accepted by status filters.
var knownStatuses = map[item.Status]bool{
	item.StatusQueued:     true,
	item.StatusProcessing: true,
	item.StatusReady:      true,
	item.StatusFailed:     true,
	item.StatusArchived:   true,
}

// ParseStatus validates a status filter string. Empty means "all".
func ParseStatus(s string) (item.Status, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	status := item.Status(s)
	if !knownStatuses[status] {
		return "", errors.NewInvalidRequest("unknown status: " + s)
	}
	return status, nil
}

// knownTypes lists the values accepted for an item type.
var knownTypes = map[item.Type]bool{
	item.TypeWeb:      true,
	item.TypePlace:    true,
	item.TypeText:     true,
	item.TypeDocument: true,
	item.TypeImage:    true,
	item.TypeActivity: true,
	item.TypeQRCode:   true,
	item.TypeWeather:  true,
	item.TypeProduct:  true,
	item.TypeMedia:    true,
}

// ParseType validates an item type string. Empty defaults to web.
func ParseType(s string) (item.Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return item.TypeWeb, nil
	}
	typ := item.Type(s)
	if !knownTypes[typ] {
		return "", errors.NewInvalidRequest("unknown item type: " + s)
	}
	return typ, nil
}
