package audit

import (
	"errors"
	"fmt"
	"time"
)

// Action is the kind of transition an entry records
type Action string

const (
	ActionInviteSent     Action = "invite_sent"
	ActionInviteAccepted Action = "invite_accepted"
	ActionInviteRevoked  Action = "invite_revoked"
	ActionMemberUpdated  Action = "member_updated"
	ActionMemberRemoved  Action = "member_removed"
	ActionOrgCreated     Action = "org_created"
	ActionOrgUpdated     Action = "org_updated"
	ActionOrgDeleted     Action = "org_deleted"
)

var knownActions = map[Action]bool{
	ActionInviteSent:     true,
	ActionInviteAccepted: true,
	ActionInviteRevoked:  true,
	ActionMemberUpdated:  true,
	ActionMemberRemoved:  true,
	ActionOrgCreated:     true,
	ActionOrgUpdated:     true,
	ActionOrgDeleted:     true,
}

// IsValid reports whether the action is one the core records
func (a Action) IsValid() bool {
	return knownActions[a]
}

// ResourceType represents the type of resource an entry refers to
type ResourceType string

const (
	ResourceTypeMembership   ResourceType = "membership"
	ResourceTypeOrganization ResourceType = "organization"
)

// ErrInvalidEntry is returned when an entry is missing required fields
var ErrInvalidEntry = errors.New("invalid audit entry")

// Entry represents a single audit log record
type Entry struct {
	ID             int64          `json:"id"`
	OrganizationID int64          `json:"organization_id"`
	Action         Action         `json:"action"`
	ResourceType   ResourceType   `json:"resource_type"`
	ResourceID     string         `json:"resource_id,omitempty"`
	PerformedBy    string         `json:"performed_by"`
	Details        map[string]any `json:"details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// NewEntry starts an entry for action in orgID performed by userID
func NewEntry(orgID int64, action Action, performedBy string) *Entry {
	return &Entry{
		OrganizationID: orgID,
		Action:         action,
		PerformedBy:    performedBy,
		Details:        map[string]any{},
	}
}

// WithResource sets the resource the entry refers to
func (e *Entry) WithResource(resourceType ResourceType, resourceID string) *Entry {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithDetail adds a single detail value
func (e *Entry) WithDetail(key string, value any) *Entry {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// WithChanges records before/after values under the "before" and "after" keys
func (e *Entry) WithChanges(changes *ChangeDetails) *Entry {
	if changes == nil {
		return e
	}
	if changes.Before != nil {
		e.WithDetail("before", changes.Before)
	}
	if changes.After != nil {
		e.WithDetail("after", changes.After)
	}
	return e
}

// Validate checks that the entry can be appended
func (e *Entry) Validate() error {
	if e.OrganizationID <= 0 {
		return fmt.Errorf("%w: organization id is required", ErrInvalidEntry)
	}
	if !e.Action.IsValid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, e.Action)
	}
	if e.ResourceType == "" {
		return fmt.Errorf("%w: resource type is required", ErrInvalidEntry)
	}
	if e.PerformedBy == "" {
		return fmt.Errorf("%w: performed_by is required", ErrInvalidEntry)
	}
	return nil
}

// Filter selects entries of one organization, newest first
type Filter struct {
	OrganizationID int64
	Actions        []Action
	PerformedBy    string
	StartTime      *time.Time
	EndTime        *time.Time
	Limit          int
	Offset         int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Normalize clamps the pagination fields
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
