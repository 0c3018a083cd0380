package rules

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConditionType enumerates the predicates a rule can test.
type ConditionType string

const (
	CondAny            ConditionType = "any"
	CondModifiedByUser ConditionType = "modified_by_user"
	CondContentMatch   ConditionType = "content_match"
	CondTimeRange      ConditionType = "time_range"
	CondChangeType     ConditionType = "change_type"
)

// ActionType enumerates the side effects a matched rule can dispatch.
type ActionType string

const (
	ActionNotify     ActionType = "notify"
	ActionCreateTask ActionType = "create_task"
	ActionWebhook    ActionType = "webhook"
	ActionAggregate  ActionType = "aggregate"
)

// Condition is a rule predicate. Values holds the comparison operands:
// user IDs for modified_by_user, hours (0-23) for time_range, change
// types for change_type, substrings for content_match. Empty for any.
type Condition struct {
	Type   ConditionType `json:"type"`
	Values []string      `json:"values,omitempty"`
}

// Action is the side effect dispatched when a rule matches. Target is a
// chat ID for notify and a URL for webhook; Template optionally shapes
// the produced text.
type Action struct {
	Type     ActionType `json:"type"`
	Target   string     `json:"target,omitempty"`
	Template string     `json:"template,omitempty"`
}

// Rule binds a condition and action to one tracked document.
type Rule struct {
	ID        uuid.UUID `json:"id"`
	DocToken  string    `json:"doc_token"`
	UserID    string    `json:"user_id"`
	Condition Condition `json:"condition"`
	Action    Action    `json:"action"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionResult reports one (rule, change) evaluation. Transient: it is
// logged and returned to callers, never persisted.
type ExecutionResult struct {
	RuleID           uuid.UUID `json:"rule_id"`
	ConditionMatched bool      `json:"condition_matched"`
	ActionExecuted   bool      `json:"action_executed"`
	ActionResult     string    `json:"action_result,omitempty"`
	Error            string    `json:"error,omitempty"`
	ExecutionTimeMs  int64     `json:"execution_time_ms"`
}

// Store is the persistence contract for rules.
type Store interface {
	InsertRule(ctx context.Context, rule Rule) error
	UpdateRule(ctx context.Context, rule Rule) (bool, error)
	DeleteRule(ctx context.Context, id uuid.UUID) (bool, error)
	GetRule(ctx context.Context, id uuid.UUID) (*Rule, error)
	// ListRulesForDoc returns rules for a document, optionally only the
	// enabled ones, in creation order.
	ListRulesForDoc(ctx context.Context, docToken string, enabledOnly bool) ([]Rule, error)
}
