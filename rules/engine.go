// Package rules evaluates user-defined automation rules against detected
// document changes and dispatches their actions. Evaluation isolates
// failures per rule: one broken action never silences the others.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"docwatch/diff"
	"docwatch/ledger"
)

// ErrRuleNotFound is returned by update/delete for unknown rule IDs.
var ErrRuleNotFound = errors.New("rule not found")

// ActionHandler executes one action type against a matched change and
// returns a human-readable result.
type ActionHandler func(ctx context.Context, rule Rule, change ledger.DocumentChange) (string, error)

// Engine provides rule CRUD and evaluation. Action dispatch is a
// pluggable map from action type to handler; RegisterAction replaces the
// built-in handlers when callers need different side effects.
type Engine struct {
	store   Store
	actions map[ActionType]ActionHandler

	// now is stubbed by tests exercising time_range conditions.
	now func() time.Time
}

func NewEngine(store Store) *Engine {
	e := &Engine{
		store:   store,
		actions: make(map[ActionType]ActionHandler),
		now:     time.Now,
	}
	return e
}

// RegisterAction installs (or replaces) the handler for an action type.
func (e *Engine) RegisterAction(t ActionType, h ActionHandler) {
	e.actions[t] = h
}

// CreateRule validates and persists a new rule, returning it with its
// generated ID.
func (e *Engine) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	if err := validateRule(rule); err != nil {
		return Rule{}, err
	}
	rule.ID = uuid.New()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt

	if err := e.store.InsertRule(ctx, rule); err != nil {
		return Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return rule, nil
}

// UpdateRule validates and persists changes to an existing rule.
func (e *Engine) UpdateRule(ctx context.Context, rule Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	rule.UpdatedAt = time.Now()

	found, err := e.store.UpdateRule(ctx, rule)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if !found {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (e *Engine) DeleteRule(ctx context.Context, id uuid.UUID) error {
	found, err := e.store.DeleteRule(ctx, id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if !found {
		return ErrRuleNotFound
	}
	return nil
}

// GetRulesForDoc lists every rule bound to a document, enabled or not.
func (e *Engine) GetRulesForDoc(ctx context.Context, docToken string) ([]Rule, error) {
	rulesForDoc, err := e.store.ListRulesForDoc(ctx, docToken, false)
	if err != nil {
		return nil, fmt.Errorf("list rules for %s: %w", docToken, err)
	}
	return rulesForDoc, nil
}

// EvaluateChange runs every enabled rule for the change's document.
// diffResult is optional diff context for content_match conditions; when
// nil those conditions cannot match. Each rule's outcome is independent:
// an action failure is captured in that rule's result and evaluation
// continues.
func (e *Engine) EvaluateChange(ctx context.Context, change ledger.DocumentChange, diffResult *diff.Result) ([]ExecutionResult, error) {
	enabled, err := e.store.ListRulesForDoc(ctx, change.DocToken, true)
	if err != nil {
		return nil, fmt.Errorf("load rules for %s: %w", change.DocToken, err)
	}

	results := make([]ExecutionResult, 0, len(enabled))
	for _, rule := range enabled {
		results = append(results, e.evaluateRule(ctx, rule, change, diffResult))
	}
	return results, nil
}

func (e *Engine) evaluateRule(ctx context.Context, rule Rule, change ledger.DocumentChange, diffResult *diff.Result) ExecutionResult {
	start := time.Now()
	result := ExecutionResult{RuleID: rule.ID}

	result.ConditionMatched = e.matches(rule.Condition, change, diffResult)
	if result.ConditionMatched {
		actionResult, err := e.execute(ctx, rule, change)
		if err != nil {
			result.Error = err.Error()
			log.Printf("rules: action %s for rule %s failed: %v", rule.Action.Type, rule.ID, err)
		} else {
			result.ActionExecuted = true
			result.ActionResult = actionResult
		}
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result
}

// execute dispatches the rule's action, converting handler panics into
// errors so a misbehaving handler cannot take down the evaluation loop.
func (e *Engine) execute(ctx context.Context, rule Rule, change ledger.DocumentChange) (result string, err error) {
	handler, ok := e.actions[rule.Action.Type]
	if !ok {
		return "", fmt.Errorf("no handler registered for action type %q", rule.Action.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action handler panicked: %v", r)
		}
	}()
	return handler(ctx, rule, change)
}

func (e *Engine) matches(cond Condition, change ledger.DocumentChange, diffResult *diff.Result) bool {
	switch cond.Type {
	case CondAny:
		return true

	case CondModifiedByUser:
		for _, v := range cond.Values {
			if v == change.NewModifiedUser {
				return true
			}
		}
		return false

	case CondChangeType:
		for _, v := range cond.Values {
			if ledger.ChangeType(v) == change.ChangeType {
				return true
			}
		}
		return false

	case CondTimeRange:
		hour := e.now().Hour()
		for _, v := range cond.Values {
			h, err := strconv.Atoi(v)
			if err == nil && h == hour {
				return true
			}
		}
		return false

	case CondContentMatch:
		// Matches only when diff context accompanied the change: the
		// condition tests text that was added or rewritten, not metadata.
		if diffResult == nil {
			return false
		}
		for _, line := range diffResult.Lines {
			if line.Type != diff.Added && line.Type != diff.Modified {
				continue
			}
			for _, v := range cond.Values {
				if v != "" && strings.Contains(line.Content, v) {
					return true
				}
			}
		}
		return false

	default:
		return false
	}
}

func validateRule(rule Rule) error {
	switch rule.Condition.Type {
	case CondAny, CondModifiedByUser, CondContentMatch, CondTimeRange, CondChangeType:
	default:
		return fmt.Errorf("invalid condition type %q", rule.Condition.Type)
	}

	switch rule.Action.Type {
	case ActionNotify, ActionWebhook:
		if rule.Action.Target == "" {
			return fmt.Errorf("action %q requires a target", rule.Action.Type)
		}
	case ActionCreateTask, ActionAggregate:
	default:
		return fmt.Errorf("invalid action type %q", rule.Action.Type)
	}

	if rule.DocToken == "" {
		return fmt.Errorf("rule requires a doc token")
	}
	return nil
}
