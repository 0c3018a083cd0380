package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"docwatch/ledger"
	"docwatch/rules"
	"docwatch/snapshot"
)

// Client is the Postgres-backed store behind the ledger, snapshot and
// rules services.
type Client struct {
	pool *pgxpool.Pool
}

func NewClient(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// --- ledger.Store ---

func (c *Client) UpsertTracked(ctx context.Context, doc ledger.TrackedDocument) (ledger.TrackedDocument, error) {
	row := c.pool.QueryRow(ctx, upsertTracked,
		uuidToPgtype(doc.ID), doc.UserID, doc.DocToken, doc.DocType, doc.ChatID)

	saved, err := scanTracked(row)
	if err != nil {
		return ledger.TrackedDocument{}, fmt.Errorf("upsert tracked document query failed: %w", err)
	}
	return saved, nil
}

func (c *Client) GetTracked(ctx context.Context, userID, docToken string) (*ledger.TrackedDocument, error) {
	row := c.pool.QueryRow(ctx, getTracked, userID, docToken)
	doc, err := scanTracked(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked document query failed: %w", err)
	}
	return &doc, nil
}

func (c *Client) ListActiveTracked(ctx context.Context) ([]ledger.TrackedDocument, error) {
	rows, err := c.pool.Query(ctx, listActiveTracked)
	if err != nil {
		return nil, fmt.Errorf("list active tracked query failed: %w", err)
	}
	defer rows.Close()

	var docs []ledger.TrackedDocument
	for rows.Next() {
		doc, err := scanTracked(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *Client) DeactivateTracked(ctx context.Context, userID, docToken string) (bool, error) {
	tag, err := c.pool.Exec(ctx, deactivateTracked, userID, docToken)
	if err != nil {
		return false, fmt.Errorf("deactivate tracked query failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (c *Client) UpdateTrackedState(ctx context.Context, userID, docToken, lastUser string, lastTime int64, notifiedAt time.Time) (bool, error) {
	tag, err := c.pool.Exec(ctx, updateTrackedState,
		userID, docToken, lastUser, lastTime, timestampToPgtype(notifiedAt))
	if err != nil {
		return false, fmt.Errorf("update tracked state query failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (c *Client) InsertChange(ctx context.Context, change ledger.DocumentChange) error {
	_, err := c.pool.Exec(ctx, insertChange,
		uuidToPgtype(change.ID),
		change.UserID,
		change.DocToken,
		ptrToText(change.PreviousModifiedUser),
		ptrToInt8(change.PreviousModifiedTime),
		change.NewModifiedUser,
		change.NewModifiedTime,
		string(change.ChangeType),
		change.Debounced,
		change.NotificationSent,
		timestampToPgtype(change.DetectedAt),
	)
	if err != nil {
		return fmt.Errorf("insert change query failed: %w", err)
	}
	return nil
}

func (c *Client) ListChanges(ctx context.Context, userID, docToken string, limit int) ([]ledger.DocumentChange, error) {
	rows, err := c.pool.Query(ctx, listChanges, userID, docToken, limit)
	if err != nil {
		return nil, fmt.Errorf("list changes query failed: %w", err)
	}
	defer rows.Close()

	var changes []ledger.DocumentChange
	for rows.Next() {
		var (
			id         pgtype.UUID
			change     ledger.DocumentChange
			prevUser   pgtype.Text
			prevTime   pgtype.Int8
			changeType string
			detectedAt pgtype.Timestamp
		)
		if err := rows.Scan(&id, &change.UserID, &change.DocToken,
			&prevUser, &prevTime,
			&change.NewModifiedUser, &change.NewModifiedTime,
			&changeType, &change.Debounced, &change.NotificationSent, &detectedAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		change.ID = uuid.UUID(id.Bytes)
		change.PreviousModifiedUser = textToPtr(prevUser)
		change.PreviousModifiedTime = int8ToPtr(prevTime)
		change.ChangeType = ledger.ChangeType(changeType)
		change.DetectedAt = pgtypeToTime(detectedAt)
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

// --- snapshot.Store ---

func (c *Client) InsertSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	_, err := c.pool.Exec(ctx, insertSnapshot,
		uuidToPgtype(snap.ID),
		snap.DocToken,
		snap.RevisionNumber,
		snap.ContentHash,
		snap.ContentSize,
		snap.CompressedSize,
		snap.CompressionRatio,
		snap.DocType,
		snap.ModifiedBy,
		snap.Compressed,
		timestampToPgtype(snap.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot query failed: %w", err)
	}
	return nil
}

func (c *Client) GetSnapshot(ctx context.Context, docToken string, revisionNumber int64) (*snapshot.Snapshot, error) {
	return c.scanOneSnapshot(c.pool.QueryRow(ctx, getSnapshot, docToken, revisionNumber))
}

func (c *Client) GetLatestSnapshot(ctx context.Context, docToken string) (*snapshot.Snapshot, error) {
	return c.scanOneSnapshot(c.pool.QueryRow(ctx, getLatestSnapshot, docToken))
}

func (c *Client) scanOneSnapshot(row pgx.Row) (*snapshot.Snapshot, error) {
	var (
		id        pgtype.UUID
		snap      snapshot.Snapshot
		createdAt pgtype.Timestamp
	)
	err := row.Scan(&id, &snap.DocToken, &snap.RevisionNumber, &snap.ContentHash,
		&snap.ContentSize, &snap.CompressedSize, &snap.CompressionRatio,
		&snap.DocType, &snap.ModifiedBy, &snap.Compressed, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot query failed: %w", err)
	}
	snap.ID = uuid.UUID(id.Bytes)
	snap.CreatedAt = pgtypeToTime(createdAt)
	return &snap, nil
}

func (c *Client) ListSnapshots(ctx context.Context, docToken string, limit int) ([]snapshot.Snapshot, error) {
	rows, err := c.pool.Query(ctx, listSnapshots, docToken, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots query failed: %w", err)
	}
	defer rows.Close()

	var snaps []snapshot.Snapshot
	for rows.Next() {
		var (
			id        pgtype.UUID
			snap      snapshot.Snapshot
			createdAt pgtype.Timestamp
		)
		// Payload is deliberately not selected for listings.
		if err := rows.Scan(&id, &snap.DocToken, &snap.RevisionNumber, &snap.ContentHash,
			&snap.ContentSize, &snap.CompressedSize, &snap.CompressionRatio,
			&snap.DocType, &snap.ModifiedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.ID = uuid.UUID(id.Bytes)
		snap.CreatedAt = pgtypeToTime(createdAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (c *Client) DeleteSnapshotsBefore(ctx context.Context, docToken string, cutoff time.Time) (int64, error) {
	tag, err := c.pool.Exec(ctx, deleteSnapshotsBefore, timestampToPgtype(cutoff), docToken)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots query failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (c *Client) SnapshotStats(ctx context.Context, docToken string) (snapshot.Stats, error) {
	var stats snapshot.Stats
	err := c.pool.QueryRow(ctx, snapshotStats, docToken).Scan(
		&stats.SnapshotCount, &stats.TotalOriginalBytes, &stats.TotalCompressedBytes)
	if err != nil {
		return snapshot.Stats{}, fmt.Errorf("snapshot stats query failed: %w", err)
	}
	if stats.TotalCompressedBytes > 0 {
		stats.AverageRatio = float64(stats.TotalOriginalBytes) / float64(stats.TotalCompressedBytes)
	}
	return stats, nil
}

// --- rules.Store ---

func (c *Client) InsertRule(ctx context.Context, rule rules.Rule) error {
	values, err := json.Marshal(rule.Condition.Values)
	if err != nil {
		return fmt.Errorf("marshal condition values: %w", err)
	}
	_, err = c.pool.Exec(ctx, insertRule,
		uuidToPgtype(rule.ID),
		rule.DocToken,
		rule.UserID,
		string(rule.Condition.Type),
		values,
		string(rule.Action.Type),
		rule.Action.Target,
		rule.Action.Template,
		rule.Enabled,
		timestampToPgtype(rule.CreatedAt),
		timestampToPgtype(rule.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert rule query failed: %w", err)
	}
	return nil
}

func (c *Client) UpdateRule(ctx context.Context, rule rules.Rule) (bool, error) {
	values, err := json.Marshal(rule.Condition.Values)
	if err != nil {
		return false, fmt.Errorf("marshal condition values: %w", err)
	}
	tag, err := c.pool.Exec(ctx, updateRule,
		uuidToPgtype(rule.ID),
		string(rule.Condition.Type),
		values,
		string(rule.Action.Type),
		rule.Action.Target,
		rule.Action.Template,
		rule.Enabled,
		timestampToPgtype(rule.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("update rule query failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (c *Client) DeleteRule(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := c.pool.Exec(ctx, deleteRule, uuidToPgtype(id))
	if err != nil {
		return false, fmt.Errorf("delete rule query failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (c *Client) GetRule(ctx context.Context, id uuid.UUID) (*rules.Rule, error) {
	rule, err := scanRule(c.pool.QueryRow(ctx, getRule, uuidToPgtype(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule query failed: %w", err)
	}
	return &rule, nil
}

func (c *Client) ListRulesForDoc(ctx context.Context, docToken string, enabledOnly bool) ([]rules.Rule, error) {
	rows, err := c.pool.Query(ctx, listRulesForDoc, docToken, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("list rules query failed: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// --- row scanning ---

func scanTracked(row pgx.Row) (ledger.TrackedDocument, error) {
	var (
		id         pgtype.UUID
		doc        ledger.TrackedDocument
		notifiedAt pgtype.Timestamp
		createdAt  pgtype.Timestamp
		updatedAt  pgtype.Timestamp
	)
	err := row.Scan(&id, &doc.UserID, &doc.DocToken, &doc.DocType, &doc.ChatID,
		&doc.LastKnownUser, &doc.LastKnownTime, &notifiedAt,
		&doc.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return ledger.TrackedDocument{}, err
	}
	doc.ID = uuid.UUID(id.Bytes)
	doc.LastNotificationTime = pgtypeToTime(notifiedAt)
	doc.CreatedAt = pgtypeToTime(createdAt)
	doc.UpdatedAt = pgtypeToTime(updatedAt)
	return doc, nil
}

func scanRule(row pgx.Row) (rules.Rule, error) {
	var (
		id            pgtype.UUID
		rule          rules.Rule
		conditionType string
		valuesJSON    []byte
		actionType    string
		createdAt     pgtype.Timestamp
		updatedAt     pgtype.Timestamp
	)
	err := row.Scan(&id, &rule.DocToken, &rule.UserID,
		&conditionType, &valuesJSON,
		&actionType, &rule.Action.Target, &rule.Action.Template,
		&rule.Enabled, &createdAt, &updatedAt)
	if err != nil {
		return rules.Rule{}, err
	}
	rule.ID = uuid.UUID(id.Bytes)
	rule.Condition.Type = rules.ConditionType(conditionType)
	rule.Action.Type = rules.ActionType(actionType)
	if err := json.Unmarshal(valuesJSON, &rule.Condition.Values); err != nil {
		return rules.Rule{}, fmt.Errorf("unmarshal condition values: %w", err)
	}
	rule.CreatedAt = pgtypeToTime(createdAt)
	rule.UpdatedAt = pgtypeToTime(updatedAt)
	return rule, nil
}

func uuidToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
