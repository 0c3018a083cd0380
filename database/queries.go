package database

// SQL query constants. Written to stay sqlc-compatible for a future
// migration to generated queries.

const (
	// Reactivates an existing registry row in place, preserving its id
	// and observed state so the audit trail keeps continuity.
	upsertTracked = `
		INSERT INTO TrackedDocuments (id, user_id, doc_token, doc_type, chat_id, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (user_id, doc_token)
		DO UPDATE SET
			is_active = TRUE,
			doc_type = EXCLUDED.doc_type,
			chat_id = EXCLUDED.chat_id,
			updated_at = NOW()
		RETURNING id, user_id, doc_token, doc_type, chat_id,
			last_known_user, last_known_time, last_notification_time,
			is_active, created_at, updated_at`

	getTracked = `
		SELECT id, user_id, doc_token, doc_type, chat_id,
			last_known_user, last_known_time, last_notification_time,
			is_active, created_at, updated_at
		FROM TrackedDocuments
		WHERE user_id = $1 AND doc_token = $2`

	listActiveTracked = `
		SELECT id, user_id, doc_token, doc_type, chat_id,
			last_known_user, last_known_time, last_notification_time,
			is_active, created_at, updated_at
		FROM TrackedDocuments
		WHERE is_active
		ORDER BY created_at`

	deactivateTracked = `
		UPDATE TrackedDocuments
		SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND doc_token = $2 AND is_active`

	updateTrackedState = `
		UPDATE TrackedDocuments
		SET last_known_user = $3,
			last_known_time = $4,
			last_notification_time = $5,
			updated_at = NOW()
		WHERE user_id = $1 AND doc_token = $2 AND is_active`

	insertChange = `
		INSERT INTO DocumentChanges (
			id, user_id, doc_token,
			previous_modified_user, previous_modified_time,
			new_modified_user, new_modified_time,
			change_type, debounced, notification_sent, detected_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	listChanges = `
		SELECT id, user_id, doc_token,
			previous_modified_user, previous_modified_time,
			new_modified_user, new_modified_time,
			change_type, debounced, notification_sent, detected_at
		FROM DocumentChanges
		WHERE user_id = $1 AND doc_token = $2
		ORDER BY detected_at DESC
		LIMIT $3`

	insertSnapshot = `
		INSERT INTO DocumentSnapshots (
			id, doc_token, revision_number, content_hash,
			content_size, compressed_size, compression_ratio,
			doc_type, modified_by, compressed_content, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (doc_token, revision_number) DO NOTHING`

	getSnapshot = `
		SELECT id, doc_token, revision_number, content_hash,
			content_size, compressed_size, compression_ratio,
			doc_type, modified_by, compressed_content, created_at
		FROM DocumentSnapshots
		WHERE doc_token = $1 AND revision_number = $2`

	getLatestSnapshot = `
		SELECT id, doc_token, revision_number, content_hash,
			content_size, compressed_size, compression_ratio,
			doc_type, modified_by, compressed_content, created_at
		FROM DocumentSnapshots
		WHERE doc_token = $1
		ORDER BY revision_number DESC
		LIMIT 1`

	listSnapshots = `
		SELECT id, doc_token, revision_number, content_hash,
			content_size, compressed_size, compression_ratio,
			doc_type, modified_by, created_at
		FROM DocumentSnapshots
		WHERE doc_token = $1
		ORDER BY revision_number DESC
		LIMIT $2`

	deleteSnapshotsBefore = `
		DELETE FROM DocumentSnapshots
		WHERE created_at < $1 AND ($2 = '' OR doc_token = $2)`

	snapshotStats = `
		SELECT COUNT(*),
			COALESCE(SUM(content_size), 0),
			COALESCE(SUM(compressed_size), 0)
		FROM DocumentSnapshots
		WHERE ($1 = '' OR doc_token = $1)`

	insertRule = `
		INSERT INTO ChangeRules (
			id, doc_token, user_id,
			condition_type, condition_values,
			action_type, action_target, action_template,
			enabled, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	updateRule = `
		UPDATE ChangeRules
		SET condition_type = $2,
			condition_values = $3,
			action_type = $4,
			action_target = $5,
			action_template = $6,
			enabled = $7,
			updated_at = $8
		WHERE id = $1`

	deleteRule = `DELETE FROM ChangeRules WHERE id = $1`

	getRule = `
		SELECT id, doc_token, user_id,
			condition_type, condition_values,
			action_type, action_target, action_template,
			enabled, created_at, updated_at
		FROM ChangeRules
		WHERE id = $1`

	listRulesForDoc = `
		SELECT id, doc_token, user_id,
			condition_type, condition_values,
			action_type, action_target, action_template,
			enabled, created_at, updated_at
		FROM ChangeRules
		WHERE doc_token = $1 AND ($2 = FALSE OR enabled)
		ORDER BY created_at`
)
