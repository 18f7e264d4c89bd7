package db

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS transcription_jobs (
    id               UUID PRIMARY KEY,
    user_id          TEXT NOT NULL,
    file_name        TEXT NOT NULL,
    format           TEXT NOT NULL,
    model            TEXT NOT NULL,
    meeting_type     TEXT NOT NULL DEFAULT 'support',
    status           TEXT NOT NULL DEFAULT 'pending',
    progress_stage   TEXT NOT NULL DEFAULT '',
    progress_message TEXT NOT NULL DEFAULT '',
    transcript       TEXT,
    error_code       TEXT,
    error_message    TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS transcription_jobs_user_created_idx
    ON transcription_jobs (user_id, created_at DESC);
`

// Migrate creates the job ledger table when it does not exist yet.
func Migrate(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, schema)
	return err
}
