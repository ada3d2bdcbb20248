package postgres

// schema creates all tables and the change-feed trigger if they don't
// exist. The trigger publishes each comment insert on the NOTIFY
// channel consumed by the feed subscriber; payloads larger than the
// 8000-byte NOTIFY limit degrade to id-only envelopes, which the
// consumer resolves with a follow-up select.
const schema = `
CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	post_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);

CREATE TABLE IF NOT EXISTS comment_embeddings (
	comment_id TEXT PRIMARY KEY REFERENCES comments(id),
	embedding  FLOAT8[] NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS feedback_analysis (
	comment_id         TEXT PRIMARY KEY REFERENCES comments(id),
	sentiment_score    FLOAT8 NOT NULL,
	category           TEXT NOT NULL,
	priority_score     FLOAT8 NOT NULL,
	actionable_summary TEXT NOT NULL DEFAULT '',
	keywords           TEXT[] NOT NULL DEFAULT '{}',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS monitored_posts (
	id        TEXT PRIMARY KEY,
	post_id   TEXT NOT NULL,
	repo_id   TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_monitored_posts_post ON monitored_posts(post_id);

CREATE TABLE IF NOT EXISTS agent_tasks (
	id                TEXT PRIMARY KEY,
	monitored_post_id TEXT,
	task_type         TEXT NOT NULL,
	status            TEXT NOT NULL,
	current_step      TEXT NOT NULL DEFAULT '',
	logs              JSONB NOT NULL DEFAULT '[]',
	result            JSONB,
	last_heartbeat    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_agent_tasks_status ON agent_tasks(status);

CREATE OR REPLACE FUNCTION notify_comment_insert() RETURNS TRIGGER AS $$
DECLARE
	payload TEXT;
BEGIN
	payload := json_build_object('new', row_to_json(NEW))::text;
	IF octet_length(payload) > 7900 THEN
		payload := json_build_object('new', json_build_object('id', NEW.id))::text;
	END IF;
	PERFORM pg_notify('comments_insert', payload);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS comments_insert_notify ON comments;
CREATE TRIGGER comments_insert_notify
	AFTER INSERT ON comments
	FOR EACH ROW EXECUTE FUNCTION notify_comment_insert();
`
