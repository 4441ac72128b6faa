// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	asset TEXT NOT NULL,
	price TEXT NOT NULL,
	quantity TEXT NOT NULL,
	delta TEXT NOT NULL,
	balance TEXT NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
`
