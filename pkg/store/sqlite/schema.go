package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	tag_mode   TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS projects_name ON projects (upper(name));

CREATE TABLE IF NOT EXISTS equipment (
	id                      TEXT PRIMARY KEY,
	project_id              TEXT NOT NULL REFERENCES projects (id),
	tag_number              TEXT NOT NULL,
	equipment_type          TEXT NOT NULL DEFAULT '',
	description             TEXT NOT NULL DEFAULT '',
	area                    TEXT NOT NULL DEFAULT '',
	manufacturer            TEXT NOT NULL DEFAULT '',
	model                   TEXT NOT NULL DEFAULT '',
	layer                   TEXT NOT NULL DEFAULT '',
	status                  TEXT NOT NULL DEFAULT '',
	source_drawing_id       TEXT,
	source_block_identifier TEXT,
	source_handle           TEXT,
	upstream_id             TEXT,
	downstream_id           TEXT,
	created_at              TEXT NOT NULL,
	modified_at             TEXT NOT NULL,
	is_active               INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS equipment_active_tag
	ON equipment (project_id, upper(tag_number)) WHERE is_active = 1;
CREATE INDEX IF NOT EXISTS equipment_project ON equipment (project_id);

CREATE TABLE IF NOT EXISTS sync_runs (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL REFERENCES projects (id),
	drawing_id        TEXT NOT NULL DEFAULT '',
	direction         TEXT NOT NULL,
	added             INTEGER NOT NULL DEFAULT 0,
	updated           INTEGER NOT NULL DEFAULT 0,
	updated_in_source INTEGER NOT NULL DEFAULT 0,
	missing           INTEGER NOT NULL DEFAULT 0,
	warnings          INTEGER NOT NULL DEFAULT 0,
	started_at        TEXT NOT NULL,
	finished_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS sync_runs_project ON sync_runs (project_id, started_at);
`

const recordColumns = `id, project_id, tag_number, equipment_type, description, area,
	manufacturer, model, layer, status, source_drawing_id, source_block_identifier,
	source_handle, upstream_id, downstream_id, created_at, modified_at, is_active`
