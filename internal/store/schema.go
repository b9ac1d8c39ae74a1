package store

const SchemaVersion = 2

const schemaSQL = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

-- Memory record metadata
CREATE TABLE IF NOT EXISTS memories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    spec_folder TEXT NOT NULL,
    file_path TEXT NOT NULL,
    anchor_id TEXT,
    title TEXT NOT NULL,
    trigger_phrases TEXT NOT NULL DEFAULT '[]',
    importance_weight REAL NOT NULL DEFAULT 0.5,
    embedding_status TEXT NOT NULL DEFAULT 'pending',
    retry_count INTEGER NOT NULL DEFAULT 0,
    failure_reason TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    embedding_generated_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_memories_folder ON memories(spec_folder);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(embedding_status);

-- Embedding vectors, owned 1:1 by memories via shared id. Vectors are
-- little-endian float32 blobs of the store-wide dimension.
CREATE TABLE IF NOT EXISTS memory_vectors (
    id INTEGER PRIMARY KEY,
    embedding BLOB NOT NULL
);

-- Store-wide settings (embedding dimension is fixed at creation time)
CREATE TABLE IF NOT EXISTS store_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

func GetSchema() string {
	return schemaSQL
}

func GetSchemaVersion() int {
	return SchemaVersion
}
