package db

// collectionTable holds one record per job kind, keyed by the kind's
// collection name ("transcripts", "reports").
const collectionTable = "mirror_collection"

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS mirror_collection SCHEMAFULL;
    -- The versioned JSON document produced by jobs.EncodeCollection
    DEFINE FIELD IF NOT EXISTS document ON mirror_collection TYPE string;
    DEFINE FIELD IF NOT EXISTS record_count ON mirror_collection TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS updated_at ON mirror_collection TYPE datetime DEFAULT time::now();
`
