package db

import _ "embed"

//go:embed schema.sql
var Schema string

//go:embed schema_postgres.sql
var PostgresSchema string

// DateLayout is how calendar dates are stored in the date_* columns.
const DateLayout = "2006-01-02"
