package database

import (
	sq "github.com/Masterminds/squirrel"
	// driver behind the raw *sql.DB that GetVerificationReport queries; the
	// gorm sqlite dialector registers it too
	_ "github.com/mattn/go-sqlite3"
)

// psql builds the hand-written report queries that run on the raw handle.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)
