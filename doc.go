// Package sqlfrag is a dialect-aware SQL composer. It turns registered table metadata and small, independently built SQL fragments into one parameterized statement ({sql, params}) without performing any I/O itself: fragments carry $name placeholders, positional names (_1, _2, ...) are renumbered whenever two fragments are combined, and the fluent Select/Update/Delete builders assemble the final SQL for SQLite, MySQL or PostgreSQL. Execution is delegated to a pluggable driver (see the sqldb package) through the Connection/Stmt contract.

package sqlfrag
