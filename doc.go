// Package fmorm maps records of a FileMaker database onto models through a relational
// query builder.
//
// # Connecting
//
// The database is reached through a [connection.Store]. [FromConfig] opens a session
// against the FileMaker Data API; tests and tools may pass any other store to [New].
//
// # Querying
//
// [DB.Query] returns a [Builder] for one model spec. Predicates joined by "and" become a
// single find request; as soon as an "or" appears the predicates are split into groups
// that become the sub-requests of a compound find. Values are escaped for the FileMaker
// find syntax except with [Builder.WhereLike], whose pattern is passed as is.
//
//	tasks, err := db.Query(taskSpec).
//		Where("status", "open").
//		OrWhere("status", "blocked").
//		OrderBy("priority", query.Descending).
//		Limit(10).
//		With("notes").
//		Get(ctx)
//
// # Relations
//
// Relations are portals on the model's layout. Relations named in [Builder.With] are read
// from the same response and bound by the [Resolver]; any other relation is fetched on
// first access by re-reading the parent by primary key.
//
// # Writing
//
// [Model.Save] inserts or updates through the [Writer]. Updates carry the record's
// modification id, so the server rejects writes based on stale data.
package fmorm
