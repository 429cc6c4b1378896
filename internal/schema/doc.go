// Package schema loads table definitions from a schema document and exposes
// them through an immutable Catalog.
//
// A schema document lists tables with their columns and indexes:
//
//	tables:
//	  - name: url
//	    columns: [{name: id, type: integer}, {name: url, type: text}]
//	    indexes:
//	      - {columns: [id], primaryKey: true}
//	      - {columns: [url], unique: true}
//
// Documents may be JSON (comments and trailing commas allowed), YAML or CUE.
// Whatever the format, the document is unified with the #Schema definition in
// schema.cue before it is decoded, so structural mistakes fail at start-up with
// a positioned message instead of surfacing as SQL errors later.
//
// For each table the index flagged primaryKey supplies the primary key, and
// the first index flagged unique supplies the unique constraint. Without a
// unique index the unique constraint equals the primary key.
package schema
