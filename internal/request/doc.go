// Package request turns request URLs into descriptors for the engine.
//
// Grammar:
//
//	/table[.col1,col2][/rowId]?col=v&col-gt=v&limit:N&sort:-col,col&update:col=v
//
// Condition operators are eq (default), ne, gt, ge, lt, le and like.
// where:<sql> replaces the conditions with raw SQL; attached:field names the
// column that receives a binary upload.
package request
