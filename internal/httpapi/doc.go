// Package httpapi serves the engine over HTTP.
//
// GET reads rows, or claims them when the query carries update: keys. POST
// writes a JSON object or array and answers with the identity of each
// submitted row. Bodies and responses are JSON.
//
// Engine error kinds map to statuses:
//
//	SCHEMA      404
//	VALIDATION  400
//	QUERY       400
//	CONSTRAINT  409
//	TRANSPORT   503
//
// Anything else, including a consistency fault, is a 500.
package httpapi
