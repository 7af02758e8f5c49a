// Package httputil provides shared HTTP response utilities for handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter
// calls so every endpoint formats JSON and errors the same way.
package httputil
