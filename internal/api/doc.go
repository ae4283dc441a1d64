// Package api contains the HTTP handlers, request/response models, and
// error mapping for the task API. Handlers validate input, delegate to
// the services, and translate service errors into sanitized HTTP
// responses.
package api
