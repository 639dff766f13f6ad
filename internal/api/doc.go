// Package api exposes the gateway over HTTP.
//
// Endpoints:
//   - GET    /api/models       - available model mappings
//   - POST   /api/chat         - stream one generated response (text/plain)
//   - GET    /api/chats        - list saved sessions, most recent first
//   - GET    /api/chats/{id}   - load one session
//   - POST   /api/chats        - save or overwrite a session
//   - DELETE /api/chats/{id}   - delete a session
//   - GET    /health           - liveness probe, outside the middleware stack
//
// POST /api/chat is the only non-JSON response: fragments are written and
// flushed as they arrive from the relay, so the client sees text the moment
// the model produces it. Everything else is buffered JSON.
package api
