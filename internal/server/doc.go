// Package server is the HTTP delivery endpoint built on fiber.
//
// Routes:
//
//	POST   /api/download   submit {url}; wait up to server.submit_wait_seconds
//	GET    /api/jobs       list jobs, ?status=ready,failed
//	GET    /api/jobs/:id   job view
//	DELETE /api/jobs/:id   cancel
//	GET    /files/:name    stream a ready artifact (HEAD reports headers only)
//	GET    /health         liveness and dependency report
//
// Errors are rendered as {detail, kind}. Internal failure kinds return a
// generic detail and the root cause is logged instead. Throttling responses
// carry Retry-After.
package server
