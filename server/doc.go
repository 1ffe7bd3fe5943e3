// Package server exposes registered workflows over HTTP.
//
// Routes:
//
//	GET  /.well-known/agent.json   Agent Card (no auth)
//	GET  /health                   health report (no auth)
//	POST /invoke                   {"workflow"|"skill", "id", "input"} envelope
//	GET  <workflow path>           workflow info
//	POST <workflow path>           body is the workflow input
//
// Unmatched paths answer with a structured 404 listing the known endpoints.
//
// Every request passes, outermost first, the logging, CORS, bearer auth and
// rate limit middlewares; a recover middleware wraps the routes so a
// panicking workflow never takes the process down.
//
// Start blocks until the server is stopped, either by Stop, by cancelling
// its context or by SIGINT/SIGTERM. On unix SIGUSR1 logs health and stats
// without stopping.
package server
