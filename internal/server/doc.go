// Package server provides HTTP routing, middleware, and the download status server.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with a method table per path,
// so one path can serve both GET and POST.
//
// # Status Server
//
// The status server is how screens other than the progress panel learn about downloads.
// [API] exposes the process-wide tracker as JSON:
//
//	GET  /api/panel               current panel visibility
//	POST /api/panel               {"action": "show"|"hide"|"peek"|"unpeek"}
//	GET  /api/progress            reconciled snapshot (overall, entries, jobs)
//	POST /api/downloads           {"link": "..."} submits a download (202)
//	POST /api/downloads/cancel    {"job_id": "..."} or {"link": "..."} (202)
//	POST /api/downloads/ack       {"job_id": "..."} forgets a finished job
//	POST /api/stream/resubscribe  reopens push subscriptions after a stream failure
//
// Errors are returned as {"detail": "..."}, the same shape the download service uses.
// Invalid input maps to 400 and upstream submission or cancel failures to 502.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// [EventsHandler] is one: it serves GET /api/events as server-sent events, writing a `snapshot` event
// whenever the reconciled view changes and a `panel` event whenever visibility changes.
package server
