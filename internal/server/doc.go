// Package server exposes the user-data store over a JSON HTTP API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [BasicRouter] implements it on a chi mux; [Middleware] wraps handlers in reverse order
// (last added executes first).
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
// The health check and the Prometheus endpoint are registered this way.
//
// # Sessions
//
// [Authenticator] signs an HS256 JWT carrying the username (subject) and role, stored in the
// "auth" cookie. The owner logs in with the USERNAME/PASSWORD pair from the environment and
// never needs a stored account; everyone else is checked against the backend.
//
// # Endpoints
//
//	POST   /api/login, /api/logout, /api/register, /api/change-password
//	GET    POST DELETE  /api/playrecords, /api/favorites, /api/skipconfigs  (?key=source+id)
//	GET    POST DELETE  /api/searchhistory                                  (?keyword=)
//	GET    PUT  PATCH   /api/settings
//	GET    /api/admin/users, DELETE /api/admin/users/{username}             (owner only)
//	GET    PUT          /api/admin/config                                   (owner only)
//	GET    /healthz, /metrics
//
// Storage errors are logged and answered with 500; absent records become 404.
package server
