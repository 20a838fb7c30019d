// Package api provides the HTTP REST API server for taskdesk.
//
// # Overview
//
// The API is built on gorilla/mux and organized into handler groups, each
// registering its own routes:
//
//   - AuthHandlers: login, registration and refresh token exchange (rate limited)
//   - UserHandlers: user listing, profile updates, roles, task assignment, pictures
//   - TaskHandlers: task CRUD and per-user task lists
//   - NewsHandlers: dashboard announcements
//
// # Usage
//
//	server, err := api.NewServer(api.Dependencies{
//		Auth:              authService,
//		Users:             userService,
//		Tasks:             tasks.NewSQLService(db),
//		News:              news.NewSQLService(db),
//		Authenticator:     authn,
//		CredentialLimiter: limiter,
//		Server:            cfg.Server,
//		Uploads:           cfg.Uploads,
//		Logger:            logger,
//		Metrics:           metrics,
//		Audit:             auditLogger,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Access Control
//
// Every route except login, register, refresh and picture downloads needs a
// bearer access token. Role checks follow the auth policy table; routes that
// act on a user also admit the user themselves where the action allows it.
//
// # Errors
//
// Errors are JSON {"error": "<message>"} with the status of their apperr
// kind. Internal errors are logged with the request id and answered with
// "internal server error".
package api
