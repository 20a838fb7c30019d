// Package auth implements taskdesk's credential flows and role gates.
//
// # Overview
//
// Passwords are hashed with bcrypt (BcryptHasher). Logins return a pair of
// tokens: a short-lived HS256 JWT access token carrying the user id, username
// and role, and an opaque random refresh token stored on the user record.
//
//	issuer := auth.NewTokenIssuer(cfg.Auth)
//	svc, err := auth.NewService(auth.ServiceConfig{
//		Store:  users.NewSQLStore(db),
//		Hasher: auth.NewBcryptHasher(cfg.Auth.BcryptCost),
//		Tokens: issuer,
//	})
//	resp, err := svc.Authenticate(ctx, "alice", "secret")
//
// # Refresh rotation
//
// A user holds at most one refresh token. Login overwrites it, and Refresh
// swaps it with a compare-and-swap on the stored value, so a token can be
// exchanged once. A second exchange of the same token fails with
// ErrInvalidRefreshToken even when two requests race.
//
// # Policy
//
// Authorization is a fixed table from Action to the roles allowed:
//
//	users:list         admin, manager
//	tasks:list         admin, manager
//	tasks:list_own     admin, manager, worker
//	users:change_role  admin
//	users:delete       admin
//	tasks:write        admin, manager
//	news:write         admin, manager
//	users:update_any   admin
//
// Unknown roles are denied every action.
package auth
