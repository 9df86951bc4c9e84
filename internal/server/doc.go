// Package server provides the sign-in web service, its router and middleware.
//
// # Routes
//
//	GET /              follower player page; without a session, redirects into authorization
//	GET /main          leader status: display name, now playing, followers
//	GET /main/register authorization for the leader (refused while one is registered)
//	GET /main/reset    deletes the leader credential
//	GET /logout        deletes the session's credential in the background
//	GET /callback      OAuth callback, see [CallbackHandler]
//	GET /token         fresh access token for the browser player
//	GET /now-playing   last published snapshot as JSON
//
// # Sessions
//
// Browser sessions are server side. The cookie carries a random id that [SessionTable] maps to a Spotify user id.
// OAuth state nonces are tracked by [StateTable] and carry the role (leader or follower) of the authorization.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] registers method patterns on an
// [http.ServeMux]. Custom handlers implement [Handler], which adds Routes to [http.Handler] so a handler can own
// several paths.
package server
