// Package webadmin provides the browser console for license key
// administration.
//
// # Clients
//
// Each browser gets a console client, identified by a signed cookie
// (keyconsole_client). A client owns its own session store, license key
// workflow and view state, and is kept in an idle-expiring registry. When a
// client is created its stored session is verified against the auth service
// in the background; requests wait briefly for the answer before falling
// back to a loading placeholder.
//
// # Routes
//
//	GET  /login                 login form, with the code field during MFA
//	POST /login                 submit credentials or the MFA code
//	GET  /                      tab shell (?tab=license|security|settings)
//	POST /logout                end the session
//	POST /keys/refresh          reload keys from the key service
//	POST /keys/dialog           open or close the generate dialog
//	POST /keys/generate         issue a key with the chosen expiry
//	POST /keys/revoke           revoke a key
//	POST /notices/dismiss       clear notices
//	POST /security/toggle/{n}   flip a security toggle
//	POST /banner/dismiss        hide the restricted access banner
//
// Every route except /login and /static/ sits behind the route guard: a
// placeholder while the session is being verified, a redirect to /login
// when it is not authenticated.
//
// # CSRF Protection
//
// All form submissions require CSRF tokens:
//
//	<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
//
// The token is compared against the keyconsole_csrf cookie. The
// X-CSRF-Token header is accepted in place of the form field.
//
// # Usage
//
//	admin := webadmin.New(webadmin.Options{Backend: client, Tokens: tokens, Logger: logger})
//	defer admin.Close()
//	admin.RegisterRoutes(mux)
package webadmin
