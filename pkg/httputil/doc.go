// Package httputil holds the JSON request and response helpers shared by the
// rights API, the authorization middleware and the rate limiter, plus the
// generic HTTP middleware applied to every route.
//
// Errors are always written as {"error": "..."}:
//
//	var req GrantRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
package httputil
