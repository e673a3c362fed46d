// Package middleware provides the HTTP middleware in front of the rights API:
// request ids, bearer token authentication and rate limiting.
//
//	router.Use(middleware.RequestID(logger))
//	router.Use(middleware.NewAuthMiddleware(tokenManager, true, audit).Handler)
//	router.Use(middleware.RateLimit(middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())))
//
// AuthMiddleware in optional mode lets anonymous requests through; the
// authorizer in pkg/authz then answers 401 where a policy applies.
//
// RedisRateLimiter shares limits between instances. When Redis is down the
// request is allowed and a warning is logged.
package middleware
