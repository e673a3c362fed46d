// Package api serves the rights administration HTTP API.
//
// # Routes
//
//	GET    /rights/{resourceId}/users/{userId}                               effective rights
//	GET    /rights/{resourceId}/users/{userId}/types/{type}                  one grant
//	PUT    /rights/{resourceId}/users/{userId}/types/{type}                  {"rights":"Get|Put"}
//	DELETE /rights/{resourceId}/users/{userId}/types/{type}
//	GET    /rights/{resourceId}/users/{userId}/inherit                       inheritance rules
//	PUT    /rights/{resourceId}/users/{userId}/inherit/{type}/{inheritType}  {"rights":"FullControl"}
//	DELETE /rights/{resourceId}/users/{userId}/inherit/{type}/{inheritType}
//	POST   /resources                                                        initial grants of a new resource
//	DELETE /resources/{resourceId}                                           every grant on a resource
//	PUT    /todos/{todoId}/tags                                              {"old":[...],"new":[...]}
//	GET    /tags/{tagId}/count
//
// # Authorization
//
// Routes with a {type} variable need the matching control right on that
// type of the resource, or on Root. Users may always read their own grants.
// Resource creation and removal need Post and Delete on Root; resource
// controllers call them with a service token. Tag reconciliation needs Put
// on the todo.
//
// Those root and todo checks are encoded policy names passed to
// Authorizer.RequirePolicy next to a named policy (PolicyRightsReaders,
// PolicyResourceCreators, PolicyResourceRemovers, PolicyTagEditors). Defining
// a named policy in the policy file widens who may use the route.
//
// Every write is recorded through auth.AuditLogger.
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		Store:      store,
//		Counter:    counter,
//		Authorizer: authorizer,
//		Logger:     logger,
//	})
//	server.Router().Use(authMiddleware.Handler)
//	http.ListenAndServe(":8080", server)
package api
