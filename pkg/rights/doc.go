// Package rights implements the per-user, per-resource permission model of the
// todo API.
//
// # Overview
//
// Every resource (a tenant, a user, a todo, a tag, one of their collections)
// is protected by rights rows. A row grants one user a Permission bitset on one
// resource for one RightType:
//
//	(user, resource, type) -> Permission
//
// A request is allowed when the granted bitset contains every bit of the
// required one (see Allow). There are no roles and no deny entries: a missing
// row simply grants nothing.
//
// # Permissions
//
// Primitive rights cover HTTP verbs and the administration of rights:
//
//	Get, Put (alias Patch), Post, Delete
//	GetPermissions, PutPermissions, GetInheritPermissions, PutInheritPermissions
//	Inherited, Owner, Creator
//
// Composites such as AllAccess, FullControl and FullCreatorOwner are plain OR
// combinations. Permissions marshal to names ("Get|Post") so they can appear
// in policy names and JSON bodies.
//
// # Inheritance
//
// A UserInheritRight row lives on a parent resource and says which rights a
// user receives on children of a given type. When a user creates a child,
// CreateRights consults the parent's rules named by the InheritForm: rules in
// InheritedTypes are granted on the child (marked Inherited), rules in
// CopyInheritTypes are copied onto the child so they reach grandchildren.
//
// # Stores
//
// Three Store implementations are provided:
//
//	SQLStore     - database/sql, sqlite3 or postgres dialect, transactional batches
//	RedisStore   - one hash per row with set indexes, sequential batches
//	CachedStore  - TTL LRU decorator for Get with singleflight loading
//
// Infrastructure failures are wrapped with ErrStoreUnavailable. They are never
// reported as "no right": callers decide whether to retry or fail the request.
//
// # Usage
//
//	store := rights.NewSQLStore(db, storage.DialectSQLite)
//	p := rights.NewPropagator(store)
//	_, err := p.Create(ctx, rights.CreateRequest{
//		CreatorID:  userID,
//		ResourceID: todoID,
//		Type:       rights.Todo,
//		CollectionRights: map[rights.RightType]rights.Permission{
//			rights.TodoTagCollection: rights.AllAccess,
//		},
//	})
//
//	allowed, err := rights.NewResolver(store).IsAllowed(ctx, userID, todoID, rights.Todo, rights.Put)
package rights
