/*
Package cli implements the todo-rights command tree.

	todo-rights serve                 run the API and health listeners
	todo-rights migrate [-bootstrap]  create or upgrade the schema
	todo-rights token create|list|revoke|cleanup
	todo-rights grant -user U -type T [-resource R] -rights P [-remove]
	todo-rights check -user U -type T [-resource R] -rights P

Every command reads its configuration from TODO_API_* environment variables
(see package config) and runs the migrations before doing anything else, so
grant and token work against a fresh database.
*/
package cli
