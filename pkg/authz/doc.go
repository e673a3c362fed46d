// Package authz turns rights grants into per-request authorization decisions.
//
// A route declares what it needs as a policy name such as
//
//	Todo:Put:id        Put on the Todo whose id is the "id" route variable
//	Root:FullControl:root
//
// The PolicyProvider decodes the name into a Requirement, and the Handler
// proves it by looking up the caller's grant. Decisions are additive: a
// requirement is either Satisfied or left Unsatisfied, never denied, so any
// one of several requirements is enough. Store faults are errors, not denials.
package authz
