// Package tags keeps the per-tag todo counts consistent when a todo's tag
// list changes, without rescanning todos.
package tags
