// Package stores holds small Redis-backed state stores used by the engine
// that do not warrant a public package of their own.
package stores
