// Package rbac evaluates role-based access over a fixed, totally ordered
// role hierarchy with organizational-unit (department) scoping.
//
// The hierarchy is built once at startup and immutable afterwards. Roles
// compare by positional index, least privileged first; a role absent from
// the hierarchy has no level and fails every privilege check closed.
package rbac
