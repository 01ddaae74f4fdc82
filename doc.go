// Package authcore is the authentication, session, and access-control core
// of the Stratus workforce platform. It issues and verifies the three
// credential classes (access, refresh, password reset), tracks which
// refresh credentials are live in a Redis-backed revocation registry,
// enforces the role hierarchy and department scoping, and sheds load
// through fixed-window admission budgets.
//
// The entry point is the [Builder]:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithIdentityStore(store).
//		Build()
//
// Callers own the principal database behind [IdentityStore]; the engine
// owns everything credential shaped. The session registry fails closed
// (a credential that cannot be proven live is dead) while admission fails
// open (a rate limiter outage never locks the workforce out).
package authcore
