// Package host models the external framework that owns some of the objects
// the reload engine manages.
//
// Host-owned objects live as components inside a Container. The engine never
// retypes them in place: it asks the container to detach the old component
// and attach a new one of the replacement type. Container lifecycle calls are
// expected on a single goroutine, which the Scheduler abstraction provides.
//
// The package is also the library that interpreted source units can import
// (as "hotswap/pkg/host") for framework value types such as Vector3.
package host
