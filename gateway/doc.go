// Package gateway implements the client side of a chat-platform bot gateway
// protocol: a long-lived, stateful connection that turns an unreliable
// stream of typed frames into an ordered, gap-free, de-duplicated stream of
// events, and recovers transparently from link failures via a resume
// protocol.
//
// The package does not model chat domain objects. Event payloads are
// opaque JSON; only the sn field is interpreted here.
package gateway
