// Package grpcclient drives a bidirectional chat stream over gRPC without
// generated stubs. The method and its messages are resolved at runtime from
// a .proto file, or from a built-in chat schema, and carried as dynamic
// messages.
package grpcclient
