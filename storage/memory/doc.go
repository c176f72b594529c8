// Package memory provides an in-memory implementation of storage.Backend.
//
// It is suitable for tests and for single-process deployments that can afford
// to lose every issued token on restart. Transactions lock the whole store and
// keep an undo log, so a failed storage.Gateway.Atomic section leaves no
// partial writes behind.
//
// Example usage:
//
//	gateway := storage.NewGateway(memory.New())
//	defer gateway.Close()
package memory
