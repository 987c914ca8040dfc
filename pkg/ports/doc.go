// Package ports defines the interfaces between the execution core and its
// collaborators: snapshot persistence, model invocation, prompt construction
// and phase execution. Adapters live under internal/adapters and pkg/adapters.
package ports
