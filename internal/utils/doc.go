// Package utils holds the HTTP plumbing shared by the model provider, the
// webhook and messenger clients: a JSON POST round-trip ([DoPostSync]) that
// reports to the current span and types non-2xx answers as [StatusError].
package utils
