// Package config manages per-repository configuration for the watcher and
// its CI status providers.
package config
