// Package config loads the linkctl configuration.
//
// Layering, later wins: built-in defaults, config/linkctl.yaml when present,
// the file given by --config or LINKCTL_CONFIG, then LINKCTL_* environment
// variables. The result is validated before use.
package config
