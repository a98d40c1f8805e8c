// Package configs provides the embedded sample configuration for vecsync.
//
// The template is embedded at build time with go:embed so it ships with
// every distribution of the binary. `vecsync init` writes it verbatim to
// vecsync.yaml in the working directory; internal/config then layers the
// file over hardcoded defaults and VECSYNC_* environment overrides.
//
// To change the sample, edit vecsync.example.yaml and rebuild. Keep it in
// sync with the defaults in internal/config/config.go so a freshly
// written config describes the behavior the user actually gets.
package configs

import _ "embed"

// SampleConfig is the commented configuration template written by
// `vecsync init`. Every section is spelled out, with optional settings
// left commented at their defaults.
//
//go:embed vecsync.example.yaml
var SampleConfig string
