// Package config defines the configuration of the recovery tooling.
//
//   - spec.go: Config structure with koanf tags
//   - default.go: default values
//   - load.go: file, environment and flag layering
//   - verify.go: validation
//   - convert.go: mapping onto recovery.Config
package config
