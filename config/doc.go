// Package config loads the bridge configuration.
//
// Configuration is built in layers: built-in defaults, then each file added
// with AddLayer (JSON, or YAML for .yaml/.yml), then environment overrides
// prefixed with AMMBRIDGE_. Each layer only overrides the keys it sets.
// Durations may be written as strings such as "2s".
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/ammbridge.yaml")
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// Load validates the result unless validation is disabled; every validation
// or parse failure wraps errors.ErrInvalidConfig.
package config
