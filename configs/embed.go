// Package configs provides the embedded configuration template written by
// `hybridrank config init`.
//
// The template carries the same values as config.NewConfig, with comments
// explaining each setting. Edit config.example.yaml and rebuild.
package configs

import _ "embed"

// ConfigTemplate is the commented default configuration, used for both the
// user config and a project .hybridrank.yaml.
//
//go:embed config.example.yaml
var ConfigTemplate string
