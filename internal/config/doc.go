// Package config defines the updater settings file and helpers to load,
// validate and save it in YAML format.
//
// Every field has a built-in default, so the file is optional; command-line
// flags override whatever the file provides.
package config
