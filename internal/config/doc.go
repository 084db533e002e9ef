// Package config loads the bundlebuilder.yaml project file: target, output and
// temp folders, compression, cache backend, logging and the bundle
// definitions. ${VAR} references are expanded after .env files next to the
// config are loaded; relative paths resolve against the project root.
package config
