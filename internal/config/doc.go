// Package config loads the askdeck YAML configuration: backend
// endpoints, agent definitions, session persistence, notification and
// polling timings, and logging. Values support ${VAR} environment
// expansion; duration fields are written as Go duration strings.
package config
