// Package config defines the options of a crawl run, their defaults and
// validation, and the optional per-host YAML configuration file.
package config
