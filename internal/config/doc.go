// Package config defines the daemon settings and helpers to load, validate
// and save them.
//
// Settings are read from a YAML or TOML file (chosen by extension), may be
// overridden by CLI flags, and the bot token falls back to the
// UBERWACHER_BOT_TOKEN environment variable, which can also come from a
// .env file.
package config
