// Package config loads coven-lanes configuration.
//
// # File Formats
//
// YAML is the default. Files ending in .toml are decoded as TOML instead.
// Either way ${VAR} references are expanded from the environment before
// parsing, and durations are written as strings ("1.2s", "20s").
//
//	server:
//	  url: "http://localhost:8000"
//	  token: "${COVEN_TOKEN}"
//	sync:
//	  poll_interval: "1.2s"
//	  echo_window: "20s"
//	reveal:
//	  chars_per_second: 20
//	  frame_interval: "50ms"
//	roles:
//	  specialists: [idea_ai, writer_ai, proof_ai, pm_ai]
//	  labels:
//	    idea_ai: "アイデア"
//	store:
//	  path: ":memory:"
//	logging:
//	  level: info
//	  format: text
//	tailscale:
//	  enabled: false
//
// Keys left out keep their Default() values.
//
// # Location
//
// ResolvePath checks COVEN_LANES_CONFIG, then
// $XDG_CONFIG_HOME/coven/lanes.yaml, then ~/.config/coven/lanes.yaml.
// LoadDefault falls back to Default() when nothing exists at the default
// location; an explicitly named file must exist.
package config
