// Package config handles configuration loading for coven-chat.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by the .toml
// extension) with environment variable expansion, defaults and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/chat.yaml
//  3. ~/.config/coven/chat.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:3001"
//
//	tailscale:
//	  enabled: false
//	  hostname: "coven-chat"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//
//	database:
//	  driver: "sqlite"        # sqlite (modernc) or sqlite3 (cgo)
//	  path: "~/.local/share/coven/chat.db"
//
//	auth:
//	  jwt_secret: "${JWT_SECRET}"   # at least 32 bytes
//
//	embedding:
//	  provider: "huggingface"  # huggingface, hashing, none
//	  api_token: "${HF_TOKEN}"
//	  model: "sentence-transformers/all-MiniLM-L6-v2"
//	  dimensions: 384
//	  timeout: "5s"
//
//	realtime:
//	  allowed_origins: ["http://localhost:3000"]
//	  send_buffer: 64
//	  write_wait: "10s"
//	  pong_wait: "60s"
//
//	history:
//	  default_limit: 50
//	  max_limit: 500
//
//	search:
//	  default_k: 10
//	  max_k: 100
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
