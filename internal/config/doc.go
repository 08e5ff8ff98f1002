// Package config resolves poemhub's runtime configuration.
//
// # Resolution Order
//
//  1. Built-in defaults (see Default)
//  2. The TOML file passed to Load, or ~/.config/poemhub/config.toml
//  3. Environment variables
//
// A missing config file is not an error. Empty values never override.
//
// # TOML Format
//
//	[storage]
//	driver = "rest"            # rest | postgres | sqlite | memory
//	sqlite_path = "~/.local/share/poemhub/poemhub.db"
//	postgres_dsn = "postgres://localhost/poemhub?sslmode=disable"
//	supabase_url = "https://example.supabase.co"
//	supabase_anon_key = "..."
//
//	[chatbot]
//	url = "https://zjf123.app.n8n.cloud/webhook/chatbot"
//	timeout = "30s"
//
//	[http]
//	addr = "127.0.0.1:8080"
//
//	[log]
//	level = "info"             # debug | info | warn | error
//	format = "json"            # json | console
//
//	[blob]
//	driver = "fs"              # fs | memory | s3
//	dir = "~/.local/share/poemhub/blobs"
//	s3_bucket = "poemhub-exports"
//	s3_region = "us-east-1"
//	s3_endpoint = ""
//	s3_path_style = false
//	s3_access_key_id = ""      # empty uses the AWS default chain
//	s3_secret_access_key = ""
//
// # Environment
//
// POEMHUB_STORAGE_DRIVER, POEMHUB_SQLITE_PATH, POEMHUB_POSTGRES_DSN,
// SUPABASE_URL, SUPABASE_ANON_KEY, POEMHUB_CHATBOT_URL, POEMHUB_CHATBOT_TIMEOUT,
// POEMHUB_HTTP_ADDR, POEMHUB_LOG_LEVEL, POEMHUB_LOG_FORMAT, POEMHUB_BLOB_DRIVER,
// POEMHUB_BLOB_DIR, POEMHUB_BLOB_S3_BUCKET, POEMHUB_BLOB_S3_REGION,
// POEMHUB_BLOB_S3_ENDPOINT, POEMHUB_BLOB_S3_PATH_STYLE,
// POEMHUB_BLOB_S3_ACCESS_KEY_ID and POEMHUB_BLOB_S3_SECRET_ACCESS_KEY.
//
// Tilde paths are expanded for the config file, sqlite_path and blob dir.
package config
