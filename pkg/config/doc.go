// Package config provides application configuration management.
//
// # Overview
//
// Configuration is built once at startup and passed down as an immutable
// value. Sources are applied in order: built-in defaults, an optional YAML
// file (-config flag), then TASKDESK_* environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	TASKDESK_HOST="0.0.0.0"
//	TASKDESK_PORT="8080"
//	TASKDESK_HEALTH_PORT="9090"
//	TASKDESK_ALLOWED_ORIGINS="http://localhost:3000"
//	TASKDESK_MAX_BODY_BYTES="1048576"
//
// Database settings:
//
//	TASKDESK_DB_DRIVER="postgres"  # postgres or sqlite3
//	TASKDESK_DB_URL="postgres://localhost/taskdesk?sslmode=disable"
//
// Auth settings:
//
//	TASKDESK_JWT_SIGNING_KEY="..."  # required, at least 32 bytes
//	TASKDESK_ACCESS_TOKEN_TTL="15m"
//	TASKDESK_BCRYPT_COST="10"
//	TASKDESK_LOGIN_RATE_LIMIT="10"
//
// Upload settings:
//
//	TASKDESK_UPLOADS_BACKEND="filesystem"  # filesystem or s3
//	TASKDESK_UPLOADS_DIR="wwwroot/uploads/profile-pictures"
//	TASKDESK_S3_BUCKET="taskdesk-pictures"
//
// Redis enables the shared login rate limiter:
//
//	TASKDESK_REDIS_URL="redis://localhost:6379"
//
// # Usage
//
//	cfg, err := config.LoadConfig(*configPath)
//	if err != nil {
//		log.Fatal(err)
//	}
package config
