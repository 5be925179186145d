// Package config provides application configuration from an optional YAML
// file and environment variables.
//
// # Overview
//
// LoadConfig starts from Default, overlays the YAML file named by
// AFFILIATE_CONFIG_FILE, then applies AFFILIATE_* environment variables and
// validates the result.
//
// # Configuration Structure
//
// Server settings:
//
//	AFFILIATE_HOST="0.0.0.0"
//	AFFILIATE_PORT="8080"
//	AFFILIATE_HEALTH_PORT="9090"
//	AFFILIATE_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	AFFILIATE_POSTGRES_URL="postgres://localhost/affiliates"
//	AFFILIATE_POSTGRES_REPLICA_URLS="postgres://replica1/affiliates,postgres://replica2/affiliates"
//	AFFILIATE_POSTGRES_MAX_CONNS="20"
//
// Invitations:
//
//	AFFILIATE_INVITE_BASE_URL="https://app.example.com"
//	AFFILIATE_INVITE_HOURLY_LIMIT="50"
//	AFFILIATE_INVITE_PURGE_SCHEDULE="17 * * * *"
//	AFFILIATE_REDIS_URL="redis://localhost:6379"  # empty: in-process limiter
//
// Tenancy and identity:
//
//	AFFILIATE_TENANT_REQUIRE_EXPLICIT_ORG="false"
//	AFFILIATE_TENANT_SELECTOR_HEADER="X-Organization"
//	AFFILIATE_JWT_SECRET="..."
//	AFFILIATE_JWT_ISSUER="https://id.example.com"
//
// Observability settings:
//
//	AFFILIATE_LOG_LEVEL="info"  # debug, info, warn, error
//	AFFILIATE_METRICS_ENABLED="true"
//	AFFILIATE_OTEL_ENABLED="true"
//	AFFILIATE_OTEL_ENDPOINT="otel-collector:4317"
//
// The same keys in YAML form:
//
//	database:
//	  url: postgres://localhost/affiliates
//	invites:
//	  base_url: https://app.example.com
//	  hourly_limit: 50
//	tenant:
//	  require_explicit_org: true
package config
