// Package config provides application configuration from environment
// variables plus an optional YAML policy file.
//
// # Configuration Structure
//
// Server settings:
//
//	TODO_API_HOST="0.0.0.0"
//	TODO_API_PORT="8080"
//	TODO_API_HEALTH_PORT="9090"
//	TODO_API_READ_TIMEOUT="15s"
//	TODO_API_SHUTDOWN_TIMEOUT="30s"
//	TODO_API_RATE_LIMIT_ENABLED="true"
//	TODO_API_RATE_LIMIT="600"           # requests per window per caller
//	TODO_API_RATE_LIMIT_BURST="50"
//	TODO_API_RATE_LIMIT_WINDOW="1m"
//	TODO_API_TOKEN_CLEANUP_SCHEDULE="@hourly"  # cron schedule, empty disables
//
// Storage settings:
//
//	TODO_API_STORAGE_TYPE="postgres"   # sqlite, postgres, redis
//	TODO_API_DATABASE="postgres"       # token database when rights live in redis
//	TODO_API_SQLITE_PATH="file:rights.db?cache=shared"
//	TODO_API_POSTGRES_URL="postgres://localhost/todo"
//	TODO_API_REDIS_URL="redis://localhost:6379/0"
//	TODO_API_TAG_COUNTER="redis"       # sql, redis
//	TODO_API_CACHE_ENABLED="true"
//	TODO_API_CACHE_TTL="30s"
//
// Observability settings:
//
//	TODO_API_LOG_LEVEL="info"          # debug, info, warn, error
//	TODO_API_LOG_FORMAT="json"         # json, text
//	TODO_API_METRICS_ENABLED="true"
//	TODO_API_TRACING_ENABLED="false"
//	TODO_API_OTLP_ENDPOINT="localhost:4317"
//	TODO_API_OTLP_INSECURE="true"
//	TODO_API_TRACE_SAMPLE_RATIO="1"
//
// Authorization settings:
//
//	TODO_API_ROOT_ID="root"
//	TODO_API_AUTHZ_MAX_PARALLEL="4"
//	TODO_API_ALLOW_ANONYMOUS="true"
//	TODO_API_POLICY_FILE="/etc/todo/policies.yaml"
//	TODO_API_POLICY_WATCH="true"
//
// # Policy File
//
//	root_id: root
//	bootstrap:
//	  - user_id: admin
//	    type: Root
//	    rights: FullControl
//	policies:
//	  tag-editors:
//	    - TodoTagCollection:Put:todoId
//	  resource-creators:
//	    - RootUserCollection:Post:root
//
// Bootstrap grants are written at startup. Named policies back RequirePolicy
// names that are not themselves encoded policy names; the API consults
// rights-readers, resource-creators, resource-removers and tag-editors.
// WatchPolicyFile swaps them in while the server runs.
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
