package config

const (
	EnvPrefix = "ORDERDESK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "ORDERDESK_APP_ENV"
	EnvPort       = "ORDERDESK_APP_PORT"
	EnvDBDSN      = "ORDERDESK_DB_DSN"
	EnvDBHost     = "ORDERDESK_DB_HOST"
	EnvDBUser     = "ORDERDESK_DB_USER"
	EnvDBName     = "ORDERDESK_DB_NAME"
	EnvRedisURL   = "ORDERDESK_REDIS_URL"
	EnvJWTSecret  = "ORDERDESK_JWT_SECRET"
	EnvJWTIssuer  = "ORDERDESK_JWT_ISSUER"
	EnvJWTExpMins = "ORDERDESK_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID          = "ORDERDESK_GCP_PROJECT_ID"
	EnvPubSubTasksSub        = "ORDERDESK_PUBSUB_TASKS_SUBSCRIPTION"
	EnvPubSubNotificationSub = "ORDERDESK_PUBSUB_NOTIFICATION_SUBSCRIPTION"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
