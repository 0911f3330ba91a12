package main

type Settings struct {
	Port        int    `env:"PORT,default=8000"`
	BasePath    string `env:"BASE_PATH,default=/realtime"`
	LogEncoding string `env:"LOG_ENCODING,default=console"`
	LogLevel    string `env:"LOG_LEVEL,default=debug"`

	JWTSecret          string `env:"JWT_SECRET,required=true"`
	InternalServiceKey string `env:"INTERNAL_SERVICE_KEY,default=dev-internal-key"`

	StoreURL string `env:"STORE_URL,default=redis://localhost:6379"`
	MongoURI string `env:"MONGO_URI"`

	MaxConnectionsPerTenant int `env:"MAX_CONNECTIONS_PER_TENANT,default=10"`
	ConnectionTTLSeconds    int `env:"CONNECTION_TTL_SECONDS,default=3600"`
	EventRetentionSeconds   int `env:"EVENT_RETENTION_SECONDS,default=86400"`

	HeartbeatIntervalMs int `env:"HEARTBEAT_INTERVAL_MS,default=25000"`
	HeartbeatTimeoutMs  int `env:"HEARTBEAT_TIMEOUT_MS,default=60000"`

	CORSOrigins string `env:"CORS_ORIGINS,default=*"`
}
