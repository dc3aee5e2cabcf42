package utils

import "time"

type Config struct {
	Port           string
	DBDriver       string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	RedisHost      string
	RedisPort      string
	JWTSecret      string
	MiningLocation string
	EnergyTick     time.Duration
	RunScheduler   bool
	ActionRate     int
	ActionBurst    int
	LogLevel       string
	OtelService    string
	OtelVersion    string
	OtelHost       string
	OtelPort       string
}

func LoadConfig() *Config {
	port := GetEnv("PORT", "3001")
	if GetEnv("DEPLOYED", "0") == "1" {
		port = "8080"
	}

	return &Config{
		Port:           port,
		DBDriver:       GetEnv("DB_DRIVER", "mysql"),
		DBHost:         GetEnv("DB_HOST", "127.0.0.1"),
		DBPort:         GetEnv("DB_PORT", "3306"),
		DBUser:         GetEnv("DB_USER", "realm"),
		DBPassword:     GetEnv("DB_PASSWORD", ""),
		DBName:         GetEnv("DB_NAME", "realm"),
		RedisHost:      GetEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:      GetEnv("REDIS_PORT", "6379"),
		JWTSecret:      GetEnv("JWT_SECRET", ""),
		MiningLocation: GetEnv("MINING_LOCATION", "mine"),
		EnergyTick:     GetEnvDuration("ENERGY_TICK", time.Hour),
		RunScheduler:   GetEnv("RUN_SCHEDULER", "1") == "1",
		ActionRate:     GetEnvInt("ACTION_RATE", 2),
		ActionBurst:    GetEnvInt("ACTION_BURST", 10),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		OtelService:    GetEnv("OTEL_SERVICE", "culling-realm"),
		OtelVersion:    GetEnv("OTEL_VERSION", "0.0.1"),
		OtelHost:       GetEnv("OTEL_EXPORTER_HOST", "127.0.0.1"),
		OtelPort:       GetEnv("OTEL_EXPORTER_PORT", "4317"),
	}
}
