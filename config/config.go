package config

import "os"

// JWT validation reads JWT_SECRET from the environment in the auth
// middleware directly; it is not carried here.
type Config struct {
	Addr string

	// Postgres connection parts, combined into a DSN by the database package.
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	// RedisAddr enables the cross-instance broadcast bridge when non-empty.
	RedisAddr string
}

func Load() Config {
	return Config{
		Addr:      getenv("ADDR", ":8080"),
		DBUser:    getenv("user", "postgres"),
		DBPass:    getenv("password", ""),
		DBHost:    getenv("host", "localhost"),
		DBPort:    getenv("port", "5432"),
		DBName:    getenv("dbname", "syncspace"),
		RedisAddr: getenv("REDIS_ADDR", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
