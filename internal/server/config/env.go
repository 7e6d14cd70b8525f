package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays environment variables onto config. Unset or unparsable
// variables leave the current value untouched.
//
// Durations accept Go syntax ("30m") in VAR or whole seconds in VAR_SECONDS.
func parseEnv(config *Config) {
	config.EndpointAddrHTTP = getenv("HTTP_ADDR", config.EndpointAddrHTTP)
	config.EndpointAddrGRPC = getenv("GRPC_ADDR", config.EndpointAddrGRPC)
	config.DatabaseDSN = getenv("DATABASE_DSN", config.DatabaseDSN)
	config.RedisAddr = getenv("REDIS_ADDR", config.RedisAddr)
	config.RedisPassword = getenv("REDIS_PASSWORD", config.RedisPassword)
	config.RedisDB = getenvInt("REDIS_DB", config.RedisDB)
	config.AccessTokenSecret = getenv("ACCESS_TOKEN_SECRET", config.AccessTokenSecret)
	config.RefreshTokenSecret = getenv("REFRESH_TOKEN_SECRET", config.RefreshTokenSecret)
	config.AccessTokenValidityDuration = getenvDuration("ACCESS_TOKEN_TTL", config.AccessTokenValidityDuration)
	config.RefreshTokenValidityDuration = getenvDuration("REFRESH_TOKEN_TTL", config.RefreshTokenValidityDuration)
	config.BcryptCost = getenvInt("BCRYPT_COST", config.BcryptCost)
	config.AtomicSessionWrites = getenvBool("ATOMIC_SESSION_WRITES", config.AtomicSessionWrites)
	config.UploadDir = getenv("UPLOAD_DIR", config.UploadDir)
	config.MembersFile = getenv("MEMBERS_FILE", config.MembersFile)
	config.S3RootUser = getenv("S3_ROOT_USER", config.S3RootUser)
	config.S3RootPassword = getenv("S3_ROOT_PASSWORD", config.S3RootPassword)
	config.S3Bucket = getenv("S3_BUCKET", config.S3Bucket)
	config.S3Region = getenv("S3_REGION", config.S3Region)
	config.S3BaseEndpoint = getenv("S3_BASE_ENDPOINT", config.S3BaseEndpoint)
	config.LogLevel = getenv("LOG_LEVEL", config.LogLevel)
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
