package config

import (
	"os"
	"strconv"
)

const (
	StoreS3    = "s3"
	StoreMinio = "minio"
)

type Config struct {
	Port            string
	ArtifactStore   string
	AWSRegion       string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioUseSSL     bool
	DatabasePath    string
	WorkDir         string
	NewRelicLicense string
	NewRelicAppName string
	NewRelicEnabled bool
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "50000"),
		ArtifactStore:   getEnv("ARTIFACT_STORE", StoreS3),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:     getBool("MINIO_USE_SSL", true),
		DatabasePath:    getEnv("DATABASE_PATH", "./deployer.db"),
		WorkDir:         getEnv("DEPLOY_WORK_DIR", os.TempDir()),
		NewRelicLicense: getEnv("NEW_RELIC_LICENSE_KEY", ""),
		NewRelicAppName: getEnv("NEW_RELIC_APP_NAME", "bundle-deployer"),
		NewRelicEnabled: getBool("NEW_RELIC_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBool falls back to defaultValue when the variable is unset or not a boolean.
func getBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}
