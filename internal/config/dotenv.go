package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment keys read by psdist.
const (
	EnvS3Endpoint  = "PSDIST_S3_ENDPOINT"
	EnvS3Region    = "PSDIST_S3_REGION"
	EnvS3AccessKey = "PSDIST_S3_ACCESS_KEY"
	EnvS3SecretKey = "PSDIST_S3_SECRET_KEY"
	EnvS3Bucket    = "PSDIST_S3_BUCKET"
	EnvS3Prefix    = "PSDIST_S3_PREFIX"
	EnvS3UseSSL    = "PSDIST_S3_USE_SSL"
	EnvValidateMD5 = "PSDIST_VALIDATE_MD5"
)

// DotEnvPath returns the path to the working directory's .env file.
func DotEnvPath(workDir string) string {
	return filepath.Join(workDir, ".env")
}

// LoadDotEnv reads <workDir>/.env and returns key/value pairs. A missing file
// yields an empty map.
func LoadDotEnv(workDir string) (map[string]string, error) {
	p := DotEnvPath(workDir)
	m, err := godotenv.Read(p)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", p, err)
	}
	return m, nil
}

// Env holds the effective environment settings.
type Env struct {
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Prefix    string
	S3UseSSL    bool
	ValidateMD5 bool
}

// LoadEnv resolves every psdist key, using process environment variables
// first and falling back to <workDir>/.env.
func LoadEnv(workDir string) (Env, error) {
	dotenv, err := LoadDotEnv(workDir)
	if err != nil {
		return Env{}, err
	}
	get := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
	useSSL, err := parseBool(EnvS3UseSSL, get(EnvS3UseSSL), true)
	if err != nil {
		return Env{}, err
	}
	validate, err := parseBool(EnvValidateMD5, get(EnvValidateMD5), false)
	if err != nil {
		return Env{}, err
	}
	return Env{
		S3Endpoint:  get(EnvS3Endpoint),
		S3Region:    get(EnvS3Region),
		S3AccessKey: get(EnvS3AccessKey),
		S3SecretKey: get(EnvS3SecretKey),
		S3Bucket:    get(EnvS3Bucket),
		S3Prefix:    get(EnvS3Prefix),
		S3UseSSL:    useSSL,
		ValidateMD5: validate,
	}, nil
}

func parseBool(key, raw string, def bool) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}
