package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnv_NotExist(t *testing.T) {
	m, err := LoadDotEnv(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("# comment\nA=1\nB=\"two words\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := LoadDotEnv(dir)
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if m["A"] != "1" || m["B"] != "two words" {
		t.Fatalf("unexpected map: %v", m)
	}
}

func TestLoadEnv_EnvOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	body := "PSDIST_S3_BUCKET=fromdotenv\nPSDIST_S3_ENDPOINT=minio:9000\nPSDIST_VALIDATE_MD5=true\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvS3Bucket, "fromenv")
	t.Setenv(EnvS3UseSSL, "false")

	env, err := LoadEnv(dir)
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env.S3Bucket != "fromenv" {
		t.Fatalf("expected env override, got %q", env.S3Bucket)
	}
	if env.S3Endpoint != "minio:9000" {
		t.Fatalf("expected dotenv value, got %q", env.S3Endpoint)
	}
	if env.S3UseSSL {
		t.Fatalf("expected UseSSL=false")
	}
	if !env.ValidateMD5 {
		t.Fatalf("expected ValidateMD5=true")
	}
}

func TestLoadEnv_Defaults(t *testing.T) {
	env, err := LoadEnv(t.TempDir())
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if !env.S3UseSSL || env.ValidateMD5 {
		t.Fatalf("unexpected defaults: %+v", env)
	}
}

func TestLoadEnv_InvalidBool(t *testing.T) {
	t.Setenv(EnvValidateMD5, "maybe")
	if _, err := LoadEnv(t.TempDir()); err == nil {
		t.Fatal("expected error for invalid boolean")
	}
}
