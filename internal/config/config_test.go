package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_NAME", "")
	t.Setenv("CODE_MAX_ATTEMPTS", "")
	t.Setenv("ALLOW_ADMIN_SIGNUP", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "nitip_db", cfg.DBName)
	assert.Equal(t, 8, cfg.CodeMaxAttempts)
	assert.False(t, cfg.AllowAdminSignup)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ALLOW_ADMIN_SIGNUP", "true")
	t.Setenv("CODE_MAX_ATTEMPTS", "3")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("JWT_ACCESS_EXPIRY", "not-a-duration")

	cfg := Load()

	assert.True(t, cfg.AllowAdminSignup)
	assert.Equal(t, 3, cfg.CodeMaxAttempts)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
}

func TestParseInt_RejectsNonPositive(t *testing.T) {
	assert.Equal(t, 8, parseInt("0", 8))
	assert.Equal(t, 8, parseInt("-2", 8))
	assert.Equal(t, 5, parseInt("5", 8))
}

func TestImageHostEnabled(t *testing.T) {
	cfg := &Config{S3Bucket: "b"}
	assert.False(t, cfg.ImageHostEnabled())

	cfg.S3AccessKey = "ak"
	cfg.S3SecretKey = "sk"
	assert.True(t, cfg.ImageHostEnabled())
}
