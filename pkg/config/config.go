package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Grading      GradingConfig
	Locking      LockingConfig
	Availability AvailabilityConfig
	Audit        AuditConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GradingConfig carries the letter-grade policy as configuration so
// grading-scale changes never touch transition logic.
type GradingConfig struct {
	// Scale maps letter codes to grade points, e.g. "A=4.0,B+=3.3".
	Scale map[string]float64
	// FailingGrades finalize to a FAILED status.
	FailingGrades []string
	// IncompleteGrade finalizes to INCOMPLETE.
	IncompleteGrade string
	// WithdrawalGrade is recorded on withdrawal and excluded from finalization.
	WithdrawalGrade string
	// GPAExcluded lists codes that carry zero points but do not count toward GPA.
	GPAExcluded []string
}

// LockingConfig bounds per-section serialization.
type LockingConfig struct {
	AcquireTimeout time.Duration
	RetryAttempts  int
}

// AvailabilityConfig tunes the read-side availability cache.
type AvailabilityConfig struct {
	CacheTTL time.Duration
}

// AuditConfig tunes the asynchronous audit recorder.
type AuditConfig struct {
	Workers    int
	BufferSize int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	scale, err := ParseGradeScale(v.GetString("GRADING_SCALE"))
	if err != nil {
		return nil, err
	}
	cfg.Grading = GradingConfig{
		Scale:           scale,
		FailingGrades:   splitAndTrim(v.GetString("GRADING_FAILING")),
		IncompleteGrade: v.GetString("GRADING_INCOMPLETE"),
		WithdrawalGrade: v.GetString("GRADING_WITHDRAWAL"),
		GPAExcluded:     splitAndTrim(v.GetString("GRADING_GPA_EXCLUDED")),
	}

	cfg.Locking = LockingConfig{
		AcquireTimeout: parseDuration(v.GetString("SECTION_LOCK_TIMEOUT"), 2*time.Second),
		RetryAttempts:  v.GetInt("SECTION_RETRY_ATTEMPTS"),
	}

	cfg.Availability = AvailabilityConfig{
		CacheTTL: parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), time.Minute),
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		BufferSize: v.GetInt("AUDIT_BUFFER_SIZE"),
	}

	return cfg, nil
}

// ParseGradeScale parses "A=4.0,A-=3.7,..." into a letter→points map.
func ParseGradeScale(raw string) (map[string]float64, error) {
	scale := make(map[string]float64)
	for _, pair := range splitAndTrim(raw) {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, errors.New("grading scale entry must be LETTER=POINTS: " + pair)
		}
		points, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, errors.New("grading scale points invalid: " + pair)
		}
		scale[strings.ToUpper(strings.TrimSpace(parts[0]))] = points
	}
	return scale, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "university_registry")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GRADING_SCALE", "A=4.0,A-=3.7,B+=3.3,B=3.0,B-=2.7,C+=2.3,C=2.0,C-=1.7,D+=1.3,D=1.0,F=0.0,P=0.0,NP=0.0,I=0.0,W=0.0")
	v.SetDefault("GRADING_FAILING", "F,NP")
	v.SetDefault("GRADING_INCOMPLETE", "I")
	v.SetDefault("GRADING_WITHDRAWAL", "W")
	v.SetDefault("GRADING_GPA_EXCLUDED", "W,I,P,NP")

	v.SetDefault("SECTION_LOCK_TIMEOUT", "2s")
	v.SetDefault("SECTION_RETRY_ATTEMPTS", 3)

	v.SetDefault("AVAILABILITY_CACHE_TTL", "1m")

	v.SetDefault("AUDIT_WORKERS", 1)
	v.SetDefault("AUDIT_BUFFER_SIZE", 64)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
