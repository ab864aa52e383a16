package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the environment driven settings shared by the commands
type Config struct {
	Env    string
	Port   string
	AppURL string

	DatabaseURL string
	RedisURL    string
	SessionTTL  time.Duration

	FirebaseCredentialsPath string
	FirebaseStorageBucket   string

	UploadDir               string
	UploadMaxBytes          int64
	UploadAllowedExtensions []string

	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	MidtransServerKey    string
	MidtransClientKey    string
	MidtransIsProduction bool

	OmisePublicKey string
	OmiseSecretKey string

	WorkerInterval time.Duration
}

// Load reads .env (if present) and the process environment
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only
func FromEnv() *Config {
	return &Config{
		Env:    getEnv("ENV", "development"),
		Port:   getEnv("PORT", "8080"),
		AppURL: strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		SessionTTL:  getDuration("SESSION_TTL", 2*time.Hour),

		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),
		FirebaseStorageBucket:   os.Getenv("FIREBASE_STORAGE_BUCKET"),

		UploadDir:               getEnv("UPLOAD_DIR", "./uploads"),
		UploadMaxBytes:          getInt64("UPLOAD_MAX_BYTES", 10*1024*1024),
		UploadAllowedExtensions: getList("UPLOAD_ALLOWED_EXTENSIONS", []string{"pdf", "png", "jpg", "jpeg", "gif", "doc", "docx", "txt", "csv"}),

		SMTPHost:  os.Getenv("SMTP_HOST"),
		SMTPPort:  int(getInt64("SMTP_PORT", 587)),
		SMTPUser:  os.Getenv("SMTP_USER"),
		SMTPPass:  os.Getenv("SMTP_PASS"),
		EmailFrom: os.Getenv("EMAIL_FROM"),

		MidtransServerKey:    os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransClientKey:    os.Getenv("MIDTRANS_CLIENT_KEY"),
		MidtransIsProduction: os.Getenv("MIDTRANS_IS_PRODUCTION") == "true",

		OmisePublicKey: os.Getenv("OMISE_PUBLIC_KEY"),
		OmiseSecretKey: os.Getenv("OMISE_SECRET_KEY"),

		WorkerInterval: getDuration("WORKER_INTERVAL", 5*time.Minute),
	}
}

// IsProduction reports whether cookies should be marked secure
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
