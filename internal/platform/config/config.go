package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultTxAttempts   = 5
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	Storage   StorageConfig
	Payments  PaymentsConfig
	PubSub    PubSubConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings used for identity checks.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	TxAttempts   int
}

// StorageConfig names the bucket receiving uploaded preview images.
type StorageConfig struct {
	PreviewsBucket string
}

// PaymentsConfig collects payment processor credentials.
type PaymentsConfig struct {
	StripeAPIKey string
}

// PubSubConfig names the topic carrying post-commit order notifications.
type PubSubConfig struct {
	ProjectID         string
	NotificationTopic string
}

// SecretResolver resolves secret references of the form "secret://name" into
// their plaintext value at load time.
type SecretResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// SecretResolverFunc adapts a function to the SecretResolver interface.
type SecretResolverFunc func(ctx context.Context, name string) (string, error)

// Resolve implements SecretResolver.
func (f SecretResolverFunc) Resolve(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// Option customises configuration loading.
type Option func(*loader)

// WithEnvFile overrides the env file consulted before process environment.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		if strings.TrimSpace(path) != "" {
			l.envFile = path
		}
	}
}

// WithSecretResolver installs a resolver for secret:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) {
		l.secrets = resolver
	}
}

type loader struct {
	envFile string
	secrets SecretResolver
	values  map[string]string
}

// Load assembles the configuration from the env file, process environment,
// and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := &loader{envFile: defaultEnvFile}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	values, err := readEnvFile(l.envFile)
	if err != nil {
		return Config{}, err
	}
	l.values = values

	cfg := Config{
		Server: ServerConfig{
			Port:         l.get("PORT", defaultPort),
			ReadTimeout:  l.duration("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: l.duration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  l.duration("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       l.get("FIREBASE_PROJECT_ID", l.get("GOOGLE_CLOUD_PROJECT", "")),
			CredentialsFile: l.get("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    l.get("FIRESTORE_PROJECT_ID", l.get("GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: l.get("FIRESTORE_EMULATOR_HOST", ""),
			TxAttempts:   l.integer("FIRESTORE_TX_ATTEMPTS", defaultTxAttempts),
		},
		Storage: StorageConfig{
			PreviewsBucket: l.get("STORAGE_PREVIEWS_BUCKET", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:         l.get("PUBSUB_PROJECT_ID", l.get("GOOGLE_CLOUD_PROJECT", "")),
			NotificationTopic: l.get("PUBSUB_NOTIFICATION_TOPIC", "order-notifications"),
		},
	}

	stripeKey, err := l.resolve(ctx, "STRIPE_API_KEY")
	if err != nil {
		return Config{}, err
	}
	cfg.Payments.StripeAPIKey = stripeKey

	return cfg, nil
}

func (l *loader) get(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	if value, ok := l.values[key]; ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func (l *loader) duration(key string, fallback time.Duration) time.Duration {
	raw := l.get(key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func (l *loader) integer(key string, fallback int) int {
	raw := l.get(key, "")
	if raw == "" {
		return fallback
	}
	var parsed int
	if _, err := fmt.Sscanf(raw, "%d", &parsed); err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func (l *loader) resolve(ctx context.Context, key string) (string, error) {
	raw := l.get(key, "")
	if !strings.HasPrefix(raw, "secret://") {
		return raw, nil
	}
	if l.secrets == nil {
		return "", fmt.Errorf("config: %s references a secret but no resolver is configured", key)
	}
	name := strings.TrimPrefix(raw, "secret://")
	value, err := l.secrets.Resolve(ctx, name)
	if err != nil {
		return "", fmt.Errorf("config: resolve secret for %s: %w", key, err)
	}
	return strings.TrimSpace(value), nil
}

func readEnvFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}
