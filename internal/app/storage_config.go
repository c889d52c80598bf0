package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charlesng35/timecapsule/internal/database"
	"github.com/charlesng35/timecapsule/internal/events"
	"github.com/charlesng35/timecapsule/internal/storage"
)

// NewObjectStorage builds the configured media backend.
func (c StorageConfig) NewObjectStorage(ctx context.Context) (storage.ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", "local":
		local, err := storage.NewLocalStorage(c.Local.Root, c.Local.BaseURL)
		if err != nil {
			return nil, err
		}
		return local, nil
	case "s3":
		s3, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          c.S3.Bucket,
			Region:          c.S3.Region,
			Endpoint:        c.S3.Endpoint,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			PublicBaseURL:   c.S3.PublicBaseURL,
			UsePathStyle:    c.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", c.Driver)
	}
}

// NewPublisher builds the capsule event publisher. Without Kafka, events are only logged.
func (c EventsConfig) NewPublisher() (events.Publisher, error) {
	if !c.Kafka.Enabled {
		return events.NewLogPublisher(), nil
	}
	publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:      c.Kafka.Brokers,
		Topic:        c.Kafka.Topic,
		WriteTimeout: c.Kafka.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

// ConnectionConfig converts DatabaseConfig into database.Config.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var auth DBAuthConfig
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "postgres", "postgresql", "pg":
		auth = c.Postgres
	case "mysql", "mariadb":
		auth = c.MySQL
	default:
		return cfg
	}

	cfg.Host = auth.Host
	cfg.Port = auth.Port
	cfg.Name = auth.Database
	cfg.User = auth.Username
	cfg.Password = auth.Password
	return cfg
}

// SeedOptions converts the seed section for database.SeedData.
func (c DatabaseConfig) SeedOptions() database.SeedOptions {
	return database.SeedOptions{
		AdminEmail:    c.Seed.AdminEmail,
		AdminPassword: c.Seed.AdminPassword,
	}
}
