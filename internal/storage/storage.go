package storage

import (
	"fmt"
	"log"
	"strings"

	"agri-mesh-go/internal/config"
)

// Storage aggregates the infrastructure dependencies of one binary. Optional
// components (unset in config) stay nil; callers check before use.
type Storage struct {
	// Relational database (rfqs + outbox)
	MySQL *MySQL

	// Message broker publisher
	RabbitMQ *RabbitMQ

	// Idempotency store, optional
	Redis *Redis
}

// NewStorage initializes the components configured in cfg. A component that
// fails to initialize is logged and skipped; initialization only fails as a
// whole when nothing could be brought up.
func NewStorage(cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	storage := &Storage{}
	var err error
	var initErrors []string

	if cfg.MySQL.Host != "" {
		storage.MySQL, err = NewMySQL(&cfg.MySQL)
		if err != nil {
			log.Printf("warning: failed to initialize MySQL: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		}
	}

	if cfg.RabbitMQ.URL != "" || cfg.RabbitMQ.Host != "" {
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			log.Printf("warning: failed to initialize RabbitMQ publisher: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}

	if cfg.Redis.Address != "" {
		storage.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Printf("warning: failed to initialize Redis: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	} else {
		log.Printf("Redis not configured, consumer deduplication disabled")
	}

	if storage.MySQL == nil && storage.RabbitMQ == nil && storage.Redis == nil {
		return nil, fmt.Errorf("all storage components failed to initialize: %s", strings.Join(initErrors, "; "))
	}

	if len(initErrors) > 0 {
		log.Printf("warning: some storage components failed to initialize: %s", strings.Join(initErrors, "; "))
	}

	return storage, nil
}

// Close closes every initialized component. Close errors are logged, never
// escalated.
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("failed to close RabbitMQ connection: %v", err)
		}
	}

	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Printf("failed to close MySQL connection: %v", err)
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("failed to close Redis connection: %v", err)
		}
	}
}
