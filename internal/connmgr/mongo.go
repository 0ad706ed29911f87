package connmgr

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig configures a MongoDB connection record.
type MongoConfig struct {
	URI            string
	ConnectTimeout time.Duration
}

func (c MongoConfig) resolved() MongoConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// initMongo connects and pings, emitting connected/disconnected per
// spec.md's wiring. A failed connect or ping disconnects best-effort
// and returns an error so the caller surfaces ConnectionFailed.
func (m *Manager) initMongo(ctx context.Context, cfg MongoConfig) (any, func(context.Context) error, error) {
	cfg = cfg.resolved()

	timeoutCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(timeoutCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		m.emit(TypeMongo, EventError, err)
		return nil, nil, fmt.Errorf("connmgr: mongo connect: %w", err)
	}

	if err := client.Ping(timeoutCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		m.emit(TypeMongo, EventError, err)
		return nil, nil, fmt.Errorf("connmgr: mongo ping: %w", err)
	}

	m.emit(TypeMongo, EventConnected, nil)

	closeFn := func(ctx context.Context) error {
		err := client.Disconnect(ctx)
		m.emit(TypeMongo, EventDisconnected, err)
		return err
	}
	return client, closeFn, nil
}
