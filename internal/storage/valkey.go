// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// valkeyKeyPrefix namespaces client keys in Valkey to avoid collisions.
const valkeyKeyPrefix = "peablog:"

// ConnectValkey creates a Valkey client and verifies the connection with a ping.
func ConnectValkey(host, port, password string, db int) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping: %w", err)
	}

	slog.Info("valkey connected", "addr", addr, "db", db)
	return client, nil
}

// ValkeyStore keeps values in Valkey without expiry, so several machines can
// share one credential. Values are namespaced by a per-profile prefix.
type ValkeyStore struct {
	client *redis.Client
	prefix string
}

// NewValkeyStore creates a store backed by client. profile separates
// independent client installations sharing the same Valkey database.
func NewValkeyStore(client *redis.Client, profile string) *ValkeyStore {
	prefix := valkeyKeyPrefix
	if profile != "" {
		prefix += profile + ":"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

func (v *ValkeyStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := v.client.Get(ctx, v.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("valkey get %q: %w", key, err)
	}
	return val, true, nil
}

func (v *ValkeyStore) Set(ctx context.Context, key, value string) error {
	if err := v.client.Set(ctx, v.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("valkey set %q: %w", key, err)
	}
	return nil
}

func (v *ValkeyStore) Delete(ctx context.Context, key string) error {
	if err := v.client.Del(ctx, v.prefix+key).Err(); err != nil {
		return fmt.Errorf("valkey del %q: %w", key, err)
	}
	return nil
}
