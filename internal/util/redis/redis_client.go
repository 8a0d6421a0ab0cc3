/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package redis opens go-redis clients from configuration and checks their readiness.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	gredis "github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	ucom "github.com/llm-d-incubation/llm-batch-engine/internal/util/com"
	utls "github.com/llm-d-incubation/llm-batch-engine/internal/util/tls"
)

const pingTimeout = 10 * time.Second

var errNoURL = errors.New("redis url is empty")

type RedisClientConfig struct {
	Url          string             `yaml:"url" json:"url"`
	DbIdx        int                `yaml:"db" json:"db"`
	EnableTLS    bool               `yaml:"enable_tls" json:"enable_tls"`
	Insecure     bool               `yaml:"insecure" json:"insecure"`
	Certificates *utls.Certificates `yaml:"certificates,omitempty" json:"certificates,omitempty"`
	ServiceName  string             `yaml:"service_name" json:"service_name"`
	Timeout      time.Duration      `yaml:"timeout" json:"timeout"`         // dial, read and write timeout
	MaxRetries   int                `yaml:"max_retries" json:"max_retries"` // -1 (not 0) disables retries
	PoolSize     int                `yaml:"pool_size" json:"pool_size"`
	// Connections idle longer than this are closed. -1 disables the idle check.
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// Options translates the config into go-redis options. Values in the URL win over the
// client name; every other non-zero field overrides the URL.
func (c *RedisClientConfig) Options() (*gredis.Options, error) {
	if c == nil || c.Url == "" {
		return nil, errNoURL
	}
	opts, err := gredis.ParseURL(c.Url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = clientName(c.ServiceName)
	}
	if c.DbIdx > 0 {
		opts.DB = c.DbIdx
	}
	if c.Timeout != 0 {
		opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout = c.Timeout, c.Timeout, c.Timeout
	}
	opts.ContextTimeoutEnabled = true
	if c.MaxRetries != 0 {
		opts.MaxRetries = c.MaxRetries
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	if c.ConnMaxIdleTime != 0 {
		opts.ConnMaxIdleTime = c.ConnMaxIdleTime
	}
	if c.EnableTLS {
		tlsConfig, err := utls.ClientConfig(c.Insecure, c.Certificates)
		if err != nil {
			return nil, err
		}
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		opts.TLSConfig = tlsConfig
	}
	return opts, nil
}

// NewRedisClient connects and pings. The client is closed again when the ping fails.
func NewRedisClient(ctx context.Context, cnf *RedisClientConfig) (*gredis.Client, error) {
	logger := klog.FromContext(ctx)
	opts, err := cnf.Options()
	if err != nil {
		logger.Error(err, "Invalid redis configuration")
		return nil, err
	}
	rds := gredis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rds.Ping(pctx).Err(); err != nil {
		logger.Error(err, "Redis ping failed", "addr", opts.Addr)
		rds.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Addr, err)
	}
	logger.Info("Connected to redis", "clientName", opts.ClientName, "db", opts.DB)
	return rds, nil
}

func clientName(serviceName string) string {
	hostname, _ := os.Hostname()
	name := fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), ucom.RandString(6))
	if serviceName != "" {
		return serviceName + "-" + name
	}
	return name
}

// RedisClientChecker verifies that the client can write and that it is connected to a
// primary. Checks against one client are serialized.
type RedisClientChecker struct {
	rds         *gredis.Client
	lock        sync.Mutex
	keyPrefix   string
	serviceName string
	cmdTimeout  time.Duration
}

func NewRedisClientChecker(rds *gredis.Client, keyPrefix, serviceName string, cmdTimeout time.Duration) *RedisClientChecker {
	return &RedisClientChecker{
		rds:         rds,
		keyPrefix:   keyPrefix,
		serviceName: serviceName,
		cmdTimeout:  cmdTimeout,
	}
}

// PingKey is written by every check and expires after ten seconds.
func (r *RedisClientChecker) PingKey() string {
	return fmt.Sprintf("%sping:%s", r.keyPrefix, r.serviceName)
}

func (r *RedisClientChecker) Check(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	cctx, cancel := context.WithTimeout(ctx, r.cmdTimeout)
	defer cancel()
	if err := r.rds.Set(cctx, r.PingKey(), time.Now().UTC().Format(time.RFC3339), 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write failed: %w", err)
	}
	info, err := r.rds.Info(cctx, "replication").Result()
	if err != nil {
		return fmt.Errorf("redis info failed: %w", err)
	}
	if strings.Contains(info, "role:slave") {
		return errors.New("redis client is connected to a replica")
	}
	return nil
}
