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

// The entry point for the batch engine API server.
// It handles server initialization, configuration, and graceful shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/batch"
	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/files"
	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/health"
	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/metrics"
	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/server"
	"github.com/llm-d-incubation/llm-batch-engine/internal/app"
	"github.com/llm-d-incubation/llm-batch-engine/internal/config"
)

const serviceName = "llm-batch-apiserver"

func main() {
	cfg := config.NewConfig()

	// load and validate config
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	klog.InitFlags(fs)
	cfgFilePath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(os.Args[1:]); err != nil {
		klog.Fatalf("failed to parse flags: %v", err)
	}
	if *cfgFilePath != "" {
		if err := cfg.LoadFromYAML(*cfgFilePath); err != nil {
			klog.Fatalf("failed to load config: %v", err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("failed to validate config: %v", err)
	}

	// make sure to flush logs before exiting
	defer klog.Flush()

	// graceful shutdown
	c := make(chan os.Signal, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()

	logger := klog.FromContext(ctx)
	logger.Info("starting api server")

	a, err := app.Build(ctx, cfg, serviceName)
	if err != nil {
		logger.Error(err, "failed to build engine")
		return
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error(err, "failed to close engine")
		}
	}()

	checkers := make([]health.Checker, 0, len(a.Checkers))
	for _, chk := range a.Checkers {
		checkers = append(checkers, chk)
	}
	srv := server.New(&cfg.Server,
		batch.NewBatchApiHandler(a.Engine, cfg.Server.MaxBodyBytes),
		files.NewFilesApiHandler(a.Store),
		health.NewHealthApiHandler(checkers...),
		metrics.NewMetricsApiHandler(),
	)
	if err := srv.Start(ctx); err != nil {
		logger.Error(err, "api server failed")
		return
	}
	logger.Info("api server is terminated")
}
