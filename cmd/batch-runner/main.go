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

// The entry point for the batch runner CLI.
//
//	batch-runner [-config file] run [-o output] [-max-requests-per-job n] [-artifact-dir dir] input.jsonl...
//	batch-runner [-config file] reconcile -input ref -output ref [-input ref -output ref ...]
//
// run submits every request of each input file through the engine and writes one result
// per line. reconcile caches the results of batch jobs that finished after the engine
// stopped waiting for them; refs are local paths or openai://<file id>.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/llm-batch-engine/internal/app"
	"github.com/llm-d-incubation/llm-batch-engine/internal/config"
	"github.com/llm-d-incubation/llm-batch-engine/internal/engine"
	"github.com/llm-d-incubation/llm-batch-engine/internal/runner"
)

const serviceName = "llm-batch-runner"

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] run|reconcile [command flags] [args]\n", serviceName)
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	cfg := config.NewConfig()

	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	klog.InitFlags(fs)
	cfgFilePath := fs.String("config", "", "Path to configuration file")
	fs.Usage = func() {
		usage()
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}
	defer klog.Flush()

	if *cfgFilePath != "" {
		if err := cfg.LoadFromYAML(*cfgFilePath); err != nil {
			klog.ErrorS(err, "Failed to load config", "path", *cfgFilePath)
			return 1
		}
	}
	cfg.ApplyEnv()

	args := fs.Args()
	if len(args) == 0 {
		usage()
		return 2
	}

	// setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalChan := make(chan os.Signal, 2)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		klog.InfoS("Received shutdown signal, stopping", "signal", sig)
		cancel()
		sig = <-signalChan
		klog.InfoS("Received second shutdown signal, forcing shutdown", "signal", sig)
		os.Exit(1)
	}()

	switch args[0] {
	case "run":
		return runCommand(ctx, cfg, args[1:])
	case "reconcile":
		return reconcileCommand(ctx, cfg, args[1:])
	default:
		usage()
		return 2
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return app.Build(ctx, cfg, serviceName)
}

func runCommand(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	output := fs.String("o", "", "Output file; only valid with a single input file")
	maxPerJob := fs.Int("max-requests-per-job", 0, "Override engine.max_requests_per_job")
	artifactDir := fs.String("artifact-dir", "", "Retain batch job files in this directory")
	workers := fs.Int("workers", cfg.Runner.MaxWorkers, "Number of input files processed concurrently")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	inputs := fs.Args()
	if len(inputs) == 0 || (*output != "" && len(inputs) > 1) {
		fmt.Fprintln(os.Stderr, "run requires input files, and -o requires exactly one")
		return 2
	}
	cfg.Runner.MaxWorkers = *workers

	a, err := buildApp(ctx, cfg)
	if err != nil {
		klog.ErrorS(err, "Failed to initialize engine")
		return 1
	}
	defer a.Close()

	if cfg.MetricsAddress != "" {
		go func() {
			m := http.NewServeMux()
			m.Handle("/metrics", promhttp.Handler())
			klog.InfoS("Starting metrics server", "address", cfg.MetricsAddress)
			if err := http.ListenAndServe(cfg.MetricsAddress, m); err != nil {
				klog.ErrorS(err, "Metrics server failed")
			}
		}()
	}

	tasks := make([]runner.Task, len(inputs))
	for i, in := range inputs {
		tasks[i] = runner.Task{Input: in, Output: runner.OutputPath(in)}
	}
	if *output != "" {
		tasks[0].Output = *output
	}

	r := runner.New(a.Engine, cfg.Runner.MaxWorkers, &engine.SubmitOptions{
		MaxRequestsPerJob: *maxPerJob,
		ArtifactDirectory: *artifactDir,
	})
	failed := 0
	for _, o := range r.Run(ctx, tasks) {
		if o.Err != nil {
			failed++
			klog.ErrorS(o.Err, "Failed", "input", o.Task.Input, "stage", engine.StageOf(o.Err))
			continue
		}
		fmt.Printf("%s -> %s: %d results (%d cached, %d jobs, %d tokens)\n", o.Task.Input, o.Task.Output,
			o.Summary.Requests, o.Summary.CacheHits, len(o.Summary.JobIDs), o.Summary.Usage.TotalTokens)
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func reconcileCommand(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	var inputs, outputs stringList
	fs.Var(&inputs, "input", "Input file of an external batch job (repeatable)")
	fs.Var(&outputs, "output", "Output file of an external batch job (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(inputs) == 0 || len(inputs) != len(outputs) {
		fmt.Fprintln(os.Stderr, "reconcile requires the same number of -input and -output files")
		return 2
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		klog.ErrorS(err, "Failed to initialize engine")
		return 1
	}
	defer a.Close()

	n, err := a.Engine.ReconcileExternalAll(ctx, inputs, outputs)
	fmt.Printf("cached %d results\n", n)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			klog.InfoS("Reconciliation interrupted")
		} else {
			klog.ErrorS(err, "Reconciliation failed")
		}
		return 1
	}
	return 0
}
