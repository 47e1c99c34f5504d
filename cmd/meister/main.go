/*
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

// Command meister wires the scheduler core together and runs it. Process
// entry glue is explicitly out of scope for the core itself (spec.md §1);
// this file only constructs collaborators and starts the loop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/chubbymaggie/meister/pkg/brain"
	"github.com/chubbymaggie/meister/pkg/cluster"
	"github.com/chubbymaggie/meister/pkg/config"
	"github.com/chubbymaggie/meister/pkg/creators"
	"github.com/chubbymaggie/meister/pkg/log"
	"github.com/chubbymaggie/meister/pkg/metrics"
	"github.com/chubbymaggie/meister/pkg/resources"
	"github.com/chubbymaggie/meister/pkg/scheduler"
	"github.com/chubbymaggie/meister/pkg/store"
)

const workerNamespace = "meister"

func main() {
	logger := log.NewProduction()

	cfg, err := config.Load()
	if err != nil {
		logger.Error(err, "invalid configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Connect(ctx, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDatabase)
	if err != nil {
		logger.Error(err, "connecting to postgres")
		os.Exit(1)
	}
	defer st.Close()

	metrics.MustRegister()
	go serveMetrics(logger)

	podEnv := scheduler.PodEnv{
		WorkerImage:           cfg.WorkerImage,
		WorkerImagePullPolicy: cfg.WorkerImagePullPolicy,
		PostgresUser:          cfg.PostgresUser,
		PostgresPassword:      cfg.PostgresPassword,
		PostgresDatabase:      cfg.PostgresDatabase,
		PostgresUseSlaves:     cfg.PostgresUseSlaves,
	}

	opts := scheduler.Options{
		Store:          st,
		Brain:          brain.NewToadBrain(),
		ClusterPresent: cfg.ClusterPresent(),
		NumThreads:     cfg.NumThreads,
		Sleepytime:     3 * time.Second,
		PodEnv:         podEnv,
		Log:            logger,
		Creators: []creators.Creator{
			creators.NewRexCreator(st, logger),
			creators.NewPollSanitizerCreator(st, logger),
		},
	}

	if cfg.ClusterPresent() {
		clientset, err := newClientset()
		if err != nil {
			logger.Error(err, "building kubernetes clientset")
			os.Exit(1)
		}
		clusterClient := cluster.New(clientset, workerNamespace, logger)
		opts.Cluster = clusterClient
		opts.Accountant = resources.NewAccountant(clusterClient, cfg.Overprovisioning, cfg.NumThreads, logger)
	}

	s := scheduler.New(opts)
	if err := s.Run(ctx); err != nil {
		logger.Error(err, "scheduler exited with an error")
		os.Exit(1)
	}
}

func newClientset() (*kubernetes.Clientset, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restConfig)
}

// serveMetrics exposes the Prometheus registry. This command runs only the
// scheduler; the Evaluator (pkg/evaluator, SPEC_FULL.md §4.6) is a library
// with no entrypoint in this repository.
func serveMetrics(logger logr.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":9090", mux); err != nil {
		logger.Error(err, "metrics server exited")
	}
}
