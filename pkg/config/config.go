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

// Package config loads meister's environment-variable configuration
// (spec.md §6) and validates it once at startup. A configuration error is
// fatal before the scheduler loop ever starts (spec.md §7); it is never
// surfaced once the loop is running.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultNumThreads = 20
)

// Config is the fully-resolved, validated environment for one meister
// process.
type Config struct {
	// ClusterHost is the non-empty value of KUBERNETES_SERVICE_HOST.
	// Its presence selects cluster-present mode (spec.md §4.5).
	ClusterHost string

	NumThreads      int
	Overprovisioning float64

	WorkerImage           string
	WorkerImagePullPolicy string

	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresUseSlaves bool
}

// ClusterPresent reports whether this process should run the cluster-
// present scheduling loop (spec.md §4.5).
func (c Config) ClusterPresent() bool {
	return c.ClusterHost != ""
}

// Load reads and validates every environment variable spec.md §6 names.
// Unlike the original implementation's fail-on-first KeyError, every
// missing required variable is collected and reported together.
func Load() (Config, error) {
	var errs []string

	c := Config{
		ClusterHost:           os.Getenv("KUBERNETES_SERVICE_HOST"),
		NumThreads:            defaultNumThreads,
		WorkerImage:           os.Getenv("WORKER_IMAGE"),
		WorkerImagePullPolicy: os.Getenv("WORKER_IMAGE_PULL_POLICY"),
		PostgresUser:          os.Getenv("POSTGRES_DATABASE_USER"),
		PostgresPassword:      os.Getenv("POSTGRES_DATABASE_PASSWORD"),
		PostgresDatabase:      os.Getenv("POSTGRES_DATABASE_NAME"),
	}

	if v, ok := os.LookupEnv("MEISTER_NUM_THREADS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, "MEISTER_NUM_THREADS must be a positive integer")
		} else {
			c.NumThreads = n
		}
	}

	if v, ok := os.LookupEnv("MEISTER_OVERPROVISIONING"); !ok {
		errs = append(errs, "MEISTER_OVERPROVISIONING is required")
	} else {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 1.0 {
			errs = append(errs, "MEISTER_OVERPROVISIONING must be a float >= 1.0")
		} else {
			c.Overprovisioning = f
		}
	}

	if c.WorkerImage == "" {
		errs = append(errs, "WORKER_IMAGE is required")
	}
	if c.WorkerImagePullPolicy == "" {
		errs = append(errs, "WORKER_IMAGE_PULL_POLICY is required")
	}
	if c.PostgresUser == "" {
		errs = append(errs, "POSTGRES_DATABASE_USER is required")
	}
	if c.PostgresPassword == "" {
		errs = append(errs, "POSTGRES_DATABASE_PASSWORD is required")
	}
	if c.PostgresDatabase == "" {
		errs = append(errs, "POSTGRES_DATABASE_NAME is required")
	}

	if _, ok := os.LookupEnv("POSTGRES_USE_SLAVES"); ok {
		c.PostgresUseSlaves = true
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return c, nil
}
