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

package resources

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"k8s.io/client-go/util/workqueue"

	"github.com/chubbymaggie/meister/pkg/cluster"
	"github.com/chubbymaggie/meister/pkg/metrics"
)

const (
	availableCacheKey = "available"
	// cacheTTL is the Resource Accountant's short TTL (spec.md §3, §4.2).
	cacheTTL = time.Second
)

// Accountant derives, caches briefly, and exposes the cluster's
// currently-available CPU/memory/pod-slot budget (spec.md §4.2).
type Accountant struct {
	client           cluster.Client
	overprovisioning float64
	numThreads       int
	log              logr.Logger

	cache  *gocache.Cache
	group  singleflight.Group

	nodeCapacityMu sync.Mutex
	haveCapacity   bool
	totalCapacity  Vector
}

// NewAccountant constructs an Accountant. overprovisioning must be >= 1.0
// (spec.md §3); numThreads bounds the pod-classification worker pool
// (spec.md §4.2 step 2, §5).
func NewAccountant(client cluster.Client, overprovisioning float64, numThreads int, log logr.Logger) *Accountant {
	return &Accountant{
		client:           client,
		overprovisioning: overprovisioning,
		numThreads:       numThreads,
		log:              log,
		cache:            gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// Available returns the current budget, following the contract in
// spec.md §4.2 steps 1-6. Concurrent cache-miss callers within the same
// tick are collapsed into a single cluster snapshot via singleflight.
func (a *Accountant) Available(ctx context.Context) (Vector, error) {
	if v, ok := a.cache.Get(availableCacheKey); ok {
		return v.(Vector), nil
	}

	v, err, _ := a.group.Do(availableCacheKey, func() (interface{}, error) {
		// Another goroutine may have filled the cache while we waited to
		// enter the singleflight critical section.
		if v, ok := a.cache.Get(availableCacheKey); ok {
			return v.(Vector), nil
		}
		snapshot, err := a.computeAvailable(ctx)
		if err != nil {
			return Vector{}, err
		}
		a.cache.SetDefault(availableCacheKey, snapshot)
		return snapshot, nil
	})
	if err != nil {
		return Vector{}, err
	}
	return v.(Vector), nil
}

func (a *Accountant) computeAvailable(ctx context.Context) (Vector, error) {
	total, err := a.totalNodeCapacity(ctx)
	if err != nil {
		return Vector{}, err
	}

	pods, err := a.client.ListPods(ctx)
	if err != nil {
		return Vector{}, err
	}

	type classified struct {
		used      Vector
		isPending bool
	}
	results := make([]classified, len(pods))

	workqueue.ParallelizeUntil(ctx, a.numThreads, len(pods), func(i int) {
		results[i] = a.classify(ctx, pods[i])
	})

	budget := total
	for _, r := range results {
		if r.isPending {
			budget = budget.Sub(r.used)
		}
	}
	return budget.Scale(a.overprovisioning).ClampNonNegative(), nil
}

// classify implements spec.md §4.2 step 4: pending/running pods subtract
// from the budget, succeeded/failed pods are garbage collected
// opportunistically, unknown/other pods are logged and ignored.
func (a *Accountant) classify(ctx context.Context, p cluster.Pod) (c struct {
	used      Vector
	isPending bool
}) {
	switch p.Phase {
	case cluster.PhasePending, cluster.PhaseRunning:
		c.used = requestOrLimitOrZero(p)
		c.used.Pods = 1
		c.isPending = true
	case cluster.PhaseSucceeded, cluster.PhaseFailed:
		if err := a.client.DeletePod(ctx, p.Name); err != nil {
			a.log.V(1).Info("best-effort delete of terminal pod failed", "pod", p.Name, "error", err.Error())
		} else {
			metrics.PodsDeleted.Inc()
		}
	default:
		a.log.V(1).Info("pod in unknown or other state, not counted", "pod", p.Name, "phase", string(p.Phase))
	}
	return c
}

// requestOrLimitOrZero subtracts requested resources, falling back to
// limits if requests are absent, and to zero if neither is set
// (spec.md §4.2 step 4).
func requestOrLimitOrZero(p cluster.Pod) Vector {
	var v Vector
	cpu := p.Requests.CPU
	if cpu == "" {
		cpu = p.Limits.CPU
	}
	if cpu != "" {
		if f, err := ParseCPU(cpu); err == nil {
			v.CPU = f
		}
	}
	mem := p.Requests.Memory
	if mem == "" {
		mem = p.Limits.Memory
	}
	if mem != "" {
		if m, err := ParseMemory(mem); err == nil {
			v.Memory = m
		}
	}
	return v
}

// totalNodeCapacity lazily computes the total cluster capacity once from
// list_nodes; the node set is treated as stable within a process lifetime
// (spec.md §3).
func (a *Accountant) totalNodeCapacity(ctx context.Context) (Vector, error) {
	a.nodeCapacityMu.Lock()
	defer a.nodeCapacityMu.Unlock()
	if a.haveCapacity {
		return a.totalCapacity, nil
	}

	nodes, err := a.client.ListNodes(ctx)
	if err != nil {
		return Vector{}, err
	}
	var total Vector
	for _, n := range nodes {
		cpu, err := ParseCPU(n.CapacityCPU)
		if err != nil {
			a.log.Error(err, "failed to parse node cpu capacity", "node", n.Name)
			continue
		}
		mem, err := ParseMemory(n.CapacityMem)
		if err != nil {
			a.log.Error(err, "failed to parse node memory capacity", "node", n.Name)
			continue
		}
		pods, err := ParseCPU(n.CapacityPods) // pod counts have no suffix, ParseCPU's raw path suffices
		if err != nil {
			a.log.Error(err, "failed to parse node pod capacity", "node", n.Name)
			continue
		}
		total = total.Add(Vector{CPU: cpu, Memory: mem, Pods: int(pods)})
	}
	a.totalCapacity = total
	a.haveCapacity = true
	return a.totalCapacity, nil
}
