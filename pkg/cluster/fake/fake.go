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

// Package fake is an in-memory cluster.Client used by pkg/resources and
// pkg/scheduler tests, in the spirit of the teacher's pkg/cloudprovider/fake
// package.
package fake

import (
	"context"
	"sync"

	v1 "k8s.io/api/core/v1"

	"github.com/chubbymaggie/meister/pkg/cluster"
)

type Cluster struct {
	mu    sync.Mutex
	Nodes []cluster.Node
	Pods  map[string]cluster.Pod

	CreateCalls []string
	DeleteCalls []string
}

func New() *Cluster {
	return &Cluster{Pods: map[string]cluster.Pod{}}
}

func (c *Cluster) ListNodes(_ context.Context) ([]cluster.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]cluster.Node, len(c.Nodes))
	copy(out, c.Nodes)
	return out, nil
}

func (c *Cluster) ListPods(_ context.Context) ([]cluster.Pod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]cluster.Pod, 0, len(c.Pods))
	for _, p := range c.Pods {
		out = append(out, p)
	}
	return out, nil
}

func (c *Cluster) CreatePod(_ context.Context, spec *v1.Pod) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CreateCalls = append(c.CreateCalls, spec.Name)
	if _, exists := c.Pods[spec.Name]; exists {
		return cluster.ErrAlreadyExists
	}
	pod := cluster.Pod{Name: spec.Name, Phase: cluster.PhasePending}
	if len(spec.Spec.Containers) > 0 {
		res := spec.Spec.Containers[0].Resources
		if q, ok := res.Requests[v1.ResourceCPU]; ok {
			pod.Requests.CPU = q.String()
		}
		if q, ok := res.Requests[v1.ResourceMemory]; ok {
			pod.Requests.Memory = q.String()
		}
		if q, ok := res.Limits[v1.ResourceCPU]; ok {
			pod.Limits.CPU = q.String()
		}
		if q, ok := res.Limits[v1.ResourceMemory]; ok {
			pod.Limits.Memory = q.String()
		}
	}
	c.Pods[spec.Name] = pod
	return nil
}

func (c *Cluster) DeletePod(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DeleteCalls = append(c.DeleteCalls, name)
	delete(c.Pods, name)
	return nil
}

func (c *Cluster) PodExists(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.Pods[name]
	return ok, nil
}

// SetPhase is a test helper to move a pod into a terminal/other state
// without going through CreatePod.
func (c *Cluster) SetPhase(name string, phase cluster.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.Pods[name]
	p.Name = name
	p.Phase = phase
	c.Pods[name] = p
}
