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

// Package cluster is the typed wrapper over the cluster's control-plane
// HTTP API described in spec.md §4.1: list/create/delete pods and
// list/read nodes. It is grounded on the teacher's
// pkg/controllers/provisioning/provisioner.go (coreV1Client
// corev1.CoreV1Interface) and original_source/meister/schedulers/__init__.py's
// KubernetesScheduler, which wraps the same four operations over pykube.
package cluster

import (
	"context"
	"errors"
	"fmt"

	retry "github.com/avast/retry-go"
	"github.com/go-logr/logr"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Phase mirrors the pod lifecycle states the Accountant and Scheduler
// reason about (spec.md §4.1).
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
	PhaseUnknown   Phase = "unknown"
	PhaseOther     Phase = "other"
)

// ResourceStrings carries the raw, unparsed CPU/memory quantity strings
// for a pod's requests or limits, in the cluster API's own string
// encoding (spec.md §4.1). Parsing is deliberately left to pkg/resources
// so this package stays a thin transport wrapper.
type ResourceStrings struct {
	CPU    string
	Memory string
}

// Pod is the subset of a cluster pod this core reasons about.
type Pod struct {
	Name     string
	Phase    Phase
	Requests ResourceStrings
	Limits   ResourceStrings
}

// Node is the subset of a cluster node this core reasons about.
type Node struct {
	Name         string
	CapacityCPU  string
	CapacityMem  string
	CapacityPods string
}

// ErrAlreadyExists is returned by CreatePod when the cluster API answers
// HTTP 409 (spec.md §4.1); callers treat it as success.
var ErrAlreadyExists = errors.New("cluster: pod already exists")

// Client is the Cluster Client capability (spec.md §4.1).
type Client interface {
	ListNodes(ctx context.Context) ([]Node, error)
	ListPods(ctx context.Context) ([]Pod, error)
	CreatePod(ctx context.Context, spec *v1.Pod) error
	DeletePod(ctx context.Context, name string) error
	PodExists(ctx context.Context, name string) (bool, error)
}

// client is the client-go backed implementation.
type client struct {
	clientset kubernetes.Interface
	namespace string
	log       logr.Logger
}

// New wraps an existing client-go clientset. namespace scopes every pod
// operation (workers all live in one namespace).
func New(clientset kubernetes.Interface, namespace string, log logr.Logger) Client {
	return &client{clientset: clientset, namespace: namespace, log: log}
}

func (c *client) ListNodes(ctx context.Context) ([]Node, error) {
	var out []Node
	err := c.withRetry(ctx, "list_nodes", func() error {
		list, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
		if err != nil {
			return err
		}
		out = make([]Node, 0, len(list.Items))
		for _, n := range list.Items {
			cap := n.Status.Capacity
			out = append(out, Node{
				Name:         n.Name,
				CapacityCPU:  cap.Cpu().String(),
				CapacityMem:  cap.Memory().String(),
				CapacityPods: cap.Pods().String(),
			})
		}
		return nil
	})
	return out, err
}

func (c *client) ListPods(ctx context.Context) ([]Pod, error) {
	var out []Pod
	err := c.withRetry(ctx, "list_pods", func() error {
		list, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return err
		}
		out = make([]Pod, 0, len(list.Items))
		for _, p := range list.Items {
			out = append(out, toPod(p))
		}
		return nil
	})
	return out, err
}

func toPod(p v1.Pod) Pod {
	pod := Pod{Name: p.Name, Phase: toPhase(p.Status.Phase)}
	if len(p.Spec.Containers) > 0 {
		res := p.Spec.Containers[0].Resources
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
	return pod
}

func toPhase(p v1.PodPhase) Phase {
	switch p {
	case v1.PodPending:
		return PhasePending
	case v1.PodRunning:
		return PhaseRunning
	case v1.PodSucceeded:
		return PhaseSucceeded
	case v1.PodFailed:
		return PhaseFailed
	case v1.PodUnknown:
		return PhaseUnknown
	default:
		return PhaseOther
	}
}

func (c *client) CreatePod(ctx context.Context, spec *v1.Pod) error {
	err := c.withRetry(ctx, "create_pod", func() error {
		_, err := c.clientset.CoreV1().Pods(c.namespace).Create(ctx, spec, metav1.CreateOptions{})
		return err
	})
	if apierrors.IsAlreadyExists(err) {
		c.log.V(1).Info("pod already scheduled", "pod", spec.Name)
		return ErrAlreadyExists
	}
	return err
}

func (c *client) DeletePod(ctx context.Context, name string) error {
	err := c.withRetry(ctx, "delete_pod", func() error {
		return c.clientset.CoreV1().Pods(c.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	})
	// Idempotent: an absent pod is success (spec.md §4.1).
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *client) PodExists(ctx context.Context, name string) (bool, error) {
	_, err := c.clientset.CoreV1().Pods(c.namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// withRetry absorbs transient transport/5xx blips (spec.md §7's
// "Transient cluster error" category) within a single call rather than
// always waiting a full tick. It never retries 409/404, which are
// meaningful outcomes, not transport failures.
func (c *client) withRetry(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !apierrors.IsAlreadyExists(err) && !apierrors.IsNotFound(err) && !apierrors.IsConflict(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.V(1).Info("retrying cluster call", "op", op, "attempt", n, "error", err.Error())
		}),
	)
	if err != nil && !apierrors.IsAlreadyExists(err) && !apierrors.IsNotFound(err) {
		c.log.Error(err, "cluster call failed", "op", op)
		return fmt.Errorf("%s: %w", op, err)
	}
	return err
}
