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

package scheduler

import (
	"testing"

	v1 "k8s.io/api/core/v1"

	"github.com/chubbymaggie/meister/pkg/jobs"
)

func testEnv() PodEnv {
	return PodEnv{
		WorkerImage:           "worker:latest",
		WorkerImagePullPolicy: "IfNotPresent",
		PostgresUser:          "meister",
		PostgresPassword:      "hunter2",
		PostgresDatabase:      "meister",
	}
}

// Scenario (b) from spec.md §8: request_cpu=0.5, request_memory=512,
// limit_cpu unset, limit_memory=256. Expected limits.cpu = schema default
// and limits.memory = 2*512 = 1024, since the supplied limit (256) is
// below the request and the 2x request padding replaces it.
func TestBuildPodSpec_ResourceDefaulting(t *testing.T) {
	reqCPU := 0.5
	reqMem := int64(512)
	limMem := int64(256)
	job := jobs.Job{ID: 42, Worker: "rex", RequestCPU: &reqCPU, RequestMemory: &reqMem, LimitMemory: &limMem}

	pod := buildPodSpec(job, testEnv())
	container := pod.Spec.Containers[0]

	const wantLimitMemoryBytes = 1024 * 1024 * 1024 // 1024Mi
	gotLimitMemory := container.Resources.Limits[v1.ResourceMemory]
	if gotLimitMemory.Value() != wantLimitMemoryBytes {
		t.Errorf("expected limits.memory = 1024Mi (%d bytes), got %d", int64(wantLimitMemoryBytes), gotLimitMemory.Value())
	}
	gotLimitCPU := container.Resources.Limits[v1.ResourceCPU]
	if diff := gotLimitCPU.AsApproximateFloat64() - jobs.DefaultLimitCPU; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected limits.cpu = schema default %v, got %v", jobs.DefaultLimitCPU, gotLimitCPU.AsApproximateFloat64())
	}
}

// Invariant 2 from spec.md §8: limit_cpu >= request_cpu and
// limit_memory >= request_memory for every job, across a spread of inputs.
func TestBuildPodSpec_LimitNeverBelowRequest(t *testing.T) {
	cases := []jobs.Job{
		{ID: 1},
		{ID: 2, RequestCPU: f(2), RequestMemory: i(4096)},
		{ID: 3, RequestCPU: f(0.1), RequestMemory: i(128), LimitCPU: f(0.05), LimitMemory: i(64)},
		{ID: 4, RequestCPU: f(1), RequestMemory: i(1024), LimitCPU: f(4), LimitMemory: i(8192)},
	}
	for _, j := range cases {
		pod := buildPodSpec(j, testEnv())
		c := pod.Spec.Containers[0]
		reqCPU := c.Resources.Requests[v1.ResourceCPU]
		limCPU := c.Resources.Limits[v1.ResourceCPU]
		reqMem := c.Resources.Requests[v1.ResourceMemory]
		limMem := c.Resources.Limits[v1.ResourceMemory]
		if limCPU.AsApproximateFloat64() < reqCPU.AsApproximateFloat64() {
			t.Errorf("job %d: limit cpu %s < request cpu %s", j.ID, limCPU.String(), reqCPU.String())
		}
		if limMem.Value() < reqMem.Value() {
			t.Errorf("job %d: limit memory %s < request memory %s", j.ID, limMem.String(), reqMem.String())
		}
	}
}

// Invariant 3 from spec.md §8: kvm_access implies privileged and /dev/kvm
// mounted; the absence of kvm_access implies not privileged.
func TestBuildPodSpec_KVMAccess(t *testing.T) {
	withKVM := buildPodSpec(jobs.Job{ID: 1, KVMAccess: true}, testEnv())
	c := withKVM.Spec.Containers[0]
	if c.SecurityContext == nil || c.SecurityContext.Privileged == nil || !*c.SecurityContext.Privileged {
		t.Error("expected privileged security context when kvm_access is set")
	}
	foundMount := false
	for _, m := range c.VolumeMounts {
		if m.MountPath == "/dev/kvm" {
			foundMount = true
		}
	}
	if !foundMount {
		t.Error("expected /dev/kvm to be mounted when kvm_access is set")
	}

	without := buildPodSpec(jobs.Job{ID: 2}, testEnv())
	c2 := without.Spec.Containers[0]
	if c2.SecurityContext != nil && c2.SecurityContext.Privileged != nil && *c2.SecurityContext.Privileged {
		t.Error("expected no privileged security context when kvm_access is unset")
	}
}

func TestBuildPodSpec_RestartPolicy(t *testing.T) {
	restartable := buildPodSpec(jobs.Job{ID: 1, Restart: true}, testEnv())
	if restartable.Spec.RestartPolicy != v1.RestartPolicyOnFailure {
		t.Errorf("expected OnFailure, got %s", restartable.Spec.RestartPolicy)
	}
	oneShot := buildPodSpec(jobs.Job{ID: 2}, testEnv())
	if oneShot.Spec.RestartPolicy != v1.RestartPolicyNever {
		t.Errorf("expected Never, got %s", oneShot.Spec.RestartPolicy)
	}
}

func TestBuildPodSpec_DevShmAlwaysMounted(t *testing.T) {
	pod := buildPodSpec(jobs.Job{ID: 1}, testEnv())
	found := false
	for _, m := range pod.Spec.Containers[0].VolumeMounts {
		if m.MountPath == "/dev/shm" {
			found = true
		}
	}
	if !found {
		t.Error("expected /dev/shm to always be mounted")
	}
}

func TestBuildPodSpec_Labels(t *testing.T) {
	pod := buildPodSpec(jobs.Job{ID: 7, Worker: "rex"}, testEnv())
	want := map[string]string{"app": "worker", "worker": "rex", "job_id": "7"}
	for k, v := range want {
		if pod.Labels[k] != v {
			t.Errorf("label %s: expected %q, got %q", k, v, pod.Labels[k])
		}
	}
	if pod.Name != "worker-7" {
		t.Errorf("expected pod name worker-7, got %s", pod.Name)
	}
}

func f(v float64) *float64 { return &v }
func i(v int64) *int64     { return &v }
