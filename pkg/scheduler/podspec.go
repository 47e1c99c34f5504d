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
	"strconv"

	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/chubbymaggie/meister/pkg/jobs"
	"github.com/chubbymaggie/meister/pkg/resources"
)

// PodEnv carries the ambient values the pod spec builder stitches into
// every worker's environment (spec.md §6's "database credentials").
type PodEnv struct {
	WorkerImage           string
	WorkerImagePullPolicy string
	PostgresUser          string
	PostgresPassword      string
	PostgresDatabase      string
	PostgresUseSlaves     bool
}

// buildPodSpec implements spec.md §4.5's pod-spec construction rules,
// grounded directly on
// original_source/meister/schedulers/__init__.py's _kube_pod_template.
func buildPodSpec(job jobs.Job, env PodEnv) *v1.Pod {
	name := job.WorkerName()

	requestCPU := jobs.DefaultRequestCPU
	if job.RequestCPU != nil {
		requestCPU = *job.RequestCPU
	}
	requestMemory := int64(jobs.DefaultRequestMemory)
	if job.RequestMemory != nil {
		requestMemory = *job.RequestMemory
	}

	// Invariant 3 (spec.md §3): limit >= request, substituting 2x request
	// padding whenever the job's own hint (or the default) would violate it.
	limitCPU := jobs.DefaultLimitCPU
	switch {
	case job.LimitCPU == nil && requestCPU <= limitCPU:
		// keep the schema default
	case job.LimitCPU != nil && requestCPU < *job.LimitCPU:
		limitCPU = *job.LimitCPU
	default:
		limitCPU = requestCPU * 2
	}

	limitMemory := int64(jobs.DefaultLimitMemory)
	switch {
	case job.LimitMemory == nil && requestMemory <= limitMemory:
		// keep the schema default
	case job.LimitMemory != nil && requestMemory < *job.LimitMemory:
		limitMemory = *job.LimitMemory
	default:
		limitMemory = requestMemory * 2
	}

	restartPolicy := v1.RestartPolicyNever
	if job.Restart {
		restartPolicy = v1.RestartPolicyOnFailure
	}

	volumes := []v1.Volume{
		{
			Name: "devshm",
			VolumeSource: v1.VolumeSource{
				EmptyDir: &v1.EmptyDirVolumeSource{Medium: v1.StorageMediumMemory},
			},
		},
	}
	mounts := []v1.VolumeMount{{Name: "devshm", MountPath: "/dev/shm"}}
	var securityContext *v1.SecurityContext

	if job.KVMAccess {
		volumes = append(volumes, v1.Volume{
			Name:         "devkvm",
			VolumeSource: v1.VolumeSource{HostPath: &v1.HostPathVolumeSource{Path: "/dev/kvm"}},
		})
		mounts = append(mounts, v1.VolumeMount{Name: "devkvm", MountPath: "/dev/kvm"})
		privileged := true
		securityContext = &v1.SecurityContext{Privileged: &privileged}
	}

	if job.DataAccess {
		volumes = append(volumes, v1.Volume{
			Name:         "data",
			VolumeSource: v1.VolumeSource{HostPath: &v1.HostPathVolumeSource{Path: "/data"}},
		})
		mounts = append(mounts, v1.VolumeMount{Name: "data", MountPath: "/data"})
	}

	envVars := []v1.EnvVar{
		{Name: "JOB_ID", Value: strconv.FormatInt(job.ID, 10)},
	}
	if env.PostgresUseSlaves {
		envVars = append(envVars, v1.EnvVar{Name: "POSTGRES_USE_SLAVES", Value: "true"})
	}
	envVars = append(envVars,
		v1.EnvVar{Name: "POSTGRES_DATABASE_USER", Value: env.PostgresUser},
		v1.EnvVar{Name: "POSTGRES_DATABASE_PASSWORD", Value: env.PostgresPassword},
		v1.EnvVar{Name: "POSTGRES_DATABASE_NAME", Value: env.PostgresDatabase},
		v1.EnvVar{Name: "POSTGRES_MASTER_CONNECTIONS", Value: "1"},
		v1.EnvVar{Name: "POSTGRES_SLAVE_CONNECTIONS", Value: "1"},
	)

	return &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				"app":    "worker",
				"worker": job.Worker,
				"job_id": strconv.FormatInt(job.ID, 10),
			},
		},
		Spec: v1.PodSpec{
			RestartPolicy: restartPolicy,
			Containers: []v1.Container{
				{
					Name:            name,
					Image:           env.WorkerImage,
					ImagePullPolicy: v1.PullPolicy(env.WorkerImagePullPolicy),
					Resources: v1.ResourceRequirements{
						Requests: v1.ResourceList{
							v1.ResourceCPU:    resource.MustParse(resources.FormatCPU(requestCPU)),
							v1.ResourceMemory: resource.MustParse(resources.FormatMemoryMi(requestMemory)),
						},
						Limits: v1.ResourceList{
							v1.ResourceCPU:    resource.MustParse(resources.FormatCPU(limitCPU)),
							v1.ResourceMemory: resource.MustParse(resources.FormatMemoryMi(limitMemory)),
						},
					},
					Env:             envVars,
					VolumeMounts:    mounts,
					SecurityContext: securityContext,
				},
			},
			Volumes: volumes,
		},
	}
}
