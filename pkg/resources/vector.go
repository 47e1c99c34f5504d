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

// Vector is a {cpu, memory, pods} budget: Node Capacity and Available
// Resources share this shape (spec.md §3).
type Vector struct {
	CPU    float64
	Memory int64
	Pods   int
}

// Add returns the element-wise sum.
func (v Vector) Add(o Vector) Vector {
	return Vector{CPU: v.CPU + o.CPU, Memory: v.Memory + o.Memory, Pods: v.Pods + o.Pods}
}

// Sub returns the element-wise difference.
func (v Vector) Sub(o Vector) Vector {
	return Vector{CPU: v.CPU - o.CPU, Memory: v.Memory - o.Memory, Pods: v.Pods - o.Pods}
}

// Scale multiplies every component by factor, used to apply the
// overprovisioning factor (spec.md §3).
func (v Vector) Scale(factor float64) Vector {
	return Vector{
		CPU:    v.CPU * factor,
		Memory: int64(float64(v.Memory) * factor),
		Pods:   int(float64(v.Pods) * factor),
	}
}

// ClampNonNegative enforces the "Available Resources >= 0" invariant
// (spec.md §3) before any admission decision is made against it.
func (v Vector) ClampNonNegative() Vector {
	out := v
	if out.CPU < 0 {
		out.CPU = 0
	}
	if out.Memory < 0 {
		out.Memory = 0
	}
	if out.Pods < 0 {
		out.Pods = 0
	}
	return out
}

// Fits reports whether request can be admitted against the available
// budget v (spec.md §4.5 admission check).
func (v Vector) Fits(request Vector) bool {
	return request.CPU <= v.CPU && request.Memory <= v.Memory && request.Pods <= v.Pods
}
