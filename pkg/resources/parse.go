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

// Package resources implements spec.md §4.1's fixed resource-string
// semantics and §4.2's Resource Accountant. Parsing is grounded directly
// on original_source/meister/schedulers/__init__.py's cpu2float/memory2int.
package resources

import (
	"strconv"
	"strings"
)

// ParseCPU converts a cluster CPU quantity string to cores. The "m"
// suffix means milli-cores (divide by 1000); anything else is parsed as
// raw cores (spec.md §4.1).
func ParseCPU(cpu string) (float64, error) {
	if strings.HasSuffix(cpu, "m") {
		milli, err := strconv.ParseFloat(strings.TrimSuffix(cpu, "m"), 64)
		if err != nil {
			return 0, err
		}
		return milli / 1000.0, nil
	}
	return strconv.ParseFloat(cpu, 64)
}

// ParseMemory converts a cluster memory quantity string to bytes. "Ki",
// "Mi", "Gi" are binary multipliers; anything else is parsed as raw bytes
// (spec.md §4.1).
func ParseMemory(memory string) (int64, error) {
	multiplier := int64(1)
	numeric := memory
	switch {
	case strings.HasSuffix(memory, "Ki"):
		multiplier = 1024
		numeric = strings.TrimSuffix(memory, "Ki")
	case strings.HasSuffix(memory, "Mi"):
		multiplier = 1024 * 1024
		numeric = strings.TrimSuffix(memory, "Mi")
	case strings.HasSuffix(memory, "Gi"):
		multiplier = 1024 * 1024 * 1024
		numeric = strings.TrimSuffix(memory, "Gi")
	}
	n, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}

// FormatMemoryMi renders a MiB quantity the way the cluster API expects
// it in a pod spec (spec.md §4.5's "{}Mi".format(...) equivalent).
func FormatMemoryMi(mi int64) string {
	return strconv.FormatInt(mi, 10) + "Mi"
}

// FormatCPU renders a core quantity the way the cluster API expects it.
func FormatCPU(cores float64) string {
	return strconv.FormatFloat(cores, 'g', -1, 64)
}
