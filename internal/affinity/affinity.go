// Package affinity chooses and pins the CPU core a role goroutine runs on.
package affinity

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
)

// ErrInvalidNode is returned for NUMA nodes other than 0 and 1.
var ErrInvalidNode = errors.New("invalid NUMA node")

// Plan is the core chosen for a process.
type Plan struct {
	// Index is the position of the core among the node's cores
	Index int

	// CPU is the logical CPU id passed to the scheduler
	CPU int

	// NumCores is the number of cores on the NUMA node
	NumCores int

	// Collision is set when there are more processes than cores, so
	// processes may share a core
	Collision bool
}

// nodeCPUListPath is a variable so tests can point it at a fixture.
var nodeCPUListPath = "/sys/devices/system/node/node%d/cpulist"

// CoresForNode returns the logical CPU ids of a NUMA node. When the kernel
// does not expose NUMA topology, all logical CPUs are returned.
func CoresForNode(node int) ([]int, error) {
	if node < 0 || node > 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNode, node)
	}

	if data, err := os.ReadFile(fmt.Sprintf(nodeCPUListPath, node)); err == nil {
		if cores, err := ParseCPUList(strings.TrimSpace(string(data))); err == nil && len(cores) > 0 {
			return cores, nil
		}
	}

	n, err := cpu.Counts(true)
	if err != nil {
		return nil, fmt.Errorf("failed to count CPUs: %w", err)
	}
	if n < 1 {
		return nil, fmt.Errorf("failed to count CPUs: got %d", n)
	}

	cores := make([]int, n)
	for i := range cores {
		cores[i] = i
	}
	return cores, nil
}

// Choose picks core (processID + 2) mod len(cores). The first two cores are
// left to the system while there are enough of them.
func Choose(processID int, cores []int) Plan {
	if len(cores) == 0 {
		return Plan{}
	}
	index := (processID + 2) % len(cores)
	return Plan{
		Index:     index,
		CPU:       cores[index],
		NumCores:  len(cores),
		Collision: processID >= len(cores),
	}
}

// ParseCPUList parses the kernel's cpulist format, e.g. "0-3,8,10-11".
func ParseCPUList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}

	var cores []int
	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(part, "-")

		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu list %q: %w", s, err)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("invalid cpu list %q: %w", s, err)
			}
		}
		if first < 0 || last < first {
			return nil, fmt.Errorf("invalid cpu range %q", part)
		}

		for c := first; c <= last; c++ {
			cores = append(cores, c)
		}
	}
	return cores, nil
}
