package nodelock

import (
	"fmt"
	"runtime"
)

// Well-known feature ids carrying hardware limits. A value of 0 means
// unlimited.
const (
	FeatureMaxCPUPerNode = 9001
	FeatureMaxNodes      = 9002
)

// HardwareLimits are the limits granted by a license.
type HardwareLimits struct {
	MaxCPUPerNode int
	MaxNodes      int
}

// ExtractLimits reads the hardware limits from a license's features.
func ExtractLimits(l *License) HardwareLimits {
	var limits HardwareLimits
	if l == nil {
		return limits
	}
	if v, ok := l.Feature(FeatureMaxCPUPerNode); ok {
		limits.MaxCPUPerNode = v
	}
	if v, ok := l.Feature(FeatureMaxNodes); ok {
		limits.MaxNodes = v
	}
	return limits
}

// CheckCPU verifies that this machine's CPU count does not exceed the limit.
func CheckCPU(limits HardwareLimits) error {
	return checkCPUCount(limits, runtime.NumCPU())
}

func checkCPUCount(limits HardwareLimits, cpuCount int) error {
	if limits.MaxCPUPerNode <= 0 {
		return nil
	}
	if cpuCount > limits.MaxCPUPerNode {
		return fmt.Errorf("%w: machine has %d CPUs, limit is %d", ErrCPULimitExceeded, cpuCount, limits.MaxCPUPerNode)
	}
	return nil
}

// CheckNodeCount verifies that the number of active nodes does not exceed
// the limit.
func CheckNodeCount(limits HardwareLimits, currentNodes int) error {
	if limits.MaxNodes <= 0 {
		return nil
	}
	if currentNodes > limits.MaxNodes {
		return fmt.Errorf("%w: %d nodes active, limit is %d", ErrNodeLimitExceeded, currentNodes, limits.MaxNodes)
	}
	return nil
}

// CheckLimits enforces the CPU limit of l on this machine.
func CheckLimits(l *License) error {
	return CheckCPU(ExtractLimits(l))
}
