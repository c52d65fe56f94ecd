// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

// Clamp a value between lower and upper bounds.
func clamp(value, lowerBound, upperBound float64) float64 {
	if lowerBound > upperBound {
		lowerBound, upperBound = upperBound, lowerBound
	}
	return max(lowerBound, min(value, upperBound))
}

// Min-max scale a value between lower and upper bounds and apply the given activation.
// Note: the resulting value is clamped between the activation bounds.
// If the value range is empty, all values map to zero.
func MinMaxScale(value, lowerBound, upperBound, activationLowerBound, activationUpperBound float64) float64 {
	if lowerBound == upperBound || activationLowerBound == activationUpperBound {
		return 0
	}
	normalized := (value - lowerBound) / (upperBound - lowerBound)
	activation := activationLowerBound + normalized*(activationUpperBound-activationLowerBound)
	return clamp(activation, activationLowerBound, activationUpperBound)
}
