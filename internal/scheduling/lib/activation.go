// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

// Mixin that can be embedded in a step to provide some activation function tooling.
type ActivationFunction struct{}

// Get activations that will have no effect on the host.
func (m *ActivationFunction) NoEffect() float64 { return 0 }

// Add the activations, scaled by the multiplier, onto the weights.
// Hosts that are not in the activations map are removed from the result.
// The input map is not modified.
func (m *ActivationFunction) Apply(in, activations map[string]float64, multiplier float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for host, prevWeight := range in {
		activation, ok := activations[host]
		if !ok {
			continue
		}
		out[host] = prevWeight + multiplier*activation
	}
	return out
}
