// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

type StepResult struct {
	// The activations calculated by this step.
	// For filters, hosts missing from this map are rejected.
	Activations map[string]float64

	// Step statistics like:
	//
	//	{
	//	  "free capacity": {
	//	     "unit": "GB",
	//	     "hosts": { "host1@pool": 10, "host2@pool": 100 }
	//	   }
	//	}
	//
	// These statistics are used to display the step's effect on the hosts.
	// For example: free capacity: before [ 10 GB, 100 GB ], after [ 100 GB, 10 GB ]
	Statistics map[string]StepStatistics

	// Why a host was rejected by a filter, by host.
	Reasons map[string]string
}

type StepStatistics struct {
	// The unit of the statistic.
	Unit string
	// The hosts and their values.
	Hosts map[string]float64
}
