// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"context"

	"github.com/gophercloud/gophercloud/v2"
)

// Keystone api that hands out a provider client pointing at a fixed url.
type MockKeystoneAPI struct {
	Url string
	// Error returned by Authenticate, if any.
	Err error
}

func (m *MockKeystoneAPI) Authenticate(ctx context.Context) error {
	return m.Err
}

func (m *MockKeystoneAPI) Client() *gophercloud.ProviderClient {
	url := m.Url
	return &gophercloud.ProviderClient{
		EndpointLocator: func(gophercloud.EndpointOpts) (string, error) {
			return url, nil
		},
	}
}

func (m *MockKeystoneAPI) Availability() string {
	return "public"
}
