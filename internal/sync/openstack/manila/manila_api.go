// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package manila

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/sharedfilesystems/v2/schedulerstats"
	"github.com/gophercloud/gophercloud/v2/pagination"
	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/keystone"
	"github.com/kramdoss/manila/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
)

// Label of the storage pool datasource in metrics and logs.
const datasourceStoragePools = "manila_storage_pools"

type ManilaAPI interface {
	// Init the manila API.
	Init(ctx context.Context) error
	// Get all manila storage pools.
	GetAllStoragePools(ctx context.Context) ([]StoragePool, error)
}

// API for OpenStack Manila.
type manilaAPI struct {
	// Monitor to track the api.
	mon sync.Monitor
	// Keystone api to authenticate against.
	keystoneAPI keystone.KeystoneAPI
	// Manila configuration.
	conf conf.SyncManilaConfig
	// Authenticated OpenStack service client to fetch the data.
	sc *gophercloud.ServiceClient
}

// Create a new OpenStack Manila api.
func NewManilaAPI(mon sync.Monitor, k keystone.KeystoneAPI, conf conf.SyncManilaConfig) ManilaAPI {
	return &manilaAPI{mon: mon, keystoneAPI: k, conf: conf}
}

// Init the manila API.
func (api *manilaAPI) Init(ctx context.Context) error {
	if err := api.keystoneAPI.Authenticate(ctx); err != nil {
		return fmt.Errorf("failed to authenticate against keystone: %w", err)
	}
	// Automatically fetch the manila endpoint from the keystone service catalog.
	provider := api.keystoneAPI.Client()
	// Workaround to find the v2 service of manila.
	// See: https://github.com/gophercloud/gophercloud/issues/3347
	gophercloud.ServiceTypeAliases["shared-file-system"] = []string{"sharev2"}
	availability := api.conf.Availability
	if availability == "" {
		availability = api.keystoneAPI.Availability()
	}
	sc, err := openstack.NewSharedFileSystemV2(provider, gophercloud.EndpointOpts{
		Type:         "sharev2",
		Availability: gophercloud.Availability(availability),
	})
	if err != nil {
		return fmt.Errorf("failed to create manila service client: %w", err)
	}
	sc.Microversion = "2.65"
	api.sc = sc
	return nil
}

// Get all Manila storage pools with their capabilities.
func (api *manilaAPI) GetAllStoragePools(ctx context.Context) ([]StoragePool, error) {
	if api.sc == nil {
		return nil, errors.New("manila api is not initialized")
	}
	slog.Info("fetching manila data", "label", datasourceStoragePools)
	// Fetch all pages.
	pages, err := func() (pagination.Page, error) {
		if api.mon.RequestTimer != nil {
			hist := api.mon.RequestTimer.WithLabelValues(datasourceStoragePools)
			timer := prometheus.NewTimer(hist)
			defer timer.ObserveDuration()
		}
		return schedulerstats.ListDetail(api.sc, schedulerstats.ListDetailOpts{}).AllPages(ctx)
	}()
	if err != nil {
		return nil, err
	}
	// Parse the json data into our custom model.
	var data = &struct {
		Pools []StoragePool `json:"pools"`
	}{}
	if err := pages.(schedulerstats.PoolPage).ExtractInto(data); err != nil {
		return nil, err
	}
	slog.Info("fetched", "label", datasourceStoragePools, "count", len(data.Pools))
	return data.Pools, nil
}
