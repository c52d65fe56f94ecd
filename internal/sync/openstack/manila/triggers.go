// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package manila

// Topic on which the number of reported pools is published after each sync.
const TriggerManilaStoragePoolsSynced = "manila/scheduler/sync/storage_pools"
