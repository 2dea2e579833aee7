// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// DeviceClient lists the audio devices the backend reported.
//
// Access this client through [Client.Devices]:
//
//	devices, err := client.Devices.List(ctx)
//	for _, d := range devices.Inputs {
//	    fmt.Println(d.Name)
//	}
type DeviceClient struct {
	c *Client
}

// List returns the panel's cached device list.
func (d *DeviceClient) List(ctx context.Context) (*Devices, error) {
	data, err := d.c.get(ctx, "/api/v1/devices")
	if err != nil {
		return nil, err
	}
	return parseDevices(data)
}

// Refresh asks the backend for its devices again. If the backend cannot be
// reached, the error is returned along with the previous list.
func (d *DeviceClient) Refresh(ctx context.Context) (*Devices, error) {
	data, err := d.c.post(ctx, "/api/v1/devices/refresh")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && len(apiErr.data) > 0 {
			if list, perr := parseDevices(apiErr.data); perr == nil {
				return list, err
			}
		}
		return nil, err
	}
	return parseDevices(data)
}

func parseDevices(data json.RawMessage) (*Devices, error) {
	var list Devices
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse devices: %w", err)
	}
	return &list, nil
}
