package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/logger"
)

// DevicesResponse lists capture devices.
type DevicesResponse struct {
	Devices  []capture.DeviceInfo `json:"devices"`
	Selected string               `json:"selected"`
	Cached   bool                 `json:"cached"`
}

// GetDevices lists capture devices. Results are cached; ?refresh=true
// bypasses the cache.
func (c *Controller) GetDevices(ctx echo.Context) error {
	selected := ""
	if c.Settings != nil {
		selected = c.Settings.Audio.Device
	}

	if ctx.QueryParam("refresh") != "true" {
		if cached, found := c.deviceCache.Get(deviceCacheKey); found {
			if devices, ok := cached.([]capture.DeviceInfo); ok {
				return ctx.JSON(http.StatusOK, DevicesResponse{Devices: devices, Selected: selected, Cached: true})
			}
		}
	}

	devices, err := c.listDevices()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to enumerate audio devices", http.StatusServiceUnavailable)
	}
	if devices == nil {
		devices = []capture.DeviceInfo{}
	}

	c.deviceCache.Set(deviceCacheKey, devices, deviceCacheTTL)
	c.log.Debug("capture devices listed", logger.Int("count", len(devices)))
	return ctx.JSON(http.StatusOK, DevicesResponse{Devices: devices, Selected: selected})
}
