package audit

import (
	"strings"

	"github.com/infolock/server/internal/model"
	"github.com/mssola/useragent"
)

const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
)

// ParseDevice extracts browser, OS and a coarse device class from a user agent
func ParseDevice(userAgent string) model.Device {
	d := model.Device{DeviceType: classifyDevice(userAgent)}
	if userAgent == "" {
		return d
	}
	ua := useragent.New(userAgent)
	d.Browser, _ = ua.Browser()
	d.OS = ua.OS()
	return d
}

func classifyDevice(userAgent string) string {
	s := strings.ToLower(userAgent)
	switch {
	case strings.Contains(s, "mobile"), strings.Contains(s, "android"), strings.Contains(s, "touch"):
		return DeviceMobile
	case strings.Contains(s, "tablet"):
		return DeviceTablet
	}
	return DeviceDesktop
}
