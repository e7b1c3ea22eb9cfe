// Package providers registers the available camera provider adapters.
// Kept separate from the camera package so the registry stays free of
// provider imports.
package providers

import (
	"github.com/tphakala/pestguard-go/internal/camera"
	"github.com/tphakala/pestguard-go/internal/camera/unifi"
)

// Factories maps integration kind tags to their adapter constructors.
func Factories() map[string]camera.HandlerFactory {
	return map[string]camera.HandlerFactory{
		"unifi_protect": func(host, apiKey string) camera.Handler {
			return unifi.NewHandler(host, apiKey)
		},
	}
}
