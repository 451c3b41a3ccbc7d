package video

import (
	"fmt"
	"net/url"
	"strings"
)

// Default Axis VAPIX paths.
const (
	DefaultScheme        = "http"
	DefaultImageSizePath = "/axis-cgi/view/imagesize.cgi?camera=1"
	DefaultVideoPath     = "/mjpg/video.mjpg"
)

// Endpoints holds the camera HTTP paths queried by the output.
type Endpoints struct {
	// Scheme is used when the device address carries none. Default: "http".
	Scheme string

	// ImageSizePath is the image size CGI, including its query string.
	ImageSizePath string

	// VideoPath is the continuous MJPEG endpoint.
	VideoPath string
}

// DefaultEndpoints returns the standard Axis paths over plain HTTP.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Scheme:        DefaultScheme,
		ImageSizePath: DefaultImageSizePath,
		VideoPath:     DefaultVideoPath,
	}
}

func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.Scheme == "" {
		e.Scheme = d.Scheme
	}
	if e.ImageSizePath == "" {
		e.ImageSizePath = d.ImageSizePath
	}
	if e.VideoPath == "" {
		e.VideoPath = d.VideoPath
	}
	return e
}

// resolve joins a device address with an endpoint path.
//
// The address is either "host[:port]" or a full "scheme://host[:port]" base.
func (e Endpoints) resolve(address, path string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("device address is empty")
	}
	if !strings.Contains(address, "://") {
		address = e.Scheme + "://" + address
	}

	base, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("parsing device address %q: %w", address, err)
	}
	if base.Host == "" {
		return "", fmt.Errorf("device address %q has no host", address)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint path %q: %w", path, err)
	}

	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	base.RawQuery = ref.RawQuery
	return base.String(), nil
}
