// Package unifi implements the camera integration adapter for UniFi Protect
// controllers. It talks to the Protect REST API with an API key, parses the
// bootstrap document for the device inventory, and streams deterrent audio to
// a camera speaker through a talkback session.
package unifi

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/pestguard-go/internal/camera"
	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/logging"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("unifi")
}

const (
	// bootstrapTTL caches the device inventory between ticks.
	bootstrapTTL = 30 * time.Second
	// talkbackWait is the hard wait for the audio streaming subprocess.
	talkbackWait = 10 * time.Second
)

// Handler is the UniFi Protect integration adapter. One instance per
// configured integration, sharing a single pooled HTTP client.
type Handler struct {
	host   string
	apiKey string
	client *http.Client
	cache  *cache.Cache // bootstrap document cache
}

// NewHandler creates an adapter for one Protect controller. Field gear runs
// self-signed certificates, so TLS verification is disabled.
func NewHandler(host, apiKey string) *Handler {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed controller certs
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
	}
	return &Handler{
		host:   host,
		apiKey: apiKey,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		cache: cache.New(bootstrapTTL, time.Minute),
	}
}

// Close releases idle connections held by the shared HTTP client.
func (h *Handler) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// get issues an authenticated GET and returns the body. Non-2xx responses
// become HTTP-categorized errors carrying the status code.
func (h *Handler) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.host+path, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("unifi").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}
	req.Header.Set("X-API-KEY", h.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("unifi").
			Category(errors.CategoryNetwork).
			NetworkContext(h.host+path, h.client.Timeout).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("unexpected status %d from %s", resp.StatusCode, path).
			Component("unifi").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Context("path", path).
			Build()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("unifi").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}
	return body, nil
}

// TestConnection verifies the controller answers the bootstrap endpoint.
func (h *Handler) TestConnection(ctx context.Context) error {
	_, err := h.bootstrap(ctx, true)
	return err
}

// bootstrap fetches the Protect bootstrap document, serving a cached copy
// unless refresh is set.
func (h *Handler) bootstrap(ctx context.Context, refresh bool) (*jason.Object, error) {
	if !refresh {
		if cached, found := h.cache.Get("bootstrap"); found {
			if doc, ok := cached.(*jason.Object); ok {
				return doc, nil
			}
		}
	}

	body, err := h.get(ctx, "/proxy/protect/api/bootstrap")
	if err != nil {
		return nil, err
	}

	doc, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, errors.New(err).
			Component("unifi").
			Category(errors.CategoryIntegration).
			Context("operation", "parse_bootstrap").
			Build()
	}

	h.cache.Set("bootstrap", doc, cache.DefaultExpiration)
	return doc, nil
}

// ListDevices returns the cameras known to the controller.
func (h *Handler) ListDevices(ctx context.Context) ([]camera.DeviceInfo, error) {
	doc, err := h.bootstrap(ctx, false)
	if err != nil {
		return nil, err
	}

	cams, err := doc.GetObjectArray("cameras")
	if err != nil {
		return nil, errors.New(err).
			Component("unifi").
			Category(errors.CategoryIntegration).
			Context("operation", "parse_cameras").
			Build()
	}

	devices := make([]camera.DeviceInfo, 0, len(cams))
	for _, c := range cams {
		id, err := c.GetString("id")
		if err != nil {
			continue
		}
		name, _ := c.GetString("name")
		model, _ := c.GetString("type")
		state, _ := c.GetString("state")
		hasSpeaker, _ := c.GetBoolean("featureFlags", "hasSpeaker")

		devices = append(devices, camera.DeviceInfo{
			ProviderID: id,
			Name:       name,
			Model:      model,
			Online:     state == "CONNECTED",
			HasSpeaker: hasSpeaker,
			RTSPURL:    h.rtspURL(c),
		})
	}
	return devices, nil
}

// rtspURL derives the stream URL from the first enabled channel with an RTSP
// alias. Cameras without one return empty and video capture is skipped.
func (h *Handler) rtspURL(cam *jason.Object) string {
	channels, err := cam.GetObjectArray("channels")
	if err != nil {
		return ""
	}
	host := h.host
	if u, err := url.Parse(h.host); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	for _, ch := range channels {
		alias, err := ch.GetString("rtspAlias")
		if err != nil || alias == "" {
			continue
		}
		if enabled, err := ch.GetBoolean("isRtspEnabled"); err == nil && !enabled {
			continue
		}
		return fmt.Sprintf("rtsps://%s:7441/%s", host, alias)
	}
	return ""
}

// Device returns the device-level operations for one camera.
func (h *Handler) Device(providerID string) (camera.Device, error) {
	if providerID == "" {
		return nil, errors.Newf("empty provider id").
			Component("unifi").
			Category(errors.CategoryValidation).
			Build()
	}
	return &device{handler: h, id: providerID}, nil
}

// device implements camera.Device, camera.SoundPlayer and
// camera.TalkbackTester for one Protect camera.
type device struct {
	handler *Handler
	id      string
}

// Snapshot fetches a still image from the camera.
func (d *device) Snapshot(ctx context.Context) ([]byte, error) {
	return d.handler.get(ctx, "/proxy/protect/api/cameras/"+d.id+"/snapshot")
}

// TestTalkback verifies the camera accepts a talkback session.
func (d *device) TestTalkback(ctx context.Context) error {
	_, err := d.openTalkback(ctx)
	return err
}

// talkbackSession describes the negotiated audio endpoint.
type talkbackSession struct {
	URL          string
	Codec        string
	SamplingRate int64
}

// openTalkback asks the controller for a talkback endpoint on the camera
// speaker.
func (d *device) openTalkback(ctx context.Context) (*talkbackSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.handler.host+"/proxy/protect/api/cameras/"+d.id+"/talkback-session", http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("unifi").
			Category(errors.CategoryNetwork).
			Build()
	}
	req.Header.Set("X-API-KEY", d.handler.apiKey)

	resp, err := d.handler.client.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("unifi").
			Category(errors.CategoryNetwork).
			Context("operation", "talkback_session").
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("talkback session rejected with status %d", resp.StatusCode).
			Component("unifi").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Build()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("unifi").
			Category(errors.CategoryNetwork).
			Build()
	}

	doc, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, errors.New(err).
			Component("unifi").
			Category(errors.CategoryIntegration).
			Context("operation", "parse_talkback").
			Build()
	}

	session := &talkbackSession{}
	session.URL, _ = doc.GetString("url")
	session.Codec, _ = doc.GetString("codec")
	session.SamplingRate, _ = doc.GetInt64("samplingRate")
	if session.URL == "" {
		return nil, errors.Newf("talkback session has no endpoint URL").
			Component("unifi").
			Category(errors.CategoryIntegration).
			Build()
	}
	if session.Codec == "" {
		session.Codec = "aac"
	}
	if session.SamplingRate == 0 {
		session.SamplingRate = 22050
	}
	return session, nil
}

// PlaySound opens a talkback session and pipes the file to the camera
// speaker with ffmpeg, reading at native rate and hard-capped at
// maxDuration.
func (d *device) PlaySound(ctx context.Context, path string, maxDuration time.Duration) error {
	settings := conf.GetSettings()
	if settings == nil || settings.Media.FfmpegPath == "" {
		return errors.Newf("ffmpeg not available for talkback streaming").
			Component("unifi").
			Category(errors.CategoryCommandExecution).
			Build()
	}

	session, err := d.openTalkback(ctx)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, talkbackWait)
	defer cancel()

	//nolint:gosec // arguments are derived from validated config and the negotiated session
	cmd := exec.CommandContext(waitCtx, settings.Media.FfmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-re",
		"-t", fmt.Sprintf("%.0f", maxDuration.Seconds()),
		"-i", path,
		"-acodec", session.Codec,
		"-ar", fmt.Sprintf("%d", session.SamplingRate),
		"-ac", "1",
		"-f", "adts",
		session.URL,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.New(err).
			Component("unifi").
			Category(errors.CategoryCommandExecution).
			Context("operation", "talkback_stream").
			Context("output", truncate(string(output), 512)).
			Build()
	}

	logger.Debug("Talkback playback finished", "camera", d.id, "sound", path)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
