// Package provisioning drives the GSA provisioning handshake against
// Apple's grandslam servers: fetch a URL bag, exchange plist-encoded
// requests with the ADI façade's start/end provisioning calls.
package provisioning

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/libanisette/anisette-go/internal/adi"
	"github.com/libanisette/anisette-go/internal/device"
	"github.com/libanisette/anisette-go/internal/log"
)

const (
	lookupURL         = "https://gsa.apple.com/grandslam/GsService2/lookup"
	userAgent         = "akd/1.0 CFNetwork/1404.0.5 Darwin/22.3.0"
	appName           = "Setup"
	httpClientTimeout = 5 * time.Second
)

const startBody = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Header</key>
  <dict/>
  <key>Request</key>
  <dict/>
</dict>
</plist>`

const finishBodyTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Header</key>
  <dict/>
  <key>Request</key>
  <dict>
    <key>cpim</key>
    <string>%s</string>
  </dict>
</dict>
</plist>`

// Provisioner drives the ADI handshake for a single Apple account.
type Provisioner interface {
	Provision(ctx context.Context, dsid uint64) error
}

// HTTPSession is the concrete Provisioner talking to gsa.apple.com.
type HTTPSession struct {
	adi    *adi.Adi
	device *device.Data
	client *http.Client
	urlBag map[string]string
	log    *log.Logger
}

// NewHTTPSession builds a session. appleRootPEM is optional; when empty or
// unreadable, the client falls back to skipping certificate verification
// and logs a warning, matching how the original tolerated a missing
// developer-machine certificate without hardcoding a path.
func NewHTTPSession(a *adi.Adi, dev *device.Data, appleRootPEM string, logger *log.Logger) (*HTTPSession, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	client, err := buildHTTPClient(appleRootPEM, logger)
	if err != nil {
		return nil, err
	}
	return &HTTPSession{adi: a, device: dev, client: client, urlBag: make(map[string]string), log: logger}, nil
}

func buildHTTPClient(appleRootPEM string, logger *log.Logger) (*http.Client, error) {
	transport := &http.Transport{}

	if appleRootPEM != "" {
		pem, err := os.ReadFile(appleRootPEM)
		if err == nil {
			pool := x509.NewCertPool()
			if pool.AppendCertsFromPEM(pem) {
				transport.TLSClientConfig = &tls.Config{RootCAs: pool}
				return &http.Client{Timeout: httpClientTimeout, Transport: transport}, nil
			}
		}
	}

	logger.Warn("apple root certificate not found, falling back to insecure TLS mode")
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return &http.Client{Timeout: httpClientTimeout, Transport: transport}, nil
}

// Provision runs the full start/finish handshake for dsid against Apple's
// grandslam servers, ending with EndProvisioning on the ADI façade.
func (s *HTTPSession) Provision(ctx context.Context, dsid uint64) error {
	s.log.Debug("provisioning session starting")

	if len(s.urlBag) == 0 {
		if err := s.loadURLBag(ctx); err != nil {
			return err
		}
	}

	startURL, ok := s.urlBag["midStartProvisioning"]
	if !ok {
		return fmt.Errorf("url bag missing midStartProvisioning")
	}
	finishURL, ok := s.urlBag["midFinishProvisioning"]
	if !ok {
		return fmt.Errorf("url bag missing midFinishProvisioning")
	}

	startBytes, err := s.postWithTime(ctx, startURL, startBody)
	if err != nil {
		return err
	}
	startPlist, err := parseDict(bytes.NewReader(startBytes))
	if err != nil {
		return err
	}
	spimB64, err := responseString(startPlist, "spim")
	if err != nil {
		return err
	}
	spim, err := base64.StdEncoding.DecodeString(spimB64)
	if err != nil {
		return fmt.Errorf("decode spim: %w", err)
	}

	start, err := s.adi.StartProvisioning(dsid, spim)
	if err != nil {
		return err
	}
	cpimB64 := base64.StdEncoding.EncodeToString(start.CPIM)

	finishBytes, err := s.postWithTime(ctx, finishURL, fmt.Sprintf(finishBodyTemplate, cpimB64))
	if err != nil {
		return err
	}
	finishPlist, err := parseDict(bytes.NewReader(finishBytes))
	if err != nil {
		return err
	}
	ptmB64, err := responseString(finishPlist, "ptm")
	if err != nil {
		return err
	}
	tkB64, err := responseString(finishPlist, "tk")
	if err != nil {
		return err
	}
	ptm, err := base64.StdEncoding.DecodeString(ptmB64)
	if err != nil {
		return fmt.Errorf("decode ptm: %w", err)
	}
	tk, err := base64.StdEncoding.DecodeString(tkB64)
	if err != nil {
		return fmt.Errorf("decode tk: %w", err)
	}

	return s.adi.EndProvisioning(start.Session, ptm, tk)
}

func (s *HTTPSession) loadURLBag(ctx context.Context) error {
	body, err := s.get(ctx, lookupURL)
	if err != nil {
		return err
	}
	root, err := parseDict(bytes.NewReader(body))
	if err != nil {
		return err
	}
	urls, ok := dictAt(root, "urls")
	if !ok {
		return fmt.Errorf("lookup plist missing urls dictionary")
	}

	bag := make(map[string]string, len(urls))
	for name, v := range urls {
		if s, ok := v.(string); ok {
			bag[name] = s
		}
	}
	s.urlBag = bag
	return nil
}

func (s *HTTPSession) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	s.addCommonHeaders(req, "")
	return s.doRequest(req)
}

func (s *HTTPSession) postWithTime(ctx context.Context, url, body string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, err
	}
	s.addCommonHeaders(req, time.Now().Format("2006-01-02T15:04:05-07:00"))
	return s.doRequest(req)
}

func (s *HTTPSession) addCommonHeaders(req *http.Request, clientTime string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("X-Mme-Device-Id", s.device.UniqueDeviceIdentifier)
	req.Header.Set("X-MMe-Client-Info", s.device.ServerFriendlyDescription)
	req.Header.Set("X-Apple-I-MD-LU", s.device.LocalUserUUID)
	req.Header.Set("X-Apple-Client-App-Name", appName)
	if clientTime != "" {
		req.Header.Set("X-Apple-I-Client-Time", clientTime)
	}
}

func (s *HTTPSession) doRequest(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: status %d", req.Method, req.URL, resp.StatusCode)
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf.Bytes(), nil
}
