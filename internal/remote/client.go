package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/scielo-br/pid-provider/internal/xmldoc"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

// Config points the client at the central pid authority. An empty Config is
// valid and means the deployment runs local-only.
type Config struct {
	TokenURL    string
	PostURL     string
	FixPidV2URL string
	Username    string
	Password    string
	Timeout     time.Duration
	MaxRetries  int
}

// Result is one per-document entry of the authority's upload response.
// Created and Updated are the remote record timestamps, used to decide which
// side's identifiers win on divergence.
type Result struct {
	V3           string            `json:"v3"`
	V2           string            `json:"v2"`
	AopPid       string            `json:"aop_pid"`
	XMLChanged   map[string]string `json:"xml_changed"`
	Created      time.Time         `json:"created"`
	Updated      time.Time         `json:"updated"`
	RecordStatus string            `json:"record_status"`
	ErrorType    string            `json:"error_type"`
	ErrorMessage string            `json:"error_message"`
}

// Client talks to the central pid authority. The access token is cached in
// memory and tied to a fingerprint of the credentials that produced it, so a
// configuration swap can never reuse a stale token.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu               sync.Mutex
	token            string
	tokenFingerprint string
}

// NewClient constructs the client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Enabled reports whether the authority is configured. When false every call
// fails with a not-configured error and callers fall back to local-only
// registration.
func (c *Client) Enabled() bool {
	return c.cfg.TokenURL != "" && c.cfg.PostURL != "" && c.cfg.Username != "" && c.cfg.Password != ""
}

func (c *Client) credentialsFingerprint() string {
	sum := sha256.Sum256([]byte(c.cfg.TokenURL + "\x00" + c.cfg.Username + "\x00" + c.cfg.Password))
	return hex.EncodeToString(sum[:])
}

// getToken returns the cached access token, fetching a fresh one when the
// cache is empty or was issued for different credentials.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fingerprint := c.credentialsFingerprint()
	if c.token != "" && c.tokenFingerprint == fingerprint {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status, "token endpoint unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", appErrors.Clone(appErrors.ErrRemoteRejected, fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}

	var payload struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Access == "" {
		return "", appErrors.Clone(appErrors.ErrRemoteRejected, "token endpoint returned no access token")
	}
	c.token = payload.Access
	c.tokenFingerprint = fingerprint
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenFingerprint = ""
	c.mu.Unlock()
}

// Register uploads one XML document, packaged as a single-entry zip, and
// returns the authority's verdict. Transient failures are retried with
// exponential backoff; a 401 triggers exactly one token refresh.
func (c *Client) Register(ctx context.Context, filename string, xmlData []byte) (*Result, error) {
	if !c.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrRemoteNotConfigured, "")
	}
	archive, err := xmldoc.BuildZip(normalizeFilename(filename), xmlData)
	if err != nil {
		return nil, fmt.Errorf("package xml for upload: %w", err)
	}

	var result *Result
	operation := func() error {
		result, err = c.upload(ctx, filename, archive, true)
		return err
	}
	if err := c.retry(ctx, operation); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) upload(ctx context.Context, filename string, archive []byte, allowRefresh bool) (*Result, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", normalizeZipName(filename))
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(archive); err != nil {
		return nil, fmt.Errorf("write upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PostURL, &body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status, "build upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, normalizeZipName(filename)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status, "pid endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && allowRefresh {
		c.logger.Info("access token rejected, refreshing once")
		c.invalidateToken()
		return c.upload(ctx, filename, archive, false)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := appErrors.Clone(appErrors.ErrRemoteRejected, fmt.Sprintf("pid endpoint returned %d: %s", resp.StatusCode, truncate(raw, 512)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		// Some authority versions answer a bare object for single uploads.
		var single Result
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, backoff.Permanent(appErrors.Clone(appErrors.ErrRemoteRejected, "pid endpoint returned an unparsable body"))
		}
		results = []Result{single}
	}
	if len(results) == 0 {
		return nil, backoff.Permanent(appErrors.Clone(appErrors.ErrRemoteRejected, "pid endpoint returned an empty result set"))
	}
	return &results[0], nil
}

// FixPidV2 asks the authority to correct a wrongly assigned legacy pid.
func (c *Client) FixPidV2(ctx context.Context, pidV3, correctPidV2 string) error {
	if !c.Enabled() || c.cfg.FixPidV2URL == "" {
		return appErrors.Clone(appErrors.ErrRemoteNotConfigured, "")
	}

	operation := func() error {
		return c.fixPidV2(ctx, pidV3, correctPidV2, true)
	}
	return c.retry(ctx, operation)
}

func (c *Client) fixPidV2(ctx context.Context, pidV3, correctPidV2 string, allowRefresh bool) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{
		"pid_v3":         pidV3,
		"correct_pid_v2": correctPidV2,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.FixPidV2URL, bytes.NewReader(payload))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status, "build fix request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status, "fix endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && allowRefresh {
		c.invalidateToken()
		return c.fixPidV2(ctx, pidV3, correctPidV2, false)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := appErrors.Clone(appErrors.ErrRemoteRejected, fmt.Sprintf("fix endpoint returned %d: %s", resp.StatusCode, truncate(raw, 512)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	var body struct {
		V2 string `json:"v2"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.V2 == "" {
		return backoff.Permanent(appErrors.Clone(appErrors.ErrRemoteRejected, "fix endpoint did not confirm the corrected pid"))
	}
	return nil
}

// retry runs the operation with exponential backoff, bounded by MaxRetries
// attempts. Permanent errors stop immediately.
func (c *Client) retry(ctx context.Context, operation backoff.Operation) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 5 * time.Second
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries-1)), ctx)
	return backoff.Retry(operation, bounded)
}

// normalizeFilename forces the .xml extension on the archived entry.
func normalizeFilename(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name + ".xml"
}

func normalizeZipName(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name + ".zip"
}

func truncate(raw []byte, limit int) string {
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
