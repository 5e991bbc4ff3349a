// Package testutil runs kawaii in-process for end-to-end tests and drives it
// over HTTP/1.1 and h2c.
package testutil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"gopkg.in/yaml.v3"

	"example.com/kawaii/v2/internal/config"
	"example.com/kawaii/v2/internal/logger"
	"example.com/kawaii/v2/internal/router"
	"example.com/kawaii/v2/internal/server"
)

// TestRequest models an HTTP request for E2E testing.
type TestRequest struct {
	Method  string
	Path    string
	Headers http.Header
}

// HeaderMatcher maps header names to exact expected values.
type HeaderMatcher map[string]string

// BodyMatcher defines a way to match the response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string)
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

// Match implements BodyMatcher for ExactBodyMatcher.
func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected: %q, Got: %q", string(m.ExpectedBody), string(body))
}

// StringContainsBodyMatcher checks if the body contains a specific substring.
type StringContainsBodyMatcher struct {
	Substring string
}

// Match implements BodyMatcher for StringContainsBodyMatcher.
func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Contains(body, []byte(m.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("body does not contain substring: %q. Body: %q", m.Substring, string(body))
}

// ExpectedResponse models the expected outcome of an HTTP request.
type ExpectedResponse struct {
	StatusCode     int
	Headers        HeaderMatcher
	AbsentHeaders  []string
	BodyMatcher    BodyMatcher
	ExpectNoBody   bool
	ExpectProtocol int // 0 skips the check, otherwise the expected ProtoMajor
}

// ActualResponse stores the actual outcome of an HTTP request from a client.
type ActualResponse struct {
	StatusCode int
	ProtoMajor int
	Headers    http.Header
	Body       []byte
}

// lockedBuffer is shared between server goroutines and the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ServerInstance is a kawaii server running inside the test process.
type ServerInstance struct {
	Config     *config.Config
	Address    string
	ConfigPath string

	errorLog  *lockedBuffer
	accessLog *lockedBuffer
	cancel    context.CancelFunc
	done      chan error
}

// ErrorLog returns everything written to the error log so far.
func (s *ServerInstance) ErrorLog() string { return s.errorLog.String() }

// AccessLog returns everything written to the access log so far.
func (s *ServerInstance) AccessLog() string { return s.accessLog.String() }

// Stop cancels the server and waits for graceful shutdown.
func (s *ServerInstance) Stop() error {
	s.cancel()
	select {
	case err := <-s.done:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("server at %s did not stop within 10s", s.Address)
	}
}

// WriteTempConfig writes configData as JSON, TOML or YAML into dir and
// returns the file path.
func WriteTempConfig(dir string, configData interface{}, format string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
	case "toml":
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(configData); err == nil {
			data = buf.Bytes()
		}
	case "yaml":
		data, err = yaml.Marshal(configData)
	default:
		return "", fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal config data to %s: %w", format, err)
	}

	path := filepath.Join(dir, "kawaii."+strings.ToLower(format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write temp config file: %w", err)
	}
	return path, nil
}

// StartTestServer loads configFile the same way cmd/server does and serves
// it on its configured address. Logs go to in-memory buffers.
func StartTestServer(configFile string) (*ServerInstance, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}

	inst := &ServerInstance{
		Config:     cfg,
		ConfigPath: configFile,
		errorLog:   &lockedBuffer{},
		accessLog:  &lockedBuffer{},
		done:       make(chan error, 1),
	}
	var accessW io.Writer
	if cfg.Logging.AccessLog.Enabled != nil && *cfg.Logging.AccessLog.Enabled {
		accessW = inst.accessLog
	}
	lg := logger.NewWriterLogger(cfg.Logging.LogLevel, inst.errorLog, accessW)

	rt, err := router.NewRouter(cfg.Routing.Routes, router.StaticHandlerFactory, lg)
	if err != nil {
		return nil, err
	}
	srv, err := server.NewServer(cfg, lg, rt)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Listen(ctx); err != nil {
		cancel()
		return nil, err
	}
	inst.cancel = cancel
	inst.Address = srv.Addr().String()
	go func() { inst.done <- srv.Serve(ctx) }()
	return inst, nil
}

// HTTPClient sends a TestRequest to a server address.
type HTTPClient interface {
	Name() string
	Do(serverAddr string, request TestRequest) (ActualResponse, error)
}

type goHTTPClient struct {
	name   string
	client *http.Client
}

// NewHTTP1Client returns a client speaking HTTP/1.1 with transparent
// decompression disabled.
func NewHTTP1Client() HTTPClient {
	return &goHTTPClient{
		name: "HTTP/1.1",
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{DisableCompression: true, DisableKeepAlives: true},
		},
	}
}

// NewH2CClient returns a client speaking HTTP/2 over cleartext TCP with
// prior knowledge.
func NewH2CClient() HTTPClient {
	return &goHTTPClient{
		name: "h2c",
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http2.Transport{
				AllowHTTP:          true,
				DisableCompression: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		},
	}
}

func (c *goHTTPClient) Name() string { return c.name }

func (c *goHTTPClient) Do(serverAddr string, request TestRequest) (ActualResponse, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, "http://"+serverAddr+request.Path, nil)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	for name, values := range request.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return ActualResponse{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("failed to read response body: %w", err)
	}
	return ActualResponse{
		StatusCode: resp.StatusCode,
		ProtoMajor: resp.ProtoMajor,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// E2ETestCase is a single request and its expected response.
type E2ETestCase struct {
	Name     string
	Request  TestRequest
	Expected ExpectedResponse
}

// E2ETestDefinition describes a server configuration and the cases to run
// against it with every client.
type E2ETestDefinition struct {
	Name               string
	ServerConfigData   interface{}
	ServerConfigFormat string
	Clients            []HTTPClient
	TestCases          []E2ETestCase
}

// RunE2ETest writes the configuration, starts a server and runs every case
// with every client.
func RunE2ETest(t *testing.T, def E2ETestDefinition) *ServerInstance {
	t.Helper()
	format := def.ServerConfigFormat
	if format == "" {
		format = "json"
	}
	path, err := WriteTempConfig(t.TempDir(), def.ServerConfigData, format)
	require.NoError(t, err)

	inst, err := StartTestServer(path)
	require.NoError(t, err, "failed to start server for %s", def.Name)
	t.Cleanup(func() {
		assert.NoError(t, inst.Stop())
		if t.Failed() {
			t.Logf("error log for %s:\n%s", def.Name, inst.ErrorLog())
		}
	})

	clients := def.Clients
	if len(clients) == 0 {
		clients = []HTTPClient{NewHTTP1Client()}
	}
	for _, client := range clients {
		for _, tc := range def.TestCases {
			t.Run(client.Name()+"/"+tc.Name, func(t *testing.T) {
				actual, err := client.Do(inst.Address, tc.Request)
				require.NoError(t, err)
				AssertResponse(t, tc.Expected, actual)
			})
		}
	}
	return inst
}

// AssertResponse compares actual against expected and reports every mismatch.
func AssertResponse(t *testing.T, expected ExpectedResponse, actual ActualResponse) {
	t.Helper()
	assert.Equal(t, expected.StatusCode, actual.StatusCode, "status code")
	if expected.ExpectProtocol != 0 {
		assert.Equal(t, expected.ExpectProtocol, actual.ProtoMajor, "protocol major version")
	}
	for name, want := range expected.Headers {
		assert.Equal(t, want, actual.Headers.Get(name), "header %s", name)
	}
	for _, name := range expected.AbsentHeaders {
		assert.Empty(t, actual.Headers.Values(name), "header %s should be absent", name)
	}
	if expected.ExpectNoBody {
		assert.Empty(t, actual.Body, "body should be empty")
		return
	}
	if expected.BodyMatcher != nil {
		ok, msg := expected.BodyMatcher.Match(actual.Body)
		assert.True(t, ok, msg)
	}
}
