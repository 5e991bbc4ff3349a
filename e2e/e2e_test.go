package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/kawaii/v2/e2e/testutil"
	"example.com/kawaii/v2/internal/config"
	"example.com/kawaii/v2/internal/handlers/staticfile"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }

func bothClients() []testutil.HTTPClient {
	return []testutil.HTTPClient{testutil.NewHTTP1Client(), testutil.NewH2CClient()}
}

// setupDocRoot creates files (slash-separated relative paths) under a fresh
// temporary directory.
func setupDocRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func etagOf(t *testing.T, path string) string {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return staticfile.ComputeCacheToken(info).ETag
}

func baseConfig(routes ...config.Route) config.Config {
	return config.Config{
		Server:  &config.ServerConfig{Address: strPtr("127.0.0.1:0"), EnableH2C: boolPtr(true)},
		Routing: &config.RoutingConfig{Routes: routes},
		Logging: &config.LoggingConfig{
			LogLevel:  config.LogLevelDebug,
			AccessLog: &config.AccessLogConfig{Enabled: boolPtr(true)},
		},
	}
}

func staticRoute(pattern string, match config.MatchType, root string) config.Route {
	return config.Route{
		PathPattern: pattern,
		MatchType:   match,
		Static:      &config.StaticFileServerConfig{DocumentRoot: root},
	}
}

// inflateMatcher decodes a raw DEFLATE body before comparing.
type inflateMatcher struct {
	expected []byte
}

func (m *inflateMatcher) Match(body []byte) (bool, string) {
	plain, err := io.ReadAll(flate.NewReader(bytes.NewReader(body)))
	if err != nil {
		return false, fmt.Sprintf("body is not valid DEFLATE data: %v", err)
	}
	if !bytes.Equal(plain, m.expected) {
		return false, fmt.Sprintf("inflated body mismatch: expected %d bytes, got %d", len(m.expected), len(plain))
	}
	return true, ""
}

func TestStaticFileServing(t *testing.T) {
	large := strings.Repeat("kawaii static server ", 200)
	root := setupDocRoot(t, map[string]string{
		"index.html":       "<h1>home</h1>",
		"hello.txt":        "Hello, world!",
		"style.css":        "body{}",
		"docs/index.html":  "<h1>docs</h1>",
		"docs/guide.json":  `{"ok":true}`,
		"large.txt":        large,
		"noindex/file.txt": "x",
	})
	helloETag := etagOf(t, filepath.Join(root, "hello.txt"))
	helloInfo, err := os.Stat(filepath.Join(root, "hello.txt"))
	require.NoError(t, err)

	cfg := baseConfig(staticRoute("/", config.MatchTypePrefix, root))
	cfg.Routing.Routes[0].Static.Compression = &config.CompressionConfig{MinSize: "1 KB"}

	inst := testutil.RunE2ETest(t, testutil.E2ETestDefinition{
		Name:             "StaticFileServing",
		ServerConfigData: cfg,
		Clients:          bothClients(),
		TestCases: []testutil.E2ETestCase{
			{
				Name:    "PlainFile",
				Request: testutil.TestRequest{Path: "/hello.txt"},
				Expected: testutil.ExpectedResponse{
					StatusCode: http.StatusOK,
					Headers: testutil.HeaderMatcher{
						"Content-Type":   "text/plain; charset=utf-8",
						"Content-Length": "13",
						"Etag":           helloETag,
						"Last-Modified":  helloInfo.ModTime().UTC().Format(http.TimeFormat),
						"Cache-Control":  "public",
						"Vary":           "Accept-Encoding",
						"Server":         config.DefaultServerName,
					},
					AbsentHeaders: []string{"Content-Encoding"},
					BodyMatcher:   &testutil.ExactBodyMatcher{ExpectedBody: []byte("Hello, world!")},
				},
			},
			{
				Name:    "RootIndex",
				Request: testutil.TestRequest{Path: "/"},
				Expected: testutil.ExpectedResponse{
					StatusCode:  http.StatusOK,
					Headers:     testutil.HeaderMatcher{"Content-Type": "text/html; charset=utf-8"},
					BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("<h1>home</h1>")},
				},
			},
			{
				Name:    "NestedIndexWithoutSlash",
				Request: testutil.TestRequest{Path: "/docs"},
				Expected: testutil.ExpectedResponse{
					StatusCode:  http.StatusOK,
					BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("<h1>docs</h1>")},
				},
			},
			{
				Name:    "JSONType",
				Request: testutil.TestRequest{Path: "/docs/guide.json"},
				Expected: testutil.ExpectedResponse{
					StatusCode: http.StatusOK,
					Headers:    testutil.HeaderMatcher{"Content-Type": "application/json; charset=utf-8"},
				},
			},
			{
				Name:    "DirectoryWithoutIndex",
				Request: testutil.TestRequest{Path: "/noindex/"},
				Expected: testutil.ExpectedResponse{
					StatusCode:  http.StatusNotFound,
					BodyMatcher: &testutil.StringContainsBodyMatcher{Substring: "<h1>Not Found</h1>"},
				},
			},
			{
				Name:    "Missing",
				Request: testutil.TestRequest{Path: "/nope.txt"},
				Expected: testutil.ExpectedResponse{
					StatusCode:    http.StatusNotFound,
					Headers:       testutil.HeaderMatcher{"Content-Type": "text/html; charset=utf-8"},
					AbsentHeaders: []string{"Etag", "Last-Modified", "Cache-Control"},
					BodyMatcher:   &testutil.StringContainsBodyMatcher{Substring: "404 Not Found"},
				},
			},
			{
				Name:     "Traversal",
				Request:  testutil.TestRequest{Path: "/../../../../etc/passwd"},
				Expected: testutil.ExpectedResponse{StatusCode: http.StatusNotFound},
			},
			{
				Name:     "EncodedTraversal",
				Request:  testutil.TestRequest{Path: "/%2e%2e/%2e%2e/etc/passwd"},
				Expected: testutil.ExpectedResponse{StatusCode: http.StatusNotFound},
			},
			{
				Name:    "PostNotAllowed",
				Request: testutil.TestRequest{Method: http.MethodPost, Path: "/hello.txt"},
				Expected: testutil.ExpectedResponse{
					StatusCode:  http.StatusMethodNotAllowed,
					BodyMatcher: &testutil.StringContainsBodyMatcher{Substring: "Method Not Allowed"},
				},
			},
			{
				Name:    "ConditionalMatch",
				Request: testutil.TestRequest{Path: "/hello.txt", Headers: http.Header{"If-None-Match": {helloETag}}},
				Expected: testutil.ExpectedResponse{
					StatusCode:    http.StatusNotModified,
					Headers:       testutil.HeaderMatcher{"Etag": helloETag, "Cache-Control": "public"},
					AbsentHeaders: []string{"Content-Type", "Last-Modified", "Content-Encoding"},
					ExpectNoBody:  true,
				},
			},
			{
				Name:     "ConditionalWildcard",
				Request:  testutil.TestRequest{Path: "/hello.txt", Headers: http.Header{"If-None-Match": {"*"}}},
				Expected: testutil.ExpectedResponse{StatusCode: http.StatusNotModified, ExpectNoBody: true},
			},
			{
				Name:     "ConditionalWeakNeverMatches",
				Request:  testutil.TestRequest{Path: "/hello.txt", Headers: http.Header{"If-None-Match": {"W/" + helloETag}}},
				Expected: testutil.ExpectedResponse{StatusCode: http.StatusOK},
			},
			{
				Name:     "ConditionalStale",
				Request:  testutil.TestRequest{Path: "/hello.txt", Headers: http.Header{"If-None-Match": {`"0.0-1"`}}},
				Expected: testutil.ExpectedResponse{StatusCode: http.StatusOK},
			},
			{
				Name:    "DeflateLargeFile",
				Request: testutil.TestRequest{Path: "/large.txt", Headers: http.Header{"Accept-Encoding": {"gzip, DEFLATE"}}},
				Expected: testutil.ExpectedResponse{
					StatusCode:  http.StatusOK,
					Headers:     testutil.HeaderMatcher{"Content-Encoding": "deflate", "Vary": "Accept-Encoding"},
					BodyMatcher: &inflateMatcher{expected: []byte(large)},
				},
			},
			{
				Name:    "SmallFileBelowMinSize",
				Request: testutil.TestRequest{Path: "/hello.txt", Headers: http.Header{"Accept-Encoding": {"deflate"}}},
				Expected: testutil.ExpectedResponse{
					StatusCode:    http.StatusOK,
					AbsentHeaders: []string{"Content-Encoding"},
					BodyMatcher:   &testutil.ExactBodyMatcher{ExpectedBody: []byte("Hello, world!")},
				},
			},
			{
				Name:    "GzipOnlyGetsIdentity",
				Request: testutil.TestRequest{Path: "/large.txt", Headers: http.Header{"Accept-Encoding": {"gzip"}}},
				Expected: testutil.ExpectedResponse{
					StatusCode:    http.StatusOK,
					Headers:       testutil.HeaderMatcher{"Content-Length": fmt.Sprint(len(large))},
					AbsentHeaders: []string{"Content-Encoding"},
				},
			},
		},
	})

	require.Eventually(t, func() bool { return strings.Contains(inst.AccessLog(), `"uri":"/hello.txt"`) },
		2*time.Second, 10*time.Millisecond)
	assert.Contains(t, inst.ErrorLog(), "Rejected path outside document root")
}

func TestProtocols(t *testing.T) {
	root := setupDocRoot(t, map[string]string{"a.txt": "alpha"})
	testutil.RunE2ETest(t, testutil.E2ETestDefinition{
		Name:             "Protocols",
		ServerConfigData: baseConfig(staticRoute("/", config.MatchTypePrefix, root)),
		Clients:          []testutil.HTTPClient{testutil.NewH2CClient()},
		TestCases: []testutil.E2ETestCase{{
			Name:     "H2CPriorKnowledge",
			Request:  testutil.TestRequest{Path: "/a.txt"},
			Expected: testutil.ExpectedResponse{StatusCode: http.StatusOK, ExpectProtocol: 2},
		}},
	})
	testutil.RunE2ETest(t, testutil.E2ETestDefinition{
		Name:             "ProtocolsHTTP1",
		ServerConfigData: baseConfig(staticRoute("/", config.MatchTypePrefix, root)),
		Clients:          []testutil.HTTPClient{testutil.NewHTTP1Client()},
		TestCases: []testutil.E2ETestCase{{
			Name:     "HTTP1",
			Request:  testutil.TestRequest{Path: "/a.txt"},
			Expected: testutil.ExpectedResponse{StatusCode: http.StatusOK, ExpectProtocol: 1},
		}},
	})
}

func TestRouting_MatchingLogic(t *testing.T) {
	site := setupDocRoot(t, map[string]string{
		"index.html": "site index",
		"about.txt":  "site about",
	})
	assets := setupDocRoot(t, map[string]string{
		"app.css":     "assets css",
		"index.html":  "assets index",
		"img/logo.js": "assets js",
	})
	images := setupDocRoot(t, map[string]string{
		"logo.js": "images js",
	})
	exact := setupDocRoot(t, map[string]string{
		"robots.txt": "exact robots",
	})

	cfg := baseConfig(
		staticRoute("/", config.MatchTypePrefix, site),
		staticRoute("/assets/", config.MatchTypePrefix, assets),
		staticRoute("/assets/img/", config.MatchTypePrefix, images),
		staticRoute("/robots.txt", config.MatchTypeExact, exact),
	)

	body := func(s string) testutil.BodyMatcher { return &testutil.ExactBodyMatcher{ExpectedBody: []byte(s)} }
	testutil.RunE2ETest(t, testutil.E2ETestDefinition{
		Name:             "RoutingMatchingLogic",
		ServerConfigData: cfg,
		Clients:          bothClients(),
		TestCases: []testutil.E2ETestCase{
			{Name: "CatchAll", Request: testutil.TestRequest{Path: "/about.txt"},
				Expected: testutil.ExpectedResponse{StatusCode: 200, BodyMatcher: body("site about")}},
			{Name: "PrefixStripped", Request: testutil.TestRequest{Path: "/assets/app.css"},
				Expected: testutil.ExpectedResponse{StatusCode: 200, BodyMatcher: body("assets css"),
					Headers: testutil.HeaderMatcher{"Content-Type": "text/css; charset=utf-8"}}},
			{Name: "PrefixRootServesIndex", Request: testutil.TestRequest{Path: "/assets/"},
				Expected: testutil.ExpectedResponse{StatusCode: 200, BodyMatcher: body("assets index")}},
			{Name: "LongestPrefixWins", Request: testutil.TestRequest{Path: "/assets/img/logo.js"},
				Expected: testutil.ExpectedResponse{StatusCode: 200, BodyMatcher: body("images js")}},
			{Name: "ExactRoute", Request: testutil.TestRequest{Path: "/robots.txt"},
				Expected: testutil.ExpectedResponse{StatusCode: 200, BodyMatcher: body("exact robots")}},
			{Name: "ExactDoesNotMatchSubpath", Request: testutil.TestRequest{Path: "/robots.txt/more"},
				Expected: testutil.ExpectedResponse{StatusCode: 404}},
		},
	})
}

func TestRouting_NoMatch(t *testing.T) {
	root := setupDocRoot(t, map[string]string{"a.txt": "alpha"})
	testutil.RunE2ETest(t, testutil.E2ETestDefinition{
		Name:             "RoutingNoMatch",
		ServerConfigData: baseConfig(staticRoute("/only/", config.MatchTypePrefix, root)),
		TestCases: []testutil.E2ETestCase{
			{Name: "Outside", Request: testutil.TestRequest{Path: "/a.txt"},
				Expected: testutil.ExpectedResponse{StatusCode: 404,
					Headers: testutil.HeaderMatcher{"Server": config.DefaultServerName}}},
			{Name: "Inside", Request: testutil.TestRequest{Path: "/only/a.txt"},
				Expected: testutil.ExpectedResponse{StatusCode: 200}},
		},
	})
}

func TestConfigFormatsAndOptions(t *testing.T) {
	root := setupDocRoot(t, map[string]string{
		"data.kawaii": "custom type",
		"page.txt":    strings.Repeat("z", 4096),
	})
	route := staticRoute("/", config.MatchTypePrefix, root)
	route.Static.ServerName = "custom/1.0"
	route.Static.MimeTypesMap = map[string]string{".kawaii": "application/x-kawaii"}
	route.Static.Compression = &config.CompressionConfig{Enabled: boolPtr(false), Level: intPtr(9)}

	for _, format := range []string{"json", "toml", "yaml"} {
		t.Run(format, func(t *testing.T) {
			testutil.RunE2ETest(t, testutil.E2ETestDefinition{
				Name:               "ConfigFormat_" + format,
				ServerConfigData:   baseConfig(route),
				ServerConfigFormat: format,
				TestCases: []testutil.E2ETestCase{
					{Name: "CustomMime", Request: testutil.TestRequest{Path: "/data.kawaii"},
						Expected: testutil.ExpectedResponse{StatusCode: 200, Headers: testutil.HeaderMatcher{
							"Content-Type": "application/x-kawaii",
							"Server":       "custom/1.0",
						}}},
					{Name: "CompressionDisabled", Request: testutil.TestRequest{Path: "/page.txt",
						Headers: http.Header{"Accept-Encoding": {"deflate"}}},
						Expected: testutil.ExpectedResponse{StatusCode: 200,
							Headers:       testutil.HeaderMatcher{"Content-Length": "4096"},
							AbsentHeaders: []string{"Content-Encoding"}}},
				},
			})
		})
	}
}

func TestAccessLogEntry(t *testing.T) {
	root := setupDocRoot(t, map[string]string{"a.txt": "alpha"})
	inst := testutil.RunE2ETest(t, testutil.E2ETestDefinition{
		Name:             "AccessLog",
		ServerConfigData: baseConfig(staticRoute("/", config.MatchTypePrefix, root)),
		TestCases: []testutil.E2ETestCase{{
			Name:     "Get",
			Request:  testutil.TestRequest{Path: "/a.txt", Headers: http.Header{"User-Agent": {"e2e-agent"}}},
			Expected: testutil.ExpectedResponse{StatusCode: 200},
		}},
	})

	require.Eventually(t, func() bool { return inst.AccessLog() != "" }, 2*time.Second, 10*time.Millisecond)
	line := strings.SplitN(strings.TrimSpace(inst.AccessLog()), "\n", 2)[0]
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/a.txt", entry["uri"])
	assert.Equal(t, "e2e-agent", entry["user_agent"])
	assert.Equal(t, "127.0.0.1", entry["remote_addr"])
	assert.EqualValues(t, 200, entry["status"])
	assert.EqualValues(t, 5, entry["resp_bytes"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestFileChangesAreVisible(t *testing.T) {
	root := setupDocRoot(t, map[string]string{"v.txt": "one"})
	path := filepath.Join(root, "v.txt")
	cfgPath, err := testutil.WriteTempConfig(t.TempDir(), baseConfig(staticRoute("/", config.MatchTypePrefix, root)), "json")
	require.NoError(t, err)
	inst, err := testutil.StartTestServer(cfgPath)
	require.NoError(t, err)
	defer func() { assert.NoError(t, inst.Stop()) }()

	client := testutil.NewHTTP1Client()
	first, err := client.Do(inst.Address, testutil.TestRequest{Path: "/v.txt"})
	require.NoError(t, err)
	assert.Equal(t, "one", string(first.Body))

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	second, err := client.Do(inst.Address, testutil.TestRequest{
		Path:    "/v.txt",
		Headers: http.Header{"If-None-Match": {first.Headers.Get("Etag")}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "second", string(second.Body))
	assert.NotEqual(t, first.Headers.Get("Etag"), second.Headers.Get("Etag"))
}
