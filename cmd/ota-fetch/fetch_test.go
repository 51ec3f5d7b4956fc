package main

import (
	"bytes"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
	"update-transport/application/http"
	"update-transport/application/http/resumer"
	"update-transport/lib/events"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func testOptions() resumer.Options {
	opts := resumer.DefaultOptions
	opts.SmallestInterval = 5 * time.Millisecond
	opts.TryCount = 2
	return opts
}

func TestFetch(t *testing.T) {
	data := bytes.Repeat([]byte("update artifact "), 40_000)
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer srv.Close()

	var out bytes.Buffer
	res, err := fetch(http.ClientConfig{}, slog.New(slog.DiscardHandler), testOptions(), srv.URL+"/artifact", &out, time.Minute)
	require.NoError(t, err)

	sum := blake3.Sum256(data)
	assert.Equal(t, int64(len(data)), res.size)
	assert.Equal(t, sum[:], res.digest)
	assert.True(t, bytes.Equal(data, out.Bytes()))
}

func TestFetchUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(nethttp.NotFoundHandler())
	defer srv.Close()

	var out bytes.Buffer
	_, err := fetch(http.ClientConfig{}, slog.New(slog.DiscardHandler), testOptions(), srv.URL+"/missing", &out, time.Minute)
	assert.ErrorContains(t, err, "unexpected status 404")
	assert.Zero(t, out.Len())
}

type fullDisk struct{}

var errDiskFull = errors.New("no space left on device")

func (fullDisk) Write([]byte) (int, error) { return 0, errDiskFull }

func TestFetchWriteError(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100_000)
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer srv.Close()

	_, err := fetch(http.ClientConfig{}, slog.New(slog.DiscardHandler), testOptions(), srv.URL+"/artifact", fullDisk{}, time.Minute)
	assert.ErrorIs(t, err, errDiskFull)
	assert.NotErrorIs(t, err, events.ErrCanceled)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	var out bytes.Buffer
	_, err := fetch(http.ClientConfig{}, slog.New(slog.DiscardHandler), testOptions(), srv.URL+"/slow", &out, 50*time.Millisecond)
	assert.ErrorIs(t, err, events.ErrCanceled)
	assert.ErrorContains(t, err, "did not finish within 50ms")
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := fetch(http.ClientConfig{}, slog.New(slog.DiscardHandler), testOptions(), "::not a url", &bytes.Buffer{}, 0)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	config, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, http.ClientConfig{}, config)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_cert_path: /etc/ota/ca.pem
skip_verify: true
https_proxy: http://proxy.example:3128
no_proxy: updates.internal
`), 0o600))

	config, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, http.ClientConfig{
		ServerCertPath: "/etc/ota/ca.pem",
		SkipVerify:     true,
		HTTPSProxy:     "http://proxy.example:3128",
		NoProxy:        "updates.internal",
	}, config)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("skip_verfy: true\n"), 0o600))
	_, err = loadConfig(bad)
	assert.Error(t, err)

	_, err = loadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	output := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, run([]string{"--url", srv.URL + "/artifact", "-o", output, "--log-level", "error"}))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	assert.Error(t, run([]string{"--url", srv.URL}))
	assert.Error(t, run([]string{"--url", srv.URL, "-o", output, "--log-level", "loud"}))
}
