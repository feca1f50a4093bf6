package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlatformArchive(t *testing.T) {
	tests := []struct {
		goos   string
		goarch string
		want   string
	}{
		{"linux", "amd64", "linux-x64"},
		{"linux", "arm64", "linux-aarch64"},
		{"darwin", "amd64", "osx-x86_64"},
		{"darwin", "arm64", "osx-arm64"},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := getPlatformArchive(tt.goos, tt.goarch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := getPlatformArchive("windows", "amd64")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestGetLibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", getLibraryName("linux"))
	assert.Equal(t, "libonnxruntime.dylib", getLibraryName("darwin"))
	assert.Equal(t, "libonnxruntime.so", getLibraryName("plan9"))
}

func TestGetONNXLibraryPath_Env(t *testing.T) {
	t.Setenv("ONNX_PATH", "/opt/onnx/libonnxruntime.so")
	assert.Equal(t, "/opt/onnx/libonnxruntime.so", GetONNXLibraryPath())
}

func releaseTarball(t *testing.T, version, platform string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	prefix := "onnxruntime-" + platform + "-" + version + "/"
	lib := getLibraryName(runtime.GOOS)
	files := map[string]string{
		prefix + "lib/" + lib + ".1.23.0": "binary",
		prefix + "include/onnxruntime.h":  "header",
	}
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "./" + name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: prefix + "lib/" + lib, Linkname: lib + ".1.23.0", Typeflag: tar.TypeSymlink}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestFetchAndExtract(t *testing.T) {
	archive := releaseTarball(t, "1.23.0", "linux-x64")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "lib")
	require.NoError(t, fetchAndExtract(context.Background(), srv.Client(), srv.URL, dest, "1.23.0", "linux-x64"))

	lib := getLibraryName(runtime.GOOS)
	data, err := os.ReadFile(filepath.Join(dest, lib))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))
	assert.NoFileExists(t, filepath.Join(dest, "onnxruntime.h"))
}

func TestFetchAndExtract_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := fetchAndExtract(context.Background(), srv.Client(), srv.URL, t.TempDir(), "1.23.0", "linux-x64")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestExtractTarGz_MissingLibrary(t *testing.T) {
	archive := releaseTarball(t, "1.23.0", "linux-x64")
	err := extractTarGz(bytes.NewReader(archive), t.TempDir(), "1.22.0", "linux-x64")
	assert.ErrorContains(t, err, "not found in archive")
}
