package fetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func makeTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func serve(t *testing.T, name string, payload []byte) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/"+name, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL + "/" + name
}

func newTestClient() *Client {
	return &Client{HTTP: &http.Client{}, Progress: &bytes.Buffer{}, Logger: zap.NewNop()}
}

func assertNoTempLeft(t *testing.T, parent string) {
	t.Helper()
	left, err := filepath.Glob(filepath.Join(parent, ".psdist-fetch-*"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestFetchAndUnpack_Zip(t *testing.T) {
	payload := makeZip(t, map[string]string{
		"ONCVPSP-PBE-PDv0.4-master/standard.txt":    "Ag/Ag-sp.psp8\n",
		"ONCVPSP-PBE-PDv0.4-master/Ag/Ag-sp.psp8":   "psp8",
		"ONCVPSP-PBE-PDv0.4-master/Ag/Ag-sp.djrepo": "{}",
	})
	url := serve(t, "master.zip", payload)

	work := t.TempDir()
	dest := filepath.Join(work, "ONCVPSP-PBE-SR-PDv0.4")
	require.NoError(t, newTestClient().FetchAndUnpack(context.Background(), url, dest))

	b, err := os.ReadFile(filepath.Join(dest, "Ag", "Ag-sp.psp8"))
	require.NoError(t, err)
	assert.Equal(t, "psp8", string(b))
	assert.FileExists(t, filepath.Join(dest, "standard.txt"))
	assertNoTempLeft(t, work)
}

func TestFetchAndUnpack_TarGz(t *testing.T) {
	payload := makeTarGz(t, map[string]string{
		"JTH-LDA-atomicdata/ATOMICDATA/Ag.LDA_PW-JTH.xml": "<paw_setup/>",
		"JTH-LDA-atomicdata/jth.txt":                      "ATOMICDATA/Ag.LDA_PW-JTH.xml\n",
	})
	url := serve(t, "JTH-LDA-atomicdata.tar.gz", payload)

	work := t.TempDir()
	dest := filepath.Join(work, "ATOMPAW-LDA-JTHv1.1")
	require.NoError(t, newTestClient().FetchAndUnpack(context.Background(), url, dest))
	assert.FileExists(t, filepath.Join(dest, "ATOMICDATA", "Ag.LDA_PW-JTH.xml"))
	assertNoTempLeft(t, work)
}

func TestFetchAndUnpack_ReplacesExisting(t *testing.T) {
	payload := makeZip(t, map[string]string{"top/new.txt": "new"})
	url := serve(t, "master.zip", payload)

	work := t.TempDir()
	dest := filepath.Join(work, "repo")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "old.txt"), []byte("old"), 0o644))

	require.NoError(t, newTestClient().FetchAndUnpack(context.Background(), url, dest))
	assert.FileExists(t, filepath.Join(dest, "new.txt"))
	assert.NoFileExists(t, filepath.Join(dest, "old.txt"))
	assert.NoDirExists(t, dest+".bak")
}

func TestFetchAndUnpack_MultipleTopLevel(t *testing.T) {
	payload := makeZip(t, map[string]string{
		"a/x.txt": "x",
		"b/y.txt": "y",
	})
	url := serve(t, "master.zip", payload)

	work := t.TempDir()
	dest := filepath.Join(work, "repo")
	err := newTestClient().FetchAndUnpack(context.Background(), url, dest)
	require.ErrorIs(t, err, ErrStructuralIntegrity)
	assert.NoDirExists(t, dest)
	assertNoTempLeft(t, work)
}

func TestFetchAndUnpack_TopLevelFile(t *testing.T) {
	payload := makeZip(t, map[string]string{"lonely.txt": "x"})
	url := serve(t, "master.zip", payload)

	work := t.TempDir()
	err := newTestClient().FetchAndUnpack(context.Background(), url, filepath.Join(work, "repo"))
	require.ErrorIs(t, err, ErrStructuralIntegrity)
}

func TestFetchAndUnpack_Truncated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/master.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write([]byte("PK\x03\x04short"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	work := t.TempDir()
	err := newTestClient().FetchAndUnpack(context.Background(), srv.URL+"/master.zip", filepath.Join(work, "repo"))
	require.ErrorIs(t, err, ErrTransferIntegrity)
	assertNoTempLeft(t, work)
}

func TestFetchAndUnpack_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	work := t.TempDir()
	err := newTestClient().FetchAndUnpack(context.Background(), srv.URL+"/missing.zip", filepath.Join(work, "repo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assertNoTempLeft(t, work)
}

func TestUnpack_Unsupported(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(p, []byte("plain text"), 0o644))
	err := Unpack(p, dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported archive format")
}

func TestUnpack_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(p, makeZip(t, map[string]string{"../evil.txt": "x"}), 0o644))
	require.ErrorIs(t, Unpack(p, dir, nil), ErrStructuralIntegrity)
}

func TestUnpack_LogsSkippedLinks(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := "Ag    ONCVPSP-3.3.0\n"
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "top/Ag/Ag-sp.psp8", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "top/Ag/Ag.psp8", Linkname: "Ag-sp.psp8", Typeflag: tar.TypeSymlink}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "top/Ag/Ag-hard.psp8", Linkname: "top/Ag/Ag-sp.psp8", Typeflag: tar.TypeLink}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dir := t.TempDir()
	p := filepath.Join(dir, "data.tar.gz")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))

	core, logs := observer.New(zapcore.WarnLevel)
	require.NoError(t, Unpack(p, dir, zap.New(core)))

	assert.FileExists(t, filepath.Join(dir, "top", "Ag", "Ag-sp.psp8"))
	assert.NoFileExists(t, filepath.Join(dir, "top", "Ag", "Ag.psp8"))

	skipped := logs.FilterMessage("skipping archive member that is not a regular file").All()
	require.Len(t, skipped, 2)
	assert.Equal(t, "top/Ag/Ag.psp8", skipped[0].ContextMap()["member"])
	assert.Equal(t, "symlink", skipped[0].ContextMap()["type"])
	assert.Equal(t, "Ag-sp.psp8", skipped[0].ContextMap()["link"])
	assert.Equal(t, "hardlink", skipped[1].ContextMap()["type"])
}

func TestMemberPath(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"top", "top", false},
		{"./top/a.txt", "top/a.txt", false},
		{"top\\a.txt", "top/a.txt", false},
		{"./", "", false},
		{"../a.txt", "", true},
		{"top/../../a.txt", "", true},
		{"/abs/a.txt", "", true},
	}
	for _, c := range cases {
		got, err := memberPath(c.in)
		if c.wantErr {
			assert.ErrorIs(t, err, ErrStructuralIntegrity, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, filepath.FromSlash(c.want), got, c.in)
	}
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "master.zip", archiveName("https://github.com/PseudoDojo/ONCVPSP-PBE-PDv0.4/archive/refs/heads/master.zip"))
	assert.Equal(t, "JTH-LDA-atomicdata.tar.gz", archiveName("https://www.abinit.org/ATOMICDATA/JTH-LDA-atomicdata.tar.gz?x=1"))
	assert.Equal(t, "download", archiveName("https://example.org/"))
}
