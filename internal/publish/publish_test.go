package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/pseudodojo/psdist/internal/meta"
	"github.com/pseudodojo/psdist/internal/site"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	mu      sync.Mutex
	exists  bool
	made    int
	checked int
	puts    map[string]string
	failKey string
}

func (f *fakePutter) BucketExists(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked++
	return f.exists, nil
}

func (f *fakePutter) MakeBucket(_ context.Context, _ string, _ minio.MakeBucketOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.made++
	f.exists = true
	return nil
}

func (f *fakePutter) FPutObject(_ context.Context, _, key, filePath string, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failKey {
		return minio.UploadInfo{}, errors.New("boom")
	}
	st, err := os.Stat(filePath)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[key] = filePath
	return minio.UploadInfo{Key: key, Size: st.Size()}, nil
}

func sampleIndex() *site.Index {
	ix := site.NewIndex()
	ix.Files["nc-sr-v0.4"] = map[string]map[string]map[string]*site.Entry{
		"PBE": {
			"standard": {
				"Ag": {Files: map[string]string{
					"psp8":   "ONCVPSP-PBE-SR-PDv0.4/Ag/Ag-sp.psp8",
					"djrepo": "ONCVPSP-PBE-SR-PDv0.4/Ag/Ag-sp.djrepo",
				}, Meta: &meta.Meta{HH: 47, HL: 37, HN: 41, NV: 19}},
			},
			"stringent": {
				"Ag": {Files: map[string]string{"psp8": "ONCVPSP-PBE-SR-PDv0.4/Ag/Ag-sp.psp8"}},
			},
		},
	}
	ix.Targz["nc-sr-v0.4"] = map[string]map[string]map[string]string{
		"PBE": {
			"standard":  {"psp8": "ONCVPSP-PBE-SR-PDv0.4/nc-sr-v0.4_PBE_standard_psp8.tgz"},
			"stringent": {"psp8": "ONCVPSP-PBE-SR-PDv0.4/nc-sr-v0.4_PBE_stringent_psp8.tgz"},
		},
	}
	return ix
}

func TestObjects(t *testing.T) {
	objs := Objects("/work", "/dist/", sampleIndex())

	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	assert.Equal(t, []string{
		"dist/ONCVPSP-PBE-SR-PDv0.4/Ag/Ag-sp.djrepo",
		"dist/ONCVPSP-PBE-SR-PDv0.4/Ag/Ag-sp.psp8",
		"dist/ONCVPSP-PBE-SR-PDv0.4/nc-sr-v0.4_PBE_standard_psp8.tgz",
		"dist/ONCVPSP-PBE-SR-PDv0.4/nc-sr-v0.4_PBE_stringent_psp8.tgz",
		"dist/files.json",
		"dist/targz.json",
	}, keys)
	assert.Equal(t, filepath.Join("/work", "ONCVPSP-PBE-SR-PDv0.4", "Ag", "Ag-sp.psp8"), objs[1].Path)

	noPrefix := Objects("/work", "", sampleIndex())
	assert.Equal(t, "files.json", noPrefix[4].Key)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("files.json"))
	assert.Equal(t, "application/gzip", contentType("a/b.tgz"))
	assert.Equal(t, "text/html; charset=utf-8", contentType("a/b.html"))
	assert.Equal(t, "application/octet-stream", contentType("a/b.psp8"))
}

func writeObjects(t *testing.T, objs []Object) {
	t.Helper()
	for _, o := range objs {
		require.NoError(t, os.MkdirAll(filepath.Dir(o.Path), 0o755))
		require.NoError(t, os.WriteFile(o.Path, []byte(o.Key), 0o644))
	}
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	objs := Objects(dir, "v1", sampleIndex())
	writeObjects(t, objs)

	fp := &fakePutter{}
	p, err := New(fp, Config{Bucket: "pseudos"}, nil)
	require.NoError(t, err)

	n, err := p.Publish(context.Background(), objs)
	require.NoError(t, err)
	assert.Len(t, fp.puts, len(objs))
	assert.Equal(t, 1, fp.made)

	var want int64
	for _, o := range objs {
		want += int64(len(o.Key))
	}
	assert.Equal(t, want, n)

	_, err = p.Publish(context.Background(), objs)
	require.NoError(t, err)
	assert.Equal(t, 1, fp.checked, "bucket is checked once")
	assert.Equal(t, 1, fp.made)
}

func TestPublish_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	objs := Objects(dir, "", sampleIndex())
	writeObjects(t, objs)

	fp := &fakePutter{exists: true, failKey: "files.json"}
	p, err := New(fp, Config{Bucket: "pseudos"}, nil)
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), objs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "files.json")
	assert.Len(t, fp.puts, len(objs)-1)
	assert.Zero(t, fp.made)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&fakePutter{}, Config{}, nil)
	assert.Error(t, err)

	_, err = NewClient(Config{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewClient(Config{Endpoint: "localhost:9000", Bucket: "b"})
	assert.Error(t, err)

	c, err := NewClient(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	var _ Putter = c
}
