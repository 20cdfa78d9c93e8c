package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	texts []string
	err   error
}

func (r *recorder) ingest(_ context.Context, text string) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.texts = append(r.texts, text)
	return 1, nil
}

func newTestWatcher(t *testing.T, rec *recorder) (*Watcher, WatcherConfig) {
	t.Helper()
	root := t.TempDir()
	cfg := WatcherConfig{
		SourceDir:      filepath.Join(root, "in"),
		ArchiveDir:     filepath.Join(root, "archive"),
		BadDir:         filepath.Join(root, "bad"),
		MonitoringTime: 2 * time.Second,
	}
	w, err := NewWatcher(cfg, NewConverter(ConverterConfig{}, nil), rec.ingest, nil)
	require.NoError(t, err)
	return w, cfg
}

func TestWatcher_PollWaitsForSettledFiles(t *testing.T) {
	w, cfg := newTestWatcher(t, &recorder{})
	path := filepath.Join(cfg.SourceDir, "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	now := time.Now()
	assert.Empty(t, w.poll(now), "first sighting only starts tracking")
	assert.Empty(t, w.poll(now.Add(time.Second)))

	// a modification restarts the clock
	require.NoError(t, os.WriteFile(path, []byte("version two"), 0644))
	assert.Empty(t, w.poll(now.Add(3*time.Second)))
	assert.Empty(t, w.poll(now.Add(4*time.Second)))
	assert.Equal(t, []string{path}, w.poll(now.Add(5*time.Second)))

	require.NoError(t, os.Remove(path))
	assert.Empty(t, w.poll(now.Add(6*time.Second)))
	assert.Empty(t, w.seen)
}

func TestWatcher_ProcessIngestsAndArchives(t *testing.T) {
	rec := &recorder{}
	w, cfg := newTestWatcher(t, rec)
	path := filepath.Join(cfg.SourceDir, "corpus.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\nParis is the capital of France."), 0644))

	w.process(context.Background(), path)

	assert.Equal(t, []string{"# Notes\nParis is the capital of France."}, rec.texts)
	assert.NoFileExists(t, path)
	archived := filepath.Join(cfg.ArchiveDir, time.Now().Format("2006-01-02"), "corpus.md")
	assert.FileExists(t, archived)
}

func TestWatcher_FailuresGoToBadDir(t *testing.T) {
	rec := &recorder{err: errors.New("provider down")}
	w, cfg := newTestWatcher(t, rec)
	day := time.Now().Format("2006-01-02")

	txt := filepath.Join(cfg.SourceDir, "corpus.txt")
	require.NoError(t, os.WriteFile(txt, []byte("text"), 0644))
	w.process(context.Background(), txt)
	assert.FileExists(t, filepath.Join(cfg.BadDir, day, "corpus.txt"))

	// unsupported types never reach ingest
	rec.err = nil
	bin := filepath.Join(cfg.SourceDir, "image.png")
	require.NoError(t, os.WriteFile(bin, []byte{0x89}, 0644))
	w.process(context.Background(), bin)
	assert.FileExists(t, filepath.Join(cfg.BadDir, day, "image.png"))
	assert.Empty(t, rec.texts)
}

func TestWatcher_MoveToArchiveResolvesCollisions(t *testing.T) {
	w, cfg := newTestWatcher(t, &recorder{})

	var dests []string
	for i := range 3 {
		path := filepath.Join(cfg.SourceDir, "doc.txt")
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprint(i)), 0644))
		dest, err := w.MoveToArchive(path, false)
		require.NoError(t, err)
		dests = append(dests, filepath.Base(dest))
	}
	assert.Equal(t, []string{"doc.txt", "doc_1.txt", "doc_2.txt"}, dests)
}

func TestConverter(t *testing.T) {
	dir := t.TempDir()
	c := NewConverter(ConverterConfig{}, nil)

	assert.True(t, c.Supported("a.TXT"))
	assert.True(t, c.Supported("notes.md"))
	assert.False(t, c.Supported("doc.pdf"), "pdf needs a docling url")
	assert.False(t, c.Supported("image.png"))

	txt := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0644))
	text, err := c.ToText(context.Background(), txt)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = c.ToText(context.Background(), filepath.Join(dir, "doc.pdf"))
	assert.ErrorIs(t, err, ErrNoConverter)

	_, err = c.ToText(context.Background(), filepath.Join(dir, "x.docx"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestConverter_Docling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/convert/file", r.URL.Path)
		file, header, err := r.FormFile("files")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "report.pdf", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"document":{"md_content":"# Report\n\n\n\n![img](data:image/png;base64,AAAA)\nBody text"}}`)
	}))
	defer srv.Close()

	pdf := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4 stub"), 0644))

	c := NewConverter(ConverterConfig{DoclingURL: srv.URL + "/"}, nil)
	assert.True(t, c.Supported(pdf))
	text, err := c.ToText(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nBody text", text)
}

func TestCleanMarkdown(t *testing.T) {
	md := "a\n\n\n\nb ![x](data:image/jpeg;base64,QUJD) c\n"
	assert.Equal(t, "a\n\nb  c", CleanMarkdown(md))
	assert.False(t, strings.Contains(CleanMarkdown(md), "base64"))
}
