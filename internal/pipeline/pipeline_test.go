package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dans-labs/transformer/internal/engine"
	"github.com/dans-labs/transformer/internal/fetch"
	"github.com/dans-labs/transformer/internal/registry"
	"github.com/dans-labs/transformer/internal/store"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

// echoStylesheet echoes the text under /data into an <out> element.
const echoStylesheet = `<?xml version="1.0" encoding="UTF-8"?>
<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:template match="/">
    <out><xsl:value-of select="data"/></out>
  </xsl:template>
</xsl:stylesheet>`

// textStylesheet emits the text under /data with text output method.
const textStylesheet = `<?xml version="1.0" encoding="UTF-8"?>
<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:output method="text" omit-xml-declaration="yes"/>
  <xsl:template match="/">
    <xsl:value-of select="data"/>
  </xsl:template>
</xsl:stylesheet>`

type fixture struct {
	pipeline *Pipeline
	registry *registry.Registry
	scratch  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	storeDir := t.TempDir()
	scratch := t.TempDir()

	st, err := store.New(storeDir)
	require.NoError(t, err)
	compiler, err := engine.New(storeDir, scratch)
	require.NoError(t, err)

	reg := registry.New(compiler, st, nil)
	require.NoError(t, reg.Upsert("echo.xsl", []byte(echoStylesheet)))
	require.NoError(t, reg.Upsert("text.xsl", []byte(textStylesheet)))

	p, err := New(reg, fetch.New(5*time.Second), scratch, nil)
	require.NoError(t, err)
	return &fixture{pipeline: p, registry: reg, scratch: scratch}
}

func TestTransformUnknownName(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Transform(context.Background(), "absent.xsl",
		XMLPayload{Data: []byte(`<data>x</data>`)}, OutputRaw)
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindNotFound, svcerrors.KindOf(err))
}

func TestTransformXMLPayload(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline.Transform(context.Background(), "echo.xsl",
		XMLPayload{Data: []byte(`<data>hello</data>`)}, OutputRaw)
	require.NoError(t, err)
	assert.Contains(t, out.(string), "hello")
}

func TestTransformMalformedXML(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Transform(context.Background(), "echo.xsl",
		XMLPayload{Data: []byte(`<data><unclosed></data>`)}, OutputRaw)
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindInvalidInput, svcerrors.KindOf(err))
}

func TestTransformJSONPayload(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline.Transform(context.Background(), "text.xsl",
		JSONPayload{Data: []byte(`{"a": "plain"}`)}, OutputRaw)
	require.NoError(t, err)
	assert.Contains(t, out.(string), "plain")
}

func TestTransformJSONWithMarkupCharacters(t *testing.T) {
	f := newFixture(t)

	// Literal & in a JSON string breaks the first envelope parse and must
	// succeed through the escape-and-retry recovery.
	out, err := f.pipeline.Transform(context.Background(), "text.xsl",
		JSONPayload{Data: []byte(`{"a": "x&y"}`)}, OutputRaw)
	require.NoError(t, err)
	assert.Contains(t, out.(string), "x&y")
}

func TestTransformInvalidJSON(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Transform(context.Background(), "text.xsl",
		JSONPayload{Data: []byte(`{"a": `)}, OutputRaw)
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindInvalidInput, svcerrors.KindOf(err))
}

func TestTransformRemoteXML(t *testing.T) {
	f := newFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<data>remote-doc</data>`))
	}))
	defer srv.Close()

	out, err := f.pipeline.Transform(context.Background(), "echo.xsl",
		RemotePayload{URL: srv.URL}, OutputRaw)
	require.NoError(t, err)
	assert.Contains(t, out.(string), "remote-doc")
}

func TestTransformRemoteJSON(t *testing.T) {
	f := newFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a": "remote-json"}`))
	}))
	defer srv.Close()

	out, err := f.pipeline.Transform(context.Background(), "text.xsl",
		RemotePayload{URL: srv.URL}, OutputRaw)
	require.NoError(t, err)
	assert.Contains(t, out.(string), "remote-json")
}

func TestTransformRemoteFailure(t *testing.T) {
	f := newFixture(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := f.pipeline.Transform(context.Background(), "echo.xsl",
		RemotePayload{URL: srv.URL}, OutputRaw)
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindFetch, svcerrors.KindOf(err))
}

func TestTransformShapesXML(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline.Transform(context.Background(), "echo.xsl",
		XMLPayload{Data: []byte(`<data>pretty</data>`)}, OutputXML)
	require.NoError(t, err)
	assert.Contains(t, out.(string), "<out>")
}

func TestTransformShapesJSON(t *testing.T) {
	f := newFixture(t)

	// The text stylesheet passes the payload text through, so a JSON text
	// value decodes under json shaping.
	out, err := f.pipeline.Transform(context.Background(), "text.xsl",
		XMLPayload{Data: []byte(`<data>{"ok": true}</data>`)}, OutputJSON)
	require.NoError(t, err)
	decoded, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, decoded["ok"])
}

func TestTransformShapeJSONRejectsNonJSON(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline.Transform(context.Background(), "echo.xsl",
		XMLPayload{Data: []byte(`<data>not json</data>`)}, OutputJSON)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestTransformXMLWithCDATA(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline.Transform(context.Background(), "echo.xsl",
		XMLPayload{Data: []byte(`<data><![CDATA[a & b]]></data>`)}, OutputRaw)
	require.NoError(t, err)
	result, ok := out.(string)
	require.True(t, ok)
	assert.Contains(t, result, "a &amp; b")
}

func TestTransformXMLWithComment(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline.Transform(context.Background(), "echo.xsl",
		XMLPayload{Data: []byte(`<data><!-- a & b -->x</data>`)}, OutputRaw)
	require.NoError(t, err)
	result, ok := out.(string)
	require.True(t, ok)
	assert.Contains(t, result, "<out>x</out>")
}

// blankCompiler produces executables whose output is always empty.
type blankCompiler struct{}

func (blankCompiler) Compile(string, []byte) (engine.Executable, error) {
	return blankExecutable{}, nil
}

func (blankCompiler) CompileFile(string) (engine.Executable, error) {
	return blankExecutable{}, nil
}

type blankExecutable struct{}

func (blankExecutable) TransformFile(string) (string, error) {
	return "  \n", nil
}

func TestTransformEmptyResult(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	reg := registry.New(blankCompiler{}, st, nil)
	require.NoError(t, reg.Upsert("blank.xsl", []byte("anything")))

	p, err := New(reg, fetch.New(time.Second), t.TempDir(), nil)
	require.NoError(t, err)

	_, err = p.Transform(context.Background(), "blank.xsl",
		XMLPayload{Data: []byte(`<data>x</data>`)}, OutputRaw)
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindEmptyResult, svcerrors.KindOf(err))
}

func TestTransformScratchFilesCleanedUp(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Transform(context.Background(), "echo.xsl",
		XMLPayload{Data: []byte(`<data>tidy</data>`)}, OutputRaw)
	require.NoError(t, err)

	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseOutputFormat(t *testing.T) {
	for _, valid := range []string{"", "raw", "json", "xml", "JSON"} {
		_, err := ParseOutputFormat(valid)
		assert.NoError(t, err, valid)
	}
	_, err := ParseOutputFormat("yaml")
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindInvalidInput, svcerrors.KindOf(err))
}

func TestConcurrentTransformsAreIsolated(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make([]interface{}, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf("<data>payload-%d</data>", i)
			results[i], errs[i] = f.pipeline.Transform(context.Background(), "echo.xsl",
				XMLPayload{Data: []byte(payload)}, OutputRaw)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		require.NoError(t, errs[i])
		got := results[i].(string)
		assert.Contains(t, got, fmt.Sprintf("payload-%d", i),
			"request %d must receive its own result, got %q", i, got)
	}
}

func TestEscapeMarkup(t *testing.T) {
	assert.Equal(t, `a &#38; b &#60; c`, escapeMarkup(`a & b < c`))
	// Escaping must not double-escape its own output markers.
	assert.Equal(t, `&#38;#38;`, escapeMarkup(`&#38;`))
}

func TestCheckDocumentRejectsBareAmpersand(t *testing.T) {
	assert.Error(t, checkDocument([]byte(`<data>{"a": "x&y"}</data>`)))
	assert.NoError(t, checkDocument([]byte(`<data>x&#38;y</data>`)))
	assert.NoError(t, checkDocument([]byte(`<data>x&amp;y</data>`)))
}

func TestEnvelopeIsParseableAfterRecovery(t *testing.T) {
	wrapped := encapsulate(escapeMarkup(`{"a": "x&y", "b": "<tag>"}`))
	assert.NoError(t, checkDocument(wrapped))
}
