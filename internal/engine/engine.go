// Package engine wraps the XSLT engine behind a small capability interface.
// The rest of the service only sees Compiler and Executable; the concrete
// engine is github.com/midbel/codecs.
package engine

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/midbel/codecs/xml"
	"github.com/midbel/codecs/xslt"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

// Compiler turns stylesheet source into an executable transformation program.
type Compiler interface {
	// Compile compiles inline stylesheet source. The name is carried for
	// error reporting only.
	Compile(name string, source []byte) (Executable, error)
	// CompileFile compiles a stylesheet file from the store.
	CompileFile(path string) (Executable, error)
}

// Executable is a compiled stylesheet. It is immutable from the caller's
// point of view: it is replaced wholesale on re-upload, never patched.
type Executable interface {
	// TransformFile applies the stylesheet to the XML document in path and
	// returns the serialized result.
	TransformFile(path string) (string, error)
}

// loadMu serializes stylesheet loading. The engine rebinds its instruction
// table to the stylesheet's declared namespace prefix during load, which is
// shared package state.
var loadMu sync.Mutex

// XSLT is the Compiler implementation backed by midbel/codecs.
type XSLT struct {
	// ContextDir resolves xsl:include and xsl:import references of inline
	// submissions; usually the stylesheet store directory.
	ContextDir string
	// ScratchDir receives transient files for inline compilation.
	ScratchDir string
}

// New creates an XSLT compiler. The scratch directory is created if absent.
func New(contextDir, scratchDir string) (*XSLT, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, err
	}
	return &XSLT{ContextDir: contextDir, ScratchDir: scratchDir}, nil
}

// Compile writes the source to a transient uniquely-named file and loads it.
// The engine resolves stylesheets from files; the transient file is removed
// once loading finishes.
func (c *XSLT) Compile(name string, source []byte) (Executable, error) {
	scratch := filepath.Join(c.ScratchDir, "compile-"+uuid.NewString()+".xsl")
	if err := os.WriteFile(scratch, source, 0o644); err != nil {
		return nil, svcerrors.NewInternal("writing transient stylesheet failed", err)
	}
	defer os.Remove(scratch)

	sheet, err := load(scratch, c.ContextDir)
	if err != nil {
		return nil, svcerrors.NewCompile(name, err)
	}
	return &executable{name: name, sheet: sheet}, nil
}

// CompileFile loads a stylesheet directly from the store.
func (c *XSLT) CompileFile(path string) (Executable, error) {
	name := filepath.Base(path)
	sheet, err := load(path, filepath.Dir(path))
	if err != nil {
		return nil, svcerrors.NewCompile(name, err)
	}
	return &executable{name: name, sheet: sheet}, nil
}

func load(path, contextDir string) (*xslt.Stylesheet, error) {
	loadMu.Lock()
	defer loadMu.Unlock()
	return xslt.Load(path, contextDir)
}

type executable struct {
	name string
	// The engine's evaluation environment is not re-entrant: one run at a
	// time per compiled stylesheet. Distinct stylesheets run in parallel.
	mu    sync.Mutex
	sheet *xslt.Stylesheet
}

func (e *executable) TransformFile(path string) (string, error) {
	doc, err := parseFile(path)
	if err != nil {
		return "", svcerrors.NewInvalidInput("transform input is not well-formed XML", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var buf bytes.Buffer
	if err := e.sheet.Generate(&buf, doc); err != nil {
		return "", svcerrors.NewInternal("transformation failed", err).WithStylesheet(e.name)
	}
	return buf.String(), nil
}

func parseFile(path string) (*xml.Document, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return xml.NewParser(r).Parse()
}

// Parse verifies that the reader holds a well-formed XML document.
func Parse(r io.Reader) (*xml.Document, error) {
	return xml.NewParser(r).Parse()
}

// CheckWellFormed reports whether data parses as XML.
func CheckWellFormed(data []byte) error {
	_, err := Parse(bytes.NewReader(data))
	return err
}

// Pretty re-serializes an XML string with two-space indentation.
func Pretty(source string) (string, error) {
	doc, err := Parse(strings.NewReader(source))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	w := xml.NewWriter(&buf)
	if err := w.Write(doc); err != nil {
		return "", err
	}
	return strings.TrimLeft(buf.String(), "\n"), nil
}
