// Package pipeline orchestrates one transformation request: normalize the
// inbound payload to well-formed XML, materialize it as a request-unique
// transform input, run the compiled stylesheet from the registry, and shape
// the output.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dans-labs/transformer/internal/engine"
	"github.com/dans-labs/transformer/internal/fetch"
	"github.com/dans-labs/transformer/internal/logging"
	"github.com/dans-labs/transformer/internal/registry"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

// Payload is the tagged variant of a transform input, decided once at the
// request boundary.
type Payload interface {
	isPayload()
}

// XMLPayload is a raw XML document.
type XMLPayload struct {
	Data []byte
}

// JSONPayload is a JSON document to be wrapped in a <data> envelope.
type JSONPayload struct {
	Data []byte
}

// RemotePayload is a document fetched from a URL; its content type decides
// the XML or JSON normalization branch.
type RemotePayload struct {
	URL string
}

func (XMLPayload) isPayload()    {}
func (JSONPayload) isPayload()   {}
func (RemotePayload) isPayload() {}

// OutputFormat selects the response shaping of a transform result.
type OutputFormat string

const (
	OutputRaw  OutputFormat = "raw"
	OutputJSON OutputFormat = "json"
	OutputXML  OutputFormat = "xml"
)

// ParseOutputFormat validates a caller-supplied output format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputRaw, "":
		return OutputRaw, nil
	case OutputJSON:
		return OutputJSON, nil
	case OutputXML:
		return OutputXML, nil
	default:
		return "", svcerrors.NewInvalidInput(fmt.Sprintf("output format %q not supported (raw, json, xml)", s), nil)
	}
}

// Pipeline runs transform requests against the shared registry. It owns the
// scratch directory where per-request transform inputs are materialized.
type Pipeline struct {
	registry   *registry.Registry
	fetcher    *fetch.Fetcher
	scratchDir string
	logger     logging.Logger
}

// New creates a Pipeline, creating the scratch directory if absent.
func New(reg *registry.Registry, fetcher *fetch.Fetcher, scratchDir string, logger logging.Logger) (*Pipeline, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		registry:   reg,
		fetcher:    fetcher,
		scratchDir: scratchDir,
		logger:     logger.WithComponent("pipeline"),
	}, nil
}

// Transform runs one request through the pipeline. The returned value is a
// string for raw and xml shaping, and a decoded JSON value for json shaping.
func (p *Pipeline) Transform(ctx context.Context, name string, payload Payload, format OutputFormat) (interface{}, error) {
	exec, err := p.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	normalized, err := p.normalize(ctx, name, payload)
	if err != nil {
		return nil, err
	}

	// Each request gets its own transform input; concurrent requests for
	// the same stylesheet never share a scratch path.
	scratch := p.scratchPath(name, "")
	if err := os.WriteFile(scratch, normalized, 0o644); err != nil {
		return nil, svcerrors.NewInternal("materializing transform input failed", err)
	}
	defer func() {
		if err := os.Remove(scratch); err != nil {
			p.logger.Warn(ctx, err, "removing transform input failed", "path", scratch)
		}
	}()

	result, err := exec.TransformFile(scratch)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result) == "" {
		return nil, svcerrors.NewEmptyResult(name)
	}

	return shape(name, result, format)
}

func (p *Pipeline) normalize(ctx context.Context, name string, payload Payload) ([]byte, error) {
	switch v := payload.(type) {
	case XMLPayload:
		if err := engine.CheckWellFormed(v.Data); err != nil {
			return nil, svcerrors.NewInvalidInput("submitted XML is not valid", err)
		}
		return v.Data, nil
	case JSONPayload:
		return p.encapsulateJSON(ctx, name, v.Data)
	case RemotePayload:
		res, err := p.fetcher.Get(ctx, v.URL)
		if err != nil {
			return nil, err
		}
		if strings.Contains(res.ContentType, "json") {
			return p.normalize(ctx, name, JSONPayload{Data: res.Body})
		}
		return p.normalize(ctx, name, XMLPayload{Data: res.Body})
	default:
		return nil, svcerrors.NewInternal(fmt.Sprintf("unknown payload variant %T", payload), nil)
	}
}

// encapsulateJSON wraps a JSON document in the <data> envelope expected by
// stylesheets. When the wrapped document does not parse as XML, which
// happens for literal & and < inside JSON string values, the JSON text is
// escaped once and re-wrapped. A second failure preserves the artifact on
// disk for diagnosis and reports invalid input.
func (p *Pipeline) encapsulateJSON(ctx context.Context, name string, data []byte) ([]byte, error) {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, svcerrors.NewInvalidInput("submitted JSON is not valid", err)
	}

	text, err := marshalJSON(value)
	if err != nil {
		return nil, svcerrors.NewInternal("serializing JSON failed", err)
	}

	wrapped := encapsulate(text)
	if err := checkDocument(wrapped); err == nil {
		return wrapped, nil
	}

	recovered := encapsulate(escapeMarkup(text))
	if err := checkDocument(recovered); err != nil {
		artifact := p.scratchPath(name, "-ERROR-converted-fail")
		if werr := os.WriteFile(artifact, recovered, 0o644); werr != nil {
			p.logger.Warn(ctx, werr, "preserving failed conversion artifact failed")
		} else {
			p.logger.Error(ctx, err, "JSON encapsulation failed after recovery", "artifact", artifact)
		}
		return nil, svcerrors.NewInvalidInput("submitted JSON could not be encapsulated as XML", err)
	}
	return recovered, nil
}

func (p *Pipeline) scratchPath(name, suffix string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	return filepath.Join(p.scratchDir, fmt.Sprintf("%s-%s%s.xml", base, uuid.NewString(), suffix))
}

// marshalJSON serializes without HTML escaping, so the envelope carries the
// JSON text as submitted.
func marshalJSON(value interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func encapsulate(text string) []byte {
	return []byte("<data>" + text + "</data>")
}

// escapeMarkup escapes the two characters that break the XML envelope.
func escapeMarkup(text string) string {
	text = strings.ReplaceAll(text, "&", "&#38;")
	return strings.ReplaceAll(text, "<", "&#60;")
}

// entityPattern matches character and predefined entity references.
var entityPattern = regexp.MustCompile(`^(#[0-9]+|#x[0-9a-fA-F]+|amp|lt|gt|apos|quot);`)

// checkDocument verifies a <data> envelope. The engine's parser is lenient
// about stray ampersands in character data, so bare & references are
// rejected here; that is what routes malformed envelopes into the escape
// recovery. The envelope carries JSON text only, never CDATA or comments,
// which keeps the byte-level scan safe. Raw XML payloads are checked with
// engine.CheckWellFormed alone.
func checkDocument(data []byte) error {
	if err := engine.CheckWellFormed(data); err != nil {
		return err
	}
	text := string(data)
	for i := 0; i < len(text); i++ {
		if text[i] != '&' {
			continue
		}
		if !entityPattern.MatchString(text[i+1:]) {
			return fmt.Errorf("bare & at offset %d", i)
		}
	}
	return nil
}

func shape(name, result string, format OutputFormat) (interface{}, error) {
	switch format {
	case OutputRaw, "":
		return result, nil
	case OutputJSON:
		var value interface{}
		if err := json.Unmarshal([]byte(result), &value); err != nil {
			return nil, svcerrors.NewInternal("transformation result is not valid JSON", err).WithStylesheet(name)
		}
		return value, nil
	case OutputXML:
		pretty, err := engine.Pretty(result)
		if err != nil {
			return nil, svcerrors.NewInternal("transformation result is not well-formed XML", err).WithStylesheet(name)
		}
		return pretty, nil
	default:
		return nil, svcerrors.NewInvalidInput(fmt.Sprintf("output format %q not supported", format), nil)
	}
}
