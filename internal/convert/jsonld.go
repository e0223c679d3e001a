package convert

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/knakk/rdf"
	"github.com/piprate/json-gold/ld"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

// RDFFormat names a target RDF serialization for JSON-LD conversion.
type RDFFormat string

const (
	FormatNQuads   RDFFormat = "nquads"
	FormatNTriples RDFFormat = "ntriples"
	FormatTurtle   RDFFormat = "turtle"
)

// ParseRDFFormat maps a request path segment onto an RDFFormat. The empty
// string selects N-Quads, matching the processor's native output.
func ParseRDFFormat(s string) (RDFFormat, error) {
	switch strings.ToLower(s) {
	case "", "nquads", "n-quads":
		return FormatNQuads, nil
	case "ntriples", "n-triples":
		return FormatNTriples, nil
	case "turtle", "ttl":
		return FormatTurtle, nil
	default:
		return "", svcerrors.NewInvalidInput("unsupported RDF format: "+s, nil)
	}
}

// ContentType returns the MIME type to serve for the format.
func (f RDFFormat) ContentType() string {
	switch f {
	case FormatTurtle:
		return "text/turtle"
	default:
		return "application/n-quads"
	}
}

// JSONLDToRDF expands a JSON-LD document into an RDF dataset and serializes
// it in the requested format. The JSON-LD processor emits N-Quads natively;
// other formats are produced by re-encoding the dataset.
func JSONLDToRDF(data []byte, format RDFFormat) (string, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", svcerrors.NewInvalidInput("request body is not valid JSON", err)
	}

	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"

	res, err := proc.ToRDF(doc, opts)
	if err != nil {
		return "", svcerrors.NewInvalidInput("document is not valid JSON-LD", err)
	}
	nquads, ok := res.(string)
	if !ok {
		return "", svcerrors.NewInternal("unexpected RDF serialization result", nil)
	}
	if format == FormatNQuads {
		return nquads, nil
	}
	return reserialize(nquads, format)
}

// reserialize re-encodes an N-Quads dataset as N-Triples or Turtle. Graph
// labels are dropped; every statement lands in the default graph.
func reserialize(nquads string, format RDFFormat) (string, error) {
	quads, err := rdf.NewQuadDecoder(strings.NewReader(nquads), rdf.NQuads).DecodeAll()
	if err != nil {
		return "", svcerrors.NewInternal("decoding RDF dataset", err)
	}
	triples := make([]rdf.Triple, 0, len(quads))
	for _, q := range quads {
		triples = append(triples, q.Triple)
	}

	target := rdf.NTriples
	if format == FormatTurtle {
		target = rdf.Turtle
	}
	var buf bytes.Buffer
	enc := rdf.NewTripleEncoder(&buf, target)
	if err := enc.EncodeAll(triples); err != nil {
		return "", svcerrors.NewInternal("encoding RDF dataset", err)
	}
	if err := enc.Close(); err != nil {
		return "", svcerrors.NewInternal("encoding RDF dataset", err)
	}
	return buf.String(), nil
}
