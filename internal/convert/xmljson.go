// Package convert implements the auxiliary document conversions that sit
// next to the XSLT pipeline: XML to a nested JSON structure, and JSON-LD
// to an RDF serialization.
package convert

import (
	"github.com/clbanning/mxj/v2"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

// XMLToJSON converts an XML document into a nested map following the mxj
// convention: attributes are prefixed with "-" and element text lives under
// "#text". When clean is set, empty and falsy leaves are stripped from the
// result so sparse documents produce compact JSON.
func XMLToJSON(data []byte, clean bool) (map[string]any, error) {
	m, err := mxj.NewMapXml(data)
	if err != nil {
		return nil, svcerrors.NewInvalidInput("request body is not well-formed XML", err)
	}
	out := map[string]any(m)
	if clean {
		out = cleanMap(out)
	}
	return out, nil
}

func cleanMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if cv, ok := cleanValue(v); ok {
			out[k] = cv
		}
	}
	return out
}

// cleanValue reports whether v carries content worth keeping and returns the
// cleaned form. Empty strings, nils, false booleans and containers that end
// up empty after cleaning are all dropped.
func cleanValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		return t, t != ""
	case bool:
		return t, t
	case map[string]any:
		cm := cleanMap(t)
		return cm, len(cm) > 0
	case []any:
		cs := make([]any, 0, len(t))
		for _, item := range t {
			if ci, ok := cleanValue(item); ok {
				cs = append(cs, ci)
			}
		}
		return cs, len(cs) > 0
	default:
		return t, true
	}
}
