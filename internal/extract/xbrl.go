package extract

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ta-tracker/internal/model"
)

// DEI element names carrying issuer-asserted transfer agent facts.
const (
	deiTransferAgentName = "EntityTransferAgentName"
	deiTransferAgentCIK  = "EntityTransferAgentCIK"
)

// extractXBRL reads the tagged DEI transfer-agent fields from an XBRL
// instance document. A tagged value is issuer-asserted, so it yields a single
// high-trust candidate instead of a pile of regex hits.
func (e *Extractor) extractXBRL(f model.Filing) ([]model.MentionCandidate, error) {
	dec := xml.NewDecoder(bytes.NewReader(f.Payload))
	dec.Strict = false

	var name, agentCIK string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "extract: parse xbrl instance")
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !isDEINamespace(se.Name.Space) {
			continue
		}

		switch se.Name.Local {
		case deiTransferAgentName:
			v, err := elementText(dec)
			if err != nil {
				return nil, err
			}
			if name == "" {
				name = v
			}
		case deiTransferAgentCIK:
			v, err := elementText(dec)
			if err != nil {
				return nil, err
			}
			if agentCIK == "" {
				agentCIK = v
			}
		}
	}

	if name == "" {
		// Instance parsed fine but carries no transfer agent tag; nothing to
		// emit and nothing to fall back to — the tag is simply absent.
		return nil, nil
	}

	ctx := name
	if agentCIK != "" {
		ctx = name + " (agent CIK " + agentCIK + ")"
	}

	return []model.MentionCandidate{{
		Filing:  f.Ref(),
		Raw:     name,
		Context: ctx,
		Method:  "dei:" + deiTransferAgentName,
	}}, nil
}

// isDEINamespace reports whether an XML namespace URI is an SEC DEI taxonomy
// namespace (e.g. http://xbrl.sec.gov/dei/2024).
func isDEINamespace(space string) bool {
	return strings.Contains(space, "/dei/") || strings.HasSuffix(space, "/dei")
}

// elementText consumes decoder tokens until the current element closes and
// returns its trimmed character data.
func elementText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", eris.Wrap(err, "extract: read xbrl element text")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
