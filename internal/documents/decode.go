package documents

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeWord decodes a version config holding a Word document.
func DecodeWord(config json.RawMessage) (WordDocument, error) {
	var document WordDocument
	if err := decodeConfig(config, &document); err != nil {
		return WordDocument{}, err
	}
	return document, nil
}

// DecodePresentation decodes a version config holding a slide deck.
func DecodePresentation(config json.RawMessage) (Presentation, error) {
	var presentation Presentation
	if err := decodeConfig(config, &presentation); err != nil {
		return Presentation{}, err
	}
	return presentation, nil
}

// decodeConfig accepts the payload either as a JSON object or as a JSON string wrapping one.
func decodeConfig(config json.RawMessage, target any) error {
	trimmed := bytes.TrimSpace(config)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: empty config", ErrMalformedContent)
	}
	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedContent, err)
		}
		trimmed = bytes.TrimSpace([]byte(encoded))
	}
	if err := json.Unmarshal(trimmed, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	return nil
}
