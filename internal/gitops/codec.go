package gitops

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Marshal renders doc as the canonical YAML document bytes.
func Marshal(doc Document) ([]byte, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("gitops: marshal document: %w", err)
	}
	return out, nil
}

// Unmarshal parses raw YAML bytes into a Document.
func Unmarshal(raw []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("gitops: parse document: %w", err)
	}
	return doc, nil
}
