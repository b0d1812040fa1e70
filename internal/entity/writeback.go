package entity

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MarkReminderFired records that an action's reminder was delivered, both in
// memory and in the owning YAML file. Marking an already fired reminder is a
// no-op.
func (s *Store) MarkReminderFired(ctx context.Context, actionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.actionFile[actionID]
	if !ok {
		return fmt.Errorf("unknown action %q", actionID)
	}

	alreadyFired := false
	for d := range s.docs {
		for a := range s.docs[d].Actions {
			act := &s.docs[d].Actions[a]
			if act.ID != actionID {
				continue
			}
			alreadyFired = act.ReminderFired
			act.ReminderFired = true
		}
	}
	if alreadyFired || path == "" {
		return nil
	}
	return markFiredInFile(path, actionID)
}

// markFiredInFile sets reminder_fired on one action by editing the YAML
// node tree, so comments, ordering and flow styles in the file survive.
func markFiredInFile(path, actionID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fmt.Errorf("%s: not a YAML document", path)
	}

	actions := mappingValue(doc.Content[0], "actions")
	if actions == nil || actions.Kind != yaml.SequenceNode {
		return fmt.Errorf("%s: no actions list", path)
	}
	changed := false
	for _, item := range actions.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		id := mappingValue(item, "id")
		if id == nil || id.Value != actionID {
			continue
		}
		if setBoolField(item, "reminder_fired") {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// mappingValue returns the value node for key in a mapping node.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// setBoolField sets key to true in mapping m, appending it when absent.
// It reports whether the node changed.
func setBoolField(m *yaml.Node, key string) bool {
	if v := mappingValue(m, key); v != nil {
		if v.Kind == yaml.ScalarNode && v.Value == "true" {
			return false
		}
		v.Kind = yaml.ScalarNode
		v.Tag = "!!bool"
		v.Value = "true"
		v.Style = 0
		v.Content = nil
		return true
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"},
	)
	return true
}

// writeFileAtomic replaces path via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
