package valueobjects

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "branchpost/pkg/errors"
)

// NestedPost is the generator-facing shape of a branching post: a title and a
// recursively nested root node. It carries no identities; those are assigned
// when the structure is materialized.
type NestedPost struct {
	Title    string      `json:"title" validate:"required"`
	RootNode *NestedNode `json:"rootNode" validate:"required"`
}

// NestedNode is one node of a NestedPost.
type NestedNode struct {
	// ID must be empty. A populated ID references an existing node and is rejected.
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content" validate:"required"`
	IsEnding bool           `json:"isEnding"`
	Options  []NestedOption `json:"options,omitempty" validate:"omitempty,dive"`
}

// NestedOption is a labeled edge to an inline child node.
type NestedOption struct {
	Text     string      `json:"text" validate:"required"`
	NextNode *NestedNode `json:"nextNode"`
	// NextNodeID must be empty; options may only point at fresh inline nodes.
	NextNodeID string `json:"nextNodeId,omitempty"`
}

// Key variants accepted from untyped input.
var (
	rootNodeKeys   = []string{"rootNode", "root_node", "root"}
	contentKeys    = []string{"content", "text", "body"}
	isEndingKeys   = []string{"isEnding", "is_ending", "ending"}
	optionsKeys    = []string{"options", "choices"}
	optionTextKeys = []string{"text", "title", "label"}
	nextNodeKeys   = []string{"nextNode", "next_node", "next"}
	identityKeys   = []string{"id", "nodeId", "node_id", "nextNodeId", "next_node_id"}
)

// DecodeNestedPost accepts a nested post as a typed value, an untyped map, or
// raw JSON, and returns the typed form. Malformed shapes and identity
// references fail with a validation error naming the offending path.
func DecodeNestedPost(raw interface{}) (*NestedPost, error) {
	switch v := raw.(type) {
	case nil:
		return nil, malformed("", "payload is empty")
	case *NestedPost:
		if v == nil {
			return nil, malformed("", "payload is empty")
		}
		return v, nil
	case NestedPost:
		return &v, nil
	case map[string]interface{}:
		return decodePostMap(v)
	case json.RawMessage:
		return decodePostJSON(v)
	case []byte:
		return decodePostJSON(v)
	case string:
		return decodePostJSON([]byte(v))
	default:
		return nil, malformed("", fmt.Sprintf("unsupported payload type %T", raw))
	}
}

func decodePostJSON(data []byte) (*NestedPost, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, pkgerrors.NewValidationError("payload is not a JSON object").
			WithCode(pkgerrors.CodeMalformedPayload).
			WithCause(err)
	}
	return decodePostMap(m)
}

func decodePostMap(m map[string]interface{}) (*NestedPost, error) {
	f := fields(m)

	title, err := f.str("title", "title")
	if err != nil {
		return nil, err
	}

	rawRoot, ok := f.lookup(rootNodeKeys...)
	if !ok || rawRoot == nil {
		return nil, malformed("rootNode", "is required")
	}
	root, err := decodeNode(rawRoot, "rootNode")
	if err != nil {
		return nil, err
	}

	return &NestedPost{Title: title, RootNode: root}, nil
}

func decodeNode(raw interface{}, path string) (*NestedNode, error) {
	switch v := raw.(type) {
	case *NestedNode:
		return v, nil
	case NestedNode:
		return &v, nil
	case map[string]interface{}:
		return decodeNodeMap(v, path)
	case string, float64, int, int64, json.Number:
		return nil, malformed(path, fmt.Sprintf("references existing node %v; nodes must be declared inline", v))
	default:
		return nil, malformed(path, fmt.Sprintf("must be an object, got %T", raw))
	}
}

func decodeNodeMap(m map[string]interface{}, path string) (*NestedNode, error) {
	f := fields(m)

	if key, ref, ok := f.identity(); ok {
		return nil, malformed(path+"."+key, fmt.Sprintf("references existing node %v; nodes must not carry identities", ref))
	}

	content, err := f.str(path+".content", contentKeys...)
	if err != nil {
		return nil, err
	}
	isEnding, err := f.boolean(path+".isEnding", isEndingKeys...)
	if err != nil {
		return nil, err
	}

	node := &NestedNode{Content: content, IsEnding: isEnding}

	rawOptions, ok := f.lookup(optionsKeys...)
	if !ok || rawOptions == nil {
		return node, nil
	}
	list, ok := rawOptions.([]interface{})
	if !ok {
		return nil, malformed(path+".options", fmt.Sprintf("must be a list, got %T", rawOptions))
	}

	node.Options = make([]NestedOption, 0, len(list))
	for i, rawOpt := range list {
		optPath := fmt.Sprintf("%s.options[%d]", path, i)
		opt, err := decodeOption(rawOpt, optPath)
		if err != nil {
			return nil, err
		}
		node.Options = append(node.Options, opt)
	}

	return node, nil
}

func decodeOption(raw interface{}, path string) (NestedOption, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		if opt, ok := raw.(NestedOption); ok {
			return opt, nil
		}
		return NestedOption{}, malformed(path, fmt.Sprintf("must be an object, got %T", raw))
	}
	f := fields(m)

	if key, ref, ok := f.identity(); ok {
		return NestedOption{}, malformed(path+"."+key, fmt.Sprintf("references existing node %v; options must point at inline nodes", ref))
	}

	text, err := f.str(path+".text", optionTextKeys...)
	if err != nil {
		return NestedOption{}, err
	}

	rawNext, ok := f.lookup(nextNodeKeys...)
	if !ok || rawNext == nil {
		return NestedOption{}, malformed(path+".nextNode", "is required")
	}
	next, err := decodeNode(rawNext, path+".nextNode")
	if err != nil {
		return NestedOption{}, err
	}

	return NestedOption{Text: text, NextNode: next}, nil
}

// fields is a tolerant accessor over an untyped JSON object.
type fields map[string]interface{}

func (f fields) lookup(keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func (f fields) identity() (string, interface{}, bool) {
	for _, k := range identityKeys {
		if v, ok := f[k]; ok && v != nil && v != "" {
			return k, v, true
		}
	}
	return "", nil, false
}

func (f fields) str(path string, keys ...string) (string, error) {
	v, ok := f.lookup(keys...)
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed(path, fmt.Sprintf("must be a string, got %T", v))
	}
	return s, nil
}

func (f fields) boolean(path string, keys ...string) (bool, error) {
	v, ok := f.lookup(keys...)
	if !ok || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, malformed(path, fmt.Sprintf("must be a boolean, got %q", b))
		}
		return parsed, nil
	default:
		return false, malformed(path, fmt.Sprintf("must be a boolean, got %T", v))
	}
}

func malformed(path, reason string) error {
	msg := reason
	if path != "" {
		msg = path + " " + reason
	}
	err := pkgerrors.NewValidationError(msg).WithCode(pkgerrors.CodeMalformedPayload)
	if path != "" {
		err = err.WithDetail("field", path)
	}
	return err
}
