package security

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ErrYAMLTooLarge is returned when YAML input exceeds a size limit.
var ErrYAMLTooLarge = errors.New("yaml input too large")

// YAMLLimits bounds the resources a YAML document may use
type YAMLLimits struct {
	MaxSize   int64 // bytes read from the input
	MaxDepth  int   // nesting of mappings and sequences
	MaxNodes  int   // total nodes, aliases expanded
	MaxScalar int   // bytes in a single scalar or key
}

// DefaultYAMLLimits returns limits sized for configuration files
func DefaultYAMLLimits() YAMLLimits {
	return YAMLLimits{
		MaxSize:   1 << 20, // 1MB
		MaxDepth:  16,
		MaxNodes:  4096,
		MaxScalar: 64 << 10,
	}
}

// DecodeYAML reads at most limits.MaxSize bytes from r, checks the node
// tree against limits and decodes it into v. Empty input leaves v as is.
func DecodeYAML(r io.Reader, v any, limits YAMLLimits) error {
	data, err := io.ReadAll(io.LimitReader(r, limits.MaxSize+1))
	if err != nil {
		return fmt.Errorf("failed to read YAML: %w", err)
	}
	if int64(len(data)) > limits.MaxSize {
		return fmt.Errorf("%w (max %d bytes)", ErrYAMLTooLarge, limits.MaxSize)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("YAML parse error: %w", err)
	}

	c := &yamlChecker{limits: limits}
	if err := c.check(&root, 0); err != nil {
		return err
	}
	return root.Decode(v)
}

// yamlChecker walks a node tree counting nodes
type yamlChecker struct {
	limits YAMLLimits
	nodes  int
}

func (c *yamlChecker) check(node *yaml.Node, depth int) error {
	if depth > c.limits.MaxDepth {
		return fmt.Errorf("YAML nesting depth %d exceeds maximum %d", depth, c.limits.MaxDepth)
	}
	c.nodes++
	if c.nodes > c.limits.MaxNodes {
		return fmt.Errorf("YAML node count exceeds maximum %d", c.limits.MaxNodes)
	}

	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := c.check(child, depth); err != nil {
				return err
			}
		}
	case yaml.MappingNode, yaml.SequenceNode:
		for _, child := range node.Content {
			if err := c.check(child, depth+1); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if len(node.Value) > c.limits.MaxScalar {
			return fmt.Errorf("%w: scalar of %d bytes at line %d", ErrYAMLTooLarge, len(node.Value), node.Line)
		}
	case yaml.AliasNode:
		// Aliases are expanded so billion-laughs documents hit MaxNodes.
		if node.Alias != nil {
			return c.check(node.Alias, depth+1)
		}
	}
	return nil
}
