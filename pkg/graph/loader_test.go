package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleYAML() []byte {
	return []byte(`
name: order-flow
entry_node: receive
context:
  total: 0
nodes:
  - name: receive
    type: noop
    next:
      - node: highValue
        condition: "total >= 100"
      - node: lowValue
        condition: "total < 100"
  - name: highValue
    type: noop
  - name: lowValue
    type: noop
    condition: "total >= 0"
    retry:
      max_attempts: 3
      delay_ms: 10
    when:
      events: ["paid"]
      strategy: all
      timeout_ms: 500
`)
}

func registryWithNoop() *NodeBodyRegistry {
	r := NewNodeBodyRegistry()
	r.Register("noop", func(ctx *View, call *CallBag) error { return nil })
	return r
}

func TestParseYAML_BuildsGraphDefinition(t *testing.T) {
	def, err := ParseYAML(sampleYAML(), registryWithNoop())
	require.NoError(t, err)

	assert.Equal(t, "order-flow", def.Name)
	assert.Equal(t, "receive", def.EntryNode)
	require.Len(t, def.Nodes, 3)

	var receive, lowValue NodeConfig
	for _, n := range def.Nodes {
		switch n.Name {
		case "receive":
			receive = n
		case "lowValue":
			lowValue = n
		}
	}

	entries, ok := receive.Next.StaticEntries()
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "highValue", entries[0].Node)
	assert.Equal(t, "total >= 100", entries[0].Label)
	assert.NotNil(t, entries[0].Condition)

	require.NotNil(t, lowValue.Condition)
	assert.Equal(t, "total >= 0", lowValue.ConditionLabel)
	require.NotNil(t, lowValue.Retry)
	assert.Equal(t, 3, lowValue.Retry.MaxAttempts)
	require.NotNil(t, lowValue.When)
	assert.Equal(t, WaitAll, lowValue.When.Strategy)
}

func TestParseYAML_RejectsEmptyDocument(t *testing.T) {
	_, err := ParseYAML([]byte("   "), nil)
	require.Error(t, err)
	var lerr *LoadError
	assert.ErrorAs(t, err, &lerr)
}

func TestParseYAML_RejectsMissingName(t *testing.T) {
	_, err := ParseYAML([]byte("nodes:\n  - name: a\n    type: noop\n"), registryWithNoop())
	require.Error(t, err)
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "name", lerr.Field)
}

func TestParseYAML_RejectsDuplicateNodeName(t *testing.T) {
	doc := []byte(`
name: dup
nodes:
  - name: a
    type: noop
  - name: a
    type: noop
`)
	_, err := ParseYAML(doc, registryWithNoop())
	require.Error(t, err)
	var lerr *LoadError
	assert.ErrorAs(t, err, &lerr)
}

func TestParseYAML_RejectsUnregisteredNodeType(t *testing.T) {
	doc := []byte(`
name: missing-type
nodes:
  - name: a
    type: doesNotExist
`)
	_, err := ParseYAML(doc, registryWithNoop())
	require.Error(t, err)
}

func TestParseYAML_RejectsUnknownNextReference(t *testing.T) {
	doc := []byte(`
name: bad-next
nodes:
  - name: a
    type: noop
    next:
      - node: ghost
`)
	_, err := ParseYAML(doc, registryWithNoop())
	require.Error(t, err)
}

func TestParseYAML_RejectsUnknownEntryNode(t *testing.T) {
	doc := []byte(`
name: bad-entry
entry_node: ghost
nodes:
  - name: a
    type: noop
`)
	_, err := ParseYAML(doc, registryWithNoop())
	require.Error(t, err)
}

func TestParseYAML_RejectsInvalidConditionExpression(t *testing.T) {
	doc := []byte(`
name: bad-condition
nodes:
  - name: a
    type: noop
    condition: "not a valid expr {{{"
`)
	_, err := ParseYAML(doc, registryWithNoop())
	require.Error(t, err)
}

// A parsed graph is executable: conditions compiled by expr-lang/expr
// evaluate against the live View the same way native Go closures do.
func TestParseYAML_ParsedGraphExecutes(t *testing.T) {
	def, err := ParseYAML(sampleYAML(), registryWithNoop())
	require.NoError(t, err)
	def.Context = map[string]any{"total": 150}

	f, err := New(def)
	require.NoError(t, err)

	_, err = f.Execute("receive", nil, nil)
	require.NoError(t, err)
}
