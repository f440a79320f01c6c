package descr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidDescription(t *testing.T) {
	raw := []byte(`
tasks:
  - commands: [["gcc", "-c", "foo.c", "-o", "foo.o"]]
    workdir: /p
    display: compile foo
    inputs: ["/p/foo.c"]
    outputs: ["/p/foo.o"]
`)
	rules, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "compile foo", rules[0].Display)
	assert.Equal(t, []string{"/p/foo.c"}, rules[0].Inputs)
	assert.Equal(t, []string{"/p/foo.o"}, rules[0].Outputs)
	assert.Equal(t, "/p", rules[0].Task.WorkingDirectory)
	assert.Equal(t, [][]string{{"gcc", "-c", "foo.c", "-o", "foo.o"}}, rules[0].Task.Commands)
}

func TestParse_RejectsEmptyCommands(t *testing.T) {
	raw := []byte(`
tasks:
  - commands: []
    workdir: /p
`)
	_, err := Parse(raw)
	assert.Error(t, err)
}

func TestParse_RejectsMissingWorkdir(t *testing.T) {
	raw := []byte(`
tasks:
  - commands: [["true"]]
`)
	_, err := Parse(raw)
	assert.Error(t, err)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	raw := []byte(`
tasks:
  - commands: [["true"]]
    workdir: /p
    bogus: 1
`)
	_, err := Parse(raw)
	assert.Error(t, err)
}

func TestParse_EmptyDocumentYieldsNoRules(t *testing.T) {
	rules, err := Parse([]byte(`tasks: []`))
	require.NoError(t, err)
	assert.Empty(t, rules)
}
