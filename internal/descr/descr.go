// Package descr is the reference build-description parser: it reads a YAML
// file and produces the []sync.Rule values the core's Syncer consumes. It is
// an external collaborator, not a core concept (spec §1 Non-goals: "does not
// define the on-disk format of user-authored descriptions") — store, graph,
// sync and executor never import this package, only the CLI does.
package descr

import (
	"bytes"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/model"
	"github.com/brilliant-build/bbuild/internal/sync"
)

// taskDoc is one YAML-authored rule: one or more commands run in sequence
// within workdir, and the inputs/outputs it declares.
type taskDoc struct {
	Commands [][]string `yaml:"commands" validate:"min=1,dive,min=1,dive,required"`
	Workdir  string     `yaml:"workdir" validate:"required"`
	Display  string     `yaml:"display"`
	Inputs   []string   `yaml:"inputs"`
	Outputs  []string   `yaml:"outputs"`
}

// document is the top-level shape of a BUILD file.
type document struct {
	Tasks []taskDoc `yaml:"tasks" validate:"dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and parses the description file at path, returning its raw
// bytes (for fingerprinting by the Syncer) alongside the parsed rules.
func Load(path string) (raw []byte, rules []sync.Rule, err error) {
	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, nil, berrors.WrapBuildDescription(readErr, "read description %q", path)
	}
	rules, err = Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, rules, nil
}

// Parse decodes raw YAML bytes into validated rules. A task with an empty
// commands list or working directory is rejected here, at the parser/CLI
// boundary (spec §1 Non-goals, §8 "task with empty commands list is
// rejected at rule ingestion" — the core itself never validates this).
func Parse(raw []byte) ([]sync.Rule, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, berrors.WrapBuildDescription(err, "parse description yaml")
	}

	if err := validate.Struct(doc); err != nil {
		return nil, berrors.WrapBuildDescription(err, "validate description")
	}

	rules := make([]sync.Rule, 0, len(doc.Tasks))
	for _, td := range doc.Tasks {
		rules = append(rules, sync.Rule{
			Task: model.TaskKey{
				Commands:         td.Commands,
				WorkingDirectory: td.Workdir,
			},
			Display: td.Display,
			Inputs:  td.Inputs,
			Outputs: td.Outputs,
		})
	}
	return rules, nil
}
