// Package scenario replays canonical Docker networking faults through the
// agent loop with a scripted planner against a simulated host.
package scenario

import (
	_ "embed"
	"regexp"

	cerr "github.com/cockroachdb/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var builtin []byte

// Case is one fault scenario. Plan holds one batch of actions per planning
// round.
type Case struct {
	Name      string                  `yaml:"name"`
	Problem   string                  `yaml:"problem"`
	Setup     []string                `yaml:"setup"`
	Plan      [][]model.PlannedAction `yaml:"plan"`
	Signature string                  `yaml:"signature"`
	Teardown  []string                `yaml:"teardown"`

	signature *regexp.Regexp
}

// Matches reports whether cmd carries the expected remediation.
func (c Case) Matches(cmd string) bool {
	re := c.signature
	if re == nil {
		var err error
		if re, err = regexp.Compile(c.Signature); err != nil {
			return false
		}
	}
	return re.MatchString(cmd)
}

// Builtin returns the shipped scenario set.
func Builtin() ([]Case, error) {
	return Parse(builtin)
}

// Parse decodes and validates a YAML list of cases.
func Parse(data []byte) ([]Case, error) {
	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, cerr.Wrap(err, "failed to parse scenarios")
	}
	seen := make(map[string]bool)
	for i := range cases {
		c := &cases[i]
		switch {
		case c.Name == "":
			return nil, cerr.Newf("scenario %d has no name", i+1)
		case seen[c.Name]:
			return nil, cerr.Newf("duplicate scenario %q", c.Name)
		case len(c.Plan) == 0:
			return nil, cerr.Newf("scenario %q has an empty plan", c.Name)
		case c.Signature == "":
			return nil, cerr.Newf("scenario %q has no signature", c.Name)
		}
		seen[c.Name] = true
		re, err := regexp.Compile(c.Signature)
		if err != nil {
			return nil, cerr.Wrapf(err, "scenario %q has an invalid signature", c.Name)
		}
		c.signature = re
	}
	return cases, nil
}
