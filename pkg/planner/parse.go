package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
)

var (
	fenceOpen   = regexp.MustCompile("^```[a-zA-Z]*\n")
	fenceClose  = regexp.MustCompile("\n```$")
	objectBlock = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON strips code fences and returns the first {...} block.
func extractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	if json.Valid([]byte(s)) {
		return s, nil
	}
	block := objectBlock.FindString(s)
	if block == "" {
		return "", cerr.New("reply does not contain a JSON object")
	}
	return block, nil
}

type planReply struct {
	Explanation string            `json:"explanation"`
	Commands    []json.RawMessage `json:"commands"`
	Expect      string            `json:"expect"`
}

type commandObject struct {
	Command   string `json:"command"`
	Rationale string `json:"rationale"`
	Expect    string `json:"expect"`
}

// parsePlan turns a plan reply into actions. Commands may be plain strings
// or objects; a top-level "expect" applies to the last command.
func parsePlan(content string) ([]model.PlannedAction, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var reply planReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, cerr.Wrap(err, "invalid plan JSON")
	}
	if reply.Commands == nil {
		return nil, cerr.New("plan reply has no \"commands\" array")
	}

	actions := make([]model.PlannedAction, 0, len(reply.Commands))
	for _, item := range reply.Commands {
		var cmd string
		if err := json.Unmarshal(item, &cmd); err == nil {
			if strings.TrimSpace(cmd) != "" {
				actions = append(actions, model.PlannedAction{Command: cmd, Rationale: reply.Explanation})
			}
			continue
		}
		var obj commandObject
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, cerr.Wrap(err, "command entry is neither a string nor an object")
		}
		if strings.TrimSpace(obj.Command) == "" {
			continue
		}
		rationale := obj.Rationale
		if rationale == "" {
			rationale = reply.Explanation
		}
		actions = append(actions, model.PlannedAction{Command: obj.Command, Rationale: rationale, ExpectSignal: obj.Expect})
	}
	if reply.Expect != "" && len(actions) > 0 && actions[len(actions)-1].ExpectSignal == "" {
		actions[len(actions)-1].ExpectSignal = reply.Expect
	}
	return actions, nil
}

type verifyReply struct {
	Done    bool   `json:"done"`
	GiveUp  bool   `json:"give_up"`
	Summary string `json:"summary"`
	Reason  string `json:"reason"`
}

func parseVerdict(content string) (model.Verdict, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return model.Verdict{}, err
	}
	var reply verifyReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return model.Verdict{}, cerr.Wrap(err, "invalid verdict JSON")
	}
	v := model.Verdict{Decision: model.DecisionContinue, Summary: reply.Summary, Reason: reply.Reason}
	switch {
	case reply.Done:
		v.Decision = model.DecisionComplete
	case reply.GiveUp:
		v.Decision = model.DecisionFailed
	}
	return v, nil
}
