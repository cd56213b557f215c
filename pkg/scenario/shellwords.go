package scenario

import (
	"strings"
)

// token is one word of a command line; op marks unquoted control operators.
type token struct {
	text string
	op   bool
}

// tokenize splits a command line into words and the operators
// && || ; and |. Quotes group words and are removed. It does not expand
// variables, globs or substitutions.
func tokenize(line string) ([]token, error) {
	var (
		out    []token
		cur    strings.Builder
		inWord bool
		quote  rune
	)
	runes := []rune(line)
	flush := func() {
		if inWord {
			out = append(out, token{text: cur.String()})
			cur.Reset()
			inWord = false
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			if r == quote {
				quote = 0
				continue
			}
			if r == '\\' && quote == '"' && i+1 < len(runes) && strings.ContainsRune(`"\$`+"`", runes[i+1]) {
				i++
				r = runes[i]
			}
			cur.WriteRune(r)
			continue
		}

		switch {
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		case r == ';':
			flush()
			out = append(out, token{text: ";", op: true})
		case r == '&' && i+1 < len(runes) && runes[i+1] == '&':
			flush()
			out = append(out, token{text: "&&", op: true})
			i++
		case r == '|' && i+1 < len(runes) && runes[i+1] == '|':
			flush()
			out = append(out, token{text: "||", op: true})
			i++
		case r == '|':
			flush()
			out = append(out, token{text: "|", op: true})
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, errUnterminatedQuote
	}
	flush()
	return out, nil
}

// pipeline is a sequence of commands joined by |.
type pipeline struct {
	stages [][]string
	next   string // operator that follows: "", ";", "&&" or "||"
}

// parseLine groups tokens into pipelines.
func parseLine(line string) ([]pipeline, error) {
	toks, err := tokenize(line)
	if err != nil {
		return nil, err
	}
	var (
		out   []pipeline
		cur   pipeline
		stage []string
	)
	endStage := func() error {
		if len(stage) == 0 {
			return errSyntax
		}
		cur.stages = append(cur.stages, stage)
		stage = nil
		return nil
	}
	for _, t := range toks {
		if !t.op {
			stage = append(stage, t.text)
			continue
		}
		if err := endStage(); err != nil {
			return nil, err
		}
		if t.text == "|" {
			continue
		}
		cur.next = t.text
		out = append(out, cur)
		cur = pipeline{}
	}
	if len(stage) > 0 {
		if err := endStage(); err != nil {
			return nil, err
		}
	}
	if len(cur.stages) > 0 {
		out = append(out, cur)
	} else if len(out) > 0 && out[len(out)-1].next != ";" {
		return nil, errSyntax
	}
	return out, nil
}

// redirects strips redirection words from args and reports whether stdout
// and stderr were sent elsewhere or merged.
type redirects struct {
	dropStdout bool
	dropStderr bool
	merge      bool
}

func stripRedirects(args []string) ([]string, redirects) {
	var (
		out []string
		rd  redirects
	)
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "2>&1":
			rd.merge = true
		case a == ">" || a == ">>" || a == "1>" || a == "&>":
			rd.dropStdout = true
			rd.dropStderr = rd.dropStderr || a == "&>"
			i++
		case a == "2>" || a == "2>>":
			rd.dropStderr = true
			i++
		case strings.HasPrefix(a, "2>"):
			rd.dropStderr = true
		case strings.HasPrefix(a, "&>"):
			rd.dropStdout = true
			rd.dropStderr = true
		case strings.HasPrefix(a, ">") || strings.HasPrefix(a, "1>"):
			rd.dropStdout = true
		default:
			out = append(out, a)
		}
	}
	return out, rd
}
