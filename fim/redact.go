package fim

import (
	"regexp"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// safeVars are environment variables that are non-sensitive and useful as context.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_RUNTIME_DIR": true, "SHLVL": true, "LC_ALL": true, "LC_CTYPE": true,
}

// specialParams are shell special parameters that are never redacted.
var specialParams = map[string]bool{
	"?": true, "!": true, "#": true, "@": true, "*": true,
	"-": true, "$": true, "_": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
}

var shellExtensions = []string{".sh", ".bash", ".zsh", ".ksh"}

// IsShellScript reports whether fileName looks like a shell script.
func IsShellScript(fileName string) bool {
	name := strings.ToLower(fileName)
	for _, ext := range shellExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// RedactWindow masks secrets in both halves of a shell script window.
func RedactWindow(w Window) Window {
	return Window{Prefix: RedactShell(w.Prefix), Suffix: RedactShell(w.Suffix)}
}

type span struct {
	start, end int
	repl       string
}

// RedactShell replaces sensitive variable expansions with REDACTED and
// assignment values with ***, leaving the rest of the text byte-for-byte
// intact. Text that does not parse as shell falls back to pattern matching.
func RedactShell(src string) string {
	if src == "" {
		return src
	}
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	file, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		return regexRedact(src)
	}

	var spans []span
	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !safeVars[n.Param.Value] && !specialParams[n.Param.Value] {
				spans = append(spans, span{int(n.Param.Pos().Offset()), int(n.Param.End().Offset()), "REDACTED"})
			}
		case *syntax.Assign:
			if n.Name != nil && !safeVars[n.Name.Value] && n.Value != nil && len(n.Value.Parts) > 0 {
				spans = append(spans, span{int(n.Value.Pos().Offset()), int(n.Value.End().Offset()), "***"})
			}
		}
		return true
	})
	return splice(src, spans)
}

// splice applies non-overlapping replacements; a span nested in an earlier
// one (an expansion inside an assignment value) is dropped.
func splice(src string, spans []span) string {
	if len(spans) == 0 {
		return src
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var sb strings.Builder
	sb.Grow(len(src))
	pos := 0
	for _, s := range spans {
		if s.start < pos || s.end > len(src) || s.start > s.end {
			continue
		}
		sb.WriteString(src[pos:s.start])
		sb.WriteString(s.repl)
		pos = s.end
	}
	sb.WriteString(src[pos:])
	return sb.String()
}

var (
	reBraceVar  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	reSimpleVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	reAssign    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
)

// regexRedact is the fallback for text that fails to parse, such as a
// prefix that stops inside an open quote.
func regexRedact(src string) string {
	src = reBraceVar.ReplaceAllStringFunc(src, func(m string) string {
		if name := reBraceVar.FindStringSubmatch(m)[1]; safeVars[name] || specialParams[name] {
			return m
		}
		return "${REDACTED}"
	})

	src = reSimpleVar.ReplaceAllStringFunc(src, func(m string) string {
		name := reSimpleVar.FindStringSubmatch(m)[1]
		if name == "REDACTED" || safeVars[name] || specialParams[name] {
			return m
		}
		return "$REDACTED"
	})

	return reAssign.ReplaceAllStringFunc(src, func(m string) string {
		name := reAssign.FindStringSubmatch(m)[1]
		if safeVars[name] {
			return m
		}
		return name + "=***"
	})
}
