package pipeclient

import "strings"

// Characters that never need quoting when they make up the whole argument.
const shellSafeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789" +
	"_-+=%@:,./"

// shellJoin joins arguments into a single command line, quoting each one
// so that topics or option values containing whitespace or shell
// metacharacters cannot alter the command's structure. The remote side
// hands the line to a shell, so this is the injection boundary.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

// shellQuote quotes a single argument for POSIX sh. Safe arguments are
// left bare; everything else is wrapped in single quotes, with embedded
// single quotes escaped as '"'"'.
func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}

	safe := true
	for _, r := range arg {
		if !strings.ContainsRune(shellSafeChars, r) {
			safe = false
			break
		}
	}
	if safe {
		return arg
	}

	return "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
}
