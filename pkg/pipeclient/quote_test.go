package pipeclient

import "testing"

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want string
	}{
		{
			name: "empty string",
			arg:  "",
			want: "''",
		},
		{
			name: "plain word stays bare",
			arg:  "foobar3",
			want: "foobar3",
		},
		{
			name: "safe punctuation stays bare",
			arg:  "-b=false",
			want: "-b=false",
		},
		{
			name: "whitespace is quoted",
			arg:  "a b",
			want: "'a b'",
		},
		{
			name: "shell metacharacters are quoted",
			arg:  "t;rm -rf /",
			want: "'t;rm -rf /'",
		},
		{
			name: "command substitution is quoted",
			arg:  "$(whoami)",
			want: "'$(whoami)'",
		},
		{
			name: "backticks are quoted",
			arg:  "`id`",
			want: "'`id`'",
		},
		{
			name: "embedded single quote",
			arg:  "it's",
			want: `'it'"'"'s'`,
		},
		{
			name: "newline is quoted",
			arg:  "a\nb",
			want: "'a\nb'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shellQuote(tt.arg); got != tt.want {
				t.Errorf("shellQuote(%q) = %q, want %q", tt.arg, got, tt.want)
			}
		})
	}
}

func TestShellJoin(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "bare command",
			args: []string{"pipe"},
			want: "pipe",
		},
		{
			name: "topic with whitespace",
			args: []string{"pipe", "a b", "-p"},
			want: "pipe 'a b' -p",
		},
		{
			name: "pub with flags",
			args: []string{"pub", "t", "-b=false", "-t=5s"},
			want: "pub t -b=false -t=5s",
		},
		{
			name: "empty required topic survives the join",
			args: []string{"sub", "", "-k"},
			want: "sub '' -k",
		},
		{
			name: "injection attempt stays one argument",
			args: []string{"sub", "x; cat /etc/passwd"},
			want: "sub 'x; cat /etc/passwd'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shellJoin(tt.args); got != tt.want {
				t.Errorf("shellJoin(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
