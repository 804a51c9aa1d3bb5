package command

import (
	"runtime"
	"testing"
	"time"
)

func TestValidateToolName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"bare name", "claude", false},
		{"with hyphen", "code-gen", false},
		{"absolute path", "/usr/local/bin/claude", false},
		{"windows path", `C:\tools\claude.exe`, false},
		{"empty name", "", true},
		{"command injection semicolon", "claude; rm -rf /", true},
		{"command injection pipe", "claude | cat", true},
		{"command injection dollar", "$(whoami)", true},
		{"command injection backtick", "`whoami`", true},
		{"redirect", "claude > out", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateToolName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateToolName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWorkingDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"absolute", "/home/dev/repo", false},
		{"trailing slash", "/home/dev/repo/", false},
		{"dotted name", "/home/dev/my..repo", false},
		{"relative", "repo", true},
		{"traversal", "/home/dev/../root", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateWorkingDir(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateWorkingDir(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateToolArg(t *testing.T) {
	if err := validateToolArg("--print"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateToolArg("bad\x00arg"); err == nil {
		t.Error("expected error for NUL byte")
	}
}

func TestSafeBuilder_Build(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	sb := NewSafeBuilder()

	t.Run("valid spec", func(t *testing.T) {
		cmd, err := sb.Build(Spec{
			Tool: "echo",
			Args: []string{"hello"},
			Dir:  "/tmp",
			Env:  []string{"PATH=/usr/bin:/bin"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cmd.Args) != 2 || cmd.Args[1] != "hello" {
			t.Errorf("expected args [echo hello], got %v", cmd.Args)
		}
		if cmd.Dir != "/tmp" {
			t.Errorf("expected dir /tmp, got %q", cmd.Dir)
		}
		if len(cmd.Env) != 1 || cmd.Env[0] != "PATH=/usr/bin:/bin" {
			t.Errorf("expected only the given env, got %v", cmd.Env)
		}
	})

	t.Run("empty env is not inherited", func(t *testing.T) {
		cmd, err := sb.Build(Spec{Tool: "echo", Dir: "/tmp"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cmd.Env == nil {
			t.Error("nil Env would inherit the server environment")
		}
	})

	t.Run("empty tool name", func(t *testing.T) {
		if _, err := sb.Build(Spec{Dir: "/tmp"}); err == nil {
			t.Error("expected error for empty tool name")
		}
	})

	t.Run("relative dir", func(t *testing.T) {
		if _, err := sb.Build(Spec{Tool: "echo", Dir: "tmp"}); err == nil {
			t.Error("expected error for relative dir")
		}
	})
}

func TestSafeBuilder_Validate(t *testing.T) {
	sb := NewSafeBuilder()

	t.Run("valid tool name", func(t *testing.T) {
		if err := sb.Validate("toolName", "claude"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown validator type", func(t *testing.T) {
		if err := sb.Validate("unknownType", "value"); err == nil {
			t.Error("expected error for unknown validator type")
		}
	})
}

func TestSubstituteExecutor(t *testing.T) {
	sb := NewSafeBuilderWithExecutor(&SubstituteExecutor{Program: "sh", Args: []string{"-c", "cat"}})
	cmd, err := sb.Build(Spec{Tool: "claude", Args: []string{"--print"}, Dir: "/tmp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"sh", "-c", "cat", "--print"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("expected args %v, got %v", want, cmd.Args)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, cmd.Args[i], want[i])
		}
	}
}

func TestClampTimeout(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, DefaultTimeout},
		{-time.Second, DefaultTimeout},
		{time.Second, time.Second},
		{20 * time.Minute, MaxTimeout},
	}

	for _, tt := range tests {
		if got := ClampTimeout(tt.in); got != tt.want {
			t.Errorf("ClampTimeout(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
