package sandbox

import (
	"os"
	"strings"
)

// buildArgv constructs the execve argv vector: argv[0] is always the
// configured binary path, not resolved against PATH (spec §4.F step 3).
func buildArgv(cfg *Config) []string {
	argv := make([]string, 0, len(cfg.Args)+1)
	argv = append(argv, cfg.Bin)
	argv = append(argv, cfg.Args...)
	return argv
}

// buildEnvp constructs the execve envp vector (spec §4.F step 3): unless
// ForbidInheritedEnv is set, the parent's own environ is copied first;
// configured entries are then appended, each either a literal "NAME=value"
// or a bare "NAME" looked up in the parent environment and expanded
// (silently dropped if absent there).
func buildEnvp(cfg *Config) []string {
	var envp []string
	if !cfg.ForbidInheritedEnv {
		envp = append(envp, os.Environ()...)
	}
	for _, e := range cfg.Env {
		if strings.Contains(e, "=") {
			envp = append(envp, e)
			continue
		}
		if v, ok := os.LookupEnv(e); ok {
			envp = append(envp, e+"="+v)
		}
	}
	return envp
}
