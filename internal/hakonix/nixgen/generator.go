package nixgen

import (
	"path/filepath"
	"strings"
)

// Generate renders the Nix expression for spec. flakePath is the flake root
// holding nix/mkContainer.nix (e.g. /var/lib/hakonix).
//
// The returned expression is written to a temporary .nix file and passed to
// `extra-container create --start <file>`. Generation is pure: no I/O, no
// config access.
//
//	let
//	  mkContainer = import /var/lib/hakonix/nix/mkContainer.nix;
//	  spec = {
//	    name = "dev-abc";
//	    owner = "chat_123";
//	    modules = [ "git" "fish" ];
//	  };
//	in
//	  mkContainer spec
func Generate(spec ContainerSpec, flakePath string) string {
	mkContainerPath := filepath.Join(flakePath, "nix", "mkContainer.nix")

	var b strings.Builder
	b.WriteString("let\n")
	b.WriteString("  mkContainer = import " + mkContainerPath + ";\n")
	b.WriteString("  spec = {\n")
	b.WriteString("    name = " + nixString(spec.Name) + ";\n")
	b.WriteString("    owner = " + nixString(spec.Owner) + ";\n")
	b.WriteString("    modules = " + nixList(spec.Modules) + ";\n")
	if spec.WorkspacePath != "" {
		b.WriteString("    workspace = " + nixString(spec.WorkspacePath) + ";\n")
	}
	if spec.EnrollKey != "" {
		b.WriteString("    enrollAuthKey = " + nixString(spec.EnrollKey) + ";\n")
	}
	b.WriteString("  };\n")
	b.WriteString("in\n")
	b.WriteString("  mkContainer spec\n")
	return b.String()
}

// nixString wraps a Go string as a Nix double-quoted string literal.
// Backslash must be escaped first to avoid double-escaping; $ is escaped to
// prevent Nix string interpolation.
func nixString(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "$", `\$`)
	return `"` + escaped + `"`
}

// nixList formats a slice of strings as a Nix list literal:
// ["git", "fish"] → `[ "git" "fish" ]`.
func nixList(items []string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = nixString(item)
	}
	return "[ " + strings.Join(parts, " ") + " ]"
}
