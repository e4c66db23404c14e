package config

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const secretReferencePrefix = "op://"

var (
	// CommandContext builds the 1Password CLI invocation. Overridden in tests.
	CommandContext = exec.CommandContext
	// LookPath locates the 1Password CLI. Overridden in tests.
	LookPath = exec.LookPath
)

// IsSecretReference reports whether value is a 1Password secret reference
func IsSecretReference(value string) bool {
	return strings.HasPrefix(value, secretReferencePrefix)
}

// ResolveSecretReference resolves a 1Password secret reference of the form
// op://vault/item/field through the op CLI. Other values are returned
// unchanged. The second result reports whether value was a reference.
func ResolveSecretReference(ctx context.Context, value string) (string, bool, error) {
	if !IsSecretReference(value) {
		return value, false, nil
	}

	segments := strings.Split(strings.TrimPrefix(value, secretReferencePrefix), "/")
	if len(segments) < 3 {
		return "", true, fmt.Errorf("malformed secret reference %q: want op://vault/item/field", value)
	}
	for _, segment := range segments {
		if segment == "" {
			return "", true, fmt.Errorf("malformed secret reference %q: empty segment", value)
		}
	}

	if _, err := LookPath("op"); err != nil {
		return "", true, fmt.Errorf("1Password CLI (op) not found in PATH: %w", err)
	}

	output, err := CommandContext(ctx, "op", "read", "--no-newline", value).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", true, fmt.Errorf("failed to read secret from 1Password: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", true, fmt.Errorf("failed to read secret from 1Password: %w", err)
	}

	secret := strings.TrimSpace(string(output))
	if secret == "" {
		return "", true, fmt.Errorf("secret reference %q resolved to an empty value", value)
	}
	return secret, true, nil
}
