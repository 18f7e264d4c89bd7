package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/term"

	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
)

// CredentialSource supplies an API key. An empty key with a nil error means
// the source had nothing to offer and the next one is consulted.
type CredentialSource interface {
	Name() string
	Lookup() (string, error)
}

// ResolveCredential returns the first non-empty key and the name of the
// source that supplied it.
func ResolveCredential(sources ...CredentialSource) (string, string, error) {
	for _, src := range sources {
		key, err := src.Lookup()
		if err != nil {
			return "", "", fmt.Errorf("credential source %s: %w", src.Name(), err)
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, src.Name(), nil
		}
	}
	return "", "", errMissingCredential()
}

// IsMissingCredential reports whether err means no source supplied a key.
func IsMissingCredential(err error) bool {
	return apperrors.IsType(err, apperrors.ErrorTypeMissingCredential)
}

func errMissingCredential() error {
	return apperrors.NewMissingCredentialError("a Gemini API key is required")
}

// EnvSource reads the key from an environment variable.
type EnvSource struct {
	Key string
}

func (s EnvSource) Name() string { return "env" }

func (s EnvSource) Lookup() (string, error) {
	return os.Getenv(s.Key), nil
}

// SecretsFileSource reads the key from a TOML secrets store such as
// .streamlit/secrets.toml. A missing file is not an error.
type SecretsFileSource struct {
	Path string
	Key  string
}

func (s SecretsFileSource) Name() string { return "secrets" }

func (s SecretsFileSource) Lookup() (string, error) {
	if s.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secrets file: %w", err)
	}

	var secrets map[string]any
	if err := toml.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("failed to parse secrets file: %w", err)
	}
	value, _ := secrets[s.Key].(string)
	return value, nil
}

// PromptSource asks for the key interactively. Input is hidden when In is a
// terminal; otherwise a single line is read. Nothing is asked when
// RequireTTY is set and In is not a terminal.
type PromptSource struct {
	In         *os.File
	Out        io.Writer
	RequireTTY bool
}

func (s PromptSource) Name() string { return "prompt" }

func (s PromptSource) Lookup() (string, error) {
	if s.In == nil {
		return "", nil
	}
	fd := s.In.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	if s.RequireTTY && !tty {
		return "", nil
	}

	if s.Out != nil {
		fmt.Fprint(s.Out, "Gemini API key: ")
	}

	if tty {
		raw, err := term.ReadPassword(int(fd))
		if s.Out != nil {
			fmt.Fprintln(s.Out)
		}
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(s.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return line, nil
}

// StaticSource returns a fixed key, e.g. one typed into a web form.
type StaticSource struct {
	Label string
	Value string
}

func (s StaticSource) Name() string { return s.Label }

func (s StaticSource) Lookup() (string, error) { return s.Value, nil }
