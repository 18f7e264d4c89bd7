package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mojiokoshi/transcriber/internal/config"
	apperrors "github.com/mojiokoshi/transcriber/internal/errors"
	"github.com/mojiokoshi/transcriber/internal/logger"
	"github.com/mojiokoshi/transcriber/internal/services/gemini"
	"github.com/mojiokoshi/transcriber/internal/services/transcription"
	"github.com/mojiokoshi/transcriber/internal/worker"
)

// deps are the pieces of the command that tests replace.
type deps struct {
	loadConfig     func() (*config.Config, error)
	newTranscriber func(cfg *config.Config, apiKey string) worker.Transcriber
	stdin          *os.File
}

func defaultDeps() deps {
	return deps{
		loadConfig: config.Load,
		newTranscriber: func(cfg *config.Config, apiKey string) worker.Transcriber {
			return gemini.NewOrchestrator(cfg, apiKey)
		},
		stdin: os.Stdin,
	}
}

type transcribeOptions struct {
	model       string
	meetingType string
	fields      []string
	out         string
	verbose     bool
}

func newRootCommand(d deps) *cobra.Command {
	var opts transcribeOptions

	rootCmd := &cobra.Command{
		Use:           "transcribe <audio-file>",
		Short:         "Transcribe an mp3, m4a or wav recording with Gemini",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, d, opts, args[0])
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "Gemini model (default from config)")
	flags.StringVarP(&opts.meetingType, "type", "t", string(transcription.MeetingPlain), "Header layout: support, general, conference or plain")
	flags.StringArrayVarP(&opts.fields, "field", "f", nil, "Header field as key=value (repeatable)")
	flags.StringVarP(&opts.out, "out", "o", "", "Output path (default <audio>.txt next to the input)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log workflow details to stderr")

	rootCmd.AddCommand(newModelsCommand(d))
	rootCmd.AddCommand(newLayoutsCommand())

	return rootCmd
}

func runTranscribe(cmd *cobra.Command, d deps, opts transcribeOptions, audioPath string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stderr := cmd.ErrOrStderr()
	if opts.verbose {
		slog.SetDefault(logger.NewWithWriter("development", stderr))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	cfg, err := d.loadConfig()
	if err != nil {
		return err
	}

	req, err := buildRequest(cfg, opts, audioPath)
	if err != nil {
		return err
	}

	apiKey, err := resolveAPIKey(cfg, d.stdin, stderr)
	if err != nil {
		return err
	}

	runner := worker.NewRunner(d.newTranscriber(cfg, apiKey))
	updates, err := runner.Start(ctx, req)
	if err != nil {
		return err
	}

	var final worker.Update
	for u := range updates {
		if u.Done {
			final = u
			continue
		}
		fmt.Fprintf(stderr, "[%s] %s\n", u.Stage, u.Message)
	}
	if final.Err != nil {
		return final.Err
	}

	outPath := opts.out
	if outPath == "" {
		outPath = transcription.DesktopOutputPath(audioPath)
	}
	if err := os.WriteFile(outPath, []byte(final.Result.Composed), 0o644); err != nil {
		return apperrors.NewLocalIOError("failed to write transcript", "OUTPUT_WRITE_FAILED", err)
	}

	fmt.Fprintln(stderr, final.Message)
	fmt.Fprintln(cmd.OutOrStdout(), outPath)
	return nil
}

// buildRequest reads the audio file and assembles the header from --type and
// --field values.
func buildRequest(cfg *config.Config, opts transcribeOptions, audioPath string) (transcription.Request, error) {
	layout, ok := transcription.LookupLayout(transcription.MeetingType(opts.meetingType))
	if !ok {
		return transcription.Request{}, apperrors.NewValidationError("unknown meeting type "+opts.meetingType, "UNKNOWN_MEETING_TYPE",
			"Run 'transcribe layouts' to list the available types.")
	}

	values, err := parseFields(layout, opts.fields)
	if err != nil {
		return transcription.Request{}, err
	}

	format, err := transcription.ParseAudioFormat(audioPath)
	if err != nil {
		return transcription.Request{}, err
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return transcription.Request{}, apperrors.NewLocalIOError("failed to read audio file", "AUDIO_READ_FAILED", err)
	}

	model := opts.model
	if model == "" {
		model = cfg.Transcription.DefaultModel
	}

	return transcription.Request{
		Audio:    audio,
		Format:   format,
		FileName: audioPath,
		Model:    model,
		Header:   layout.Header(values),
	}, nil
}

func parseFields(layout transcription.FormLayout, raw []string) (map[string]string, error) {
	known := make(map[string]bool)
	for _, f := range layout.Fields() {
		known[f.Key] = true
	}

	values := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, apperrors.NewValidationError("invalid --field "+kv, "INVALID_FIELD", "Use --field key=value.")
		}
		if !known[key] {
			return nil, apperrors.NewValidationError("unknown field "+key+" for "+string(layout.Type), "UNKNOWN_FIELD",
				"Run 'transcribe layouts' to list the fields of each type.")
		}
		values[key] = value
	}
	return values, nil
}

// resolveAPIKey uses the key found at startup, falling back to a hidden
// terminal prompt.
func resolveAPIKey(cfg *config.Config, stdin *os.File, prompt io.Writer) (string, error) {
	if cfg.GeminiAPIKey != "" {
		return cfg.GeminiAPIKey, nil
	}
	key, _, err := config.ResolveCredential(config.PromptSource{In: stdin, Out: prompt, RequireTTY: true})
	return key, err
}
