package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"task-agent/internal/agent"
	"task-agent/internal/sandbox"
	"task-agent/internal/tools"
)

// TranscribeHandler 转写 MP3：whisper 走转写接口，vosk 调用本地 vosk-transcriber。
type TranscribeHandler struct {
	Transcriber agent.Transcriber
	Runner      sandbox.Runner
	Timeout     time.Duration
}

func (TranscribeHandler) Name() string { return "transcribe_audio" }

func (TranscribeHandler) Description() string {
	return "Transcribe an MP3 audio file to text and save the transcript."
}

func (TranscribeHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "input_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `(?i)\.mp3$`, Description: "MP3 file to transcribe."},
		{Name: "output_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `\.txt$`, Description: "File receiving the transcript."},
		{Name: "model", Type: tools.TypeString, Default: "whisper", Enum: []string{"whisper", "vosk"},
			Description: "Transcription engine."},
	}
}

func (h TranscribeHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "input_filename", "output_filename")
	if err != nil {
		return tools.Result{}, err
	}
	if err := requireFile(paths[0]); err != nil {
		return tools.Result{}, err
	}

	var text string
	switch model := inv.Args.String("model"); model {
	case "vosk":
		out, err := runCommand(ctx, h.Runner, "", "vosk-transcriber", "-i", paths[0])
		if err != nil {
			return tools.Result{}, err
		}
		text = out.Output
	default:
		text, err = h.whisper(ctx, paths[0])
		if err != nil {
			return tools.Result{}, err
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return tools.Result{}, errors.New("transcription is empty")
	}
	if err := writeFile(paths[1], []byte(text)); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(wrote(inv, paths[1]), map[string]int{"chars": len(text)}), nil
}

func (h TranscribeHandler) whisper(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	text, err := h.Transcriber.Transcribe(ctx, filepath.Base(path), f)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return text, nil
}
