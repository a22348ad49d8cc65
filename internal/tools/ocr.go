package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goaide/internal/config"
	"github.com/nextlevelbuilder/goaide/internal/workspace"
)

const ocrTimeout = 30 * time.Second

// OCRImageTool extracts text from an image file in the workspace by
// shelling out to the configured OCR engine.
type OCRImageTool struct {
	router *workspace.Router
	engine string
}

// NewOCRImageTool builds the OCR tool. Returns nil when the engine is
// set to "off".
func NewOCRImageTool(router *workspace.Router, cfg config.OCRToolConfig) *OCRImageTool {
	engine := cfg.Engine
	if engine == "" {
		engine = "tesseract"
	}
	if engine == "off" {
		return nil
	}
	return &OCRImageTool{router: router, engine: engine}
}

func (t *OCRImageTool) Name() string { return "ocr_image" }

func (t *OCRImageTool) Description() string {
	return "Extract text from an image file in the workspace using OCR"
}

func (t *OCRImageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Image file path relative to the workspace files root",
			},
			"language": map[string]interface{}{
				"type":        "string",
				"description": "Optional OCR language code (e.g. 'eng', 'deu', 'vie')",
			},
		},
		"required": []string{"path"},
	}
}

func (t *OCRImageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}

	sb, err := t.router.SandboxFor(ctx)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Error: %v", err))
	}
	resolved, err := sb.ResolveRead(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Security error: %v", err))
	}

	if _, err := exec.LookPath(t.engine); err != nil {
		return ErrorResult(fmt.Sprintf("Error: OCR engine '%s' is not installed", t.engine))
	}

	ctx, cancel := context.WithTimeout(ctx, ocrTimeout)
	defer cancel()

	cmdArgs := []string{resolved, "stdout"}
	if lang, _ := args["language"].(string); lang != "" {
		cmdArgs = append(cmdArgs, "-l", lang)
	}
	cmd := exec.CommandContext(ctx, t.engine, cmdArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ErrorResult(fmt.Sprintf("OCR timed out after %s", ocrTimeout))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return ErrorResult(fmt.Sprintf("OCR failed: %s", msg))
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return NewResult("No text found in image.")
	}
	return NewResult(text)
}
