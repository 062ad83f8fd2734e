package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"task-agent/internal/agent"
	"task-agent/internal/tools"

	"github.com/gabriel-vasile/mimetype"
)

const cardNumberPrompt = `Extract the number from the image that consists of 8 or more digits, where each group of 4 digits is separated by spaces.
Return ONLY the number without spaces or any other characters.
Ensure that no digit is missing or altered. Double-check for OCR errors like misread digits (e.g. '8' as '3' or '0' as 'O').
If multiple such numbers exist, return the longest one.`

// CardNumberHandler 通过视觉模型从卡片图片中读取卡号。
type CardNumberHandler struct {
	Vision  agent.Vision
	Timeout time.Duration
}

func (CardNumberHandler) Name() string { return "extract_card_number" }

func (CardNumberHandler) Description() string {
	return "Read the credit card number from an image and write the digits (no spaces) to a text file."
}

func (CardNumberHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "image_path", Type: tools.TypeString, Default: "credit-card.png", Kind: tools.PathParam,
			Pattern: `\.png$`, Description: "Image of the card."},
		{Name: "filename", Type: tools.TypeString, Default: "credit-card.txt", Kind: tools.PathParam,
			Pattern: `\.txt$`, Description: "File receiving the card number."},
	}
}

func (h CardNumberHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "image_path", "filename")
	if err != nil {
		return tools.Result{}, err
	}
	image, err := os.ReadFile(paths[0])
	if err != nil {
		return tools.Result{}, err
	}
	mime := mimetype.Detect(image)
	if !strings.HasPrefix(mime.String(), "image/") {
		return tools.Result{}, fmt.Errorf("%s is not an image (%s)", inv.Root.Rel(paths[0]), mime.String())
	}

	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	reply, err := h.Vision.DescribeImage(ctx, cardNumberPrompt, mime.String(), image)
	if err != nil {
		return tools.Result{}, fmt.Errorf("vision model: %w", err)
	}
	digits := onlyDigits(reply)
	if len(digits) < 8 {
		return tools.Result{}, errors.New("model reply did not contain a card number")
	}
	if err := writeFile(paths[1], []byte(digits)); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(wrote(inv, paths[1]), map[string]int{"digits": len(digits)}), nil
}

func onlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
