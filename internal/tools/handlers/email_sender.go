package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"task-agent/internal/tools"
)

type EmailSenderHandler struct{}

func (EmailSenderHandler) Name() string { return "extract_email_sender" }

func (EmailSenderHandler) Description() string {
	return "Extract the sender's email address from an email message stored as text and write it to an output file. Use the argument names 'filename' and 'output_file' exactly."
}

func (EmailSenderHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "filename", Type: tools.TypeString, Default: "email.txt", Kind: tools.PathParam,
			Pattern: `\.txt$`, Description: "File containing the raw email."},
		{Name: "output_file", Type: tools.TypeString, Default: "email-sender.txt", Kind: tools.PathParam,
			Description: "File receiving the sender address."},
	}
}

func (EmailSenderHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "filename", "output_file")
	if err != nil {
		return tools.Result{}, err
	}
	raw, err := os.ReadFile(paths[0])
	if err != nil {
		return tools.Result{}, err
	}
	sender, err := senderAddress(raw)
	if err != nil {
		return tools.Result{}, fmt.Errorf("%s: %w", inv.Root.Rel(paths[0]), err)
	}
	if err := writeFile(paths[1], []byte(sender)); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(fmt.Sprintf("sender %s; %s", sender, wrote(inv, paths[1])),
		map[string]string{"sender": sender}), nil
}

// senderAddress 优先按 RFC 5322 解析 From 头；头部不规范时退回逐行查找 From 行。
func senderAddress(raw []byte) (string, error) {
	if msg, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
		if from := msg.Header.Get("From"); from != "" {
			if addr, err := mail.ParseAddress(from); err == nil {
				return addr.Address, nil
			}
		}
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, "From") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr := strings.Trim(fields[len(fields)-1], "<>")
		if strings.Contains(addr, "@") {
			return addr, nil
		}
	}
	return "", errors.New("no sender address found")
}
