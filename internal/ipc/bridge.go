package ipc

import (
	"context"
	"errors"
	"fmt"

	"nbwatchd/internal/host"
)

// Bridge adapts the connected editor client to the host.Editor
// collaborator the engine consumes. Every call targets whichever editor
// is connected at that moment; with none connected, calls fail with
// host.ErrClosed and the engine degrades to journal-and-notify.
type Bridge struct {
	server *Server
}

// NewBridge creates an editor bridge over the server.
func NewBridge(server *Server) *Bridge {
	return &Bridge{server: server}
}

// Connected reports whether an editor front-end is attached.
func (b *Bridge) Connected() bool {
	return b.server.Editor() != nil
}

// ListOpenDocuments implements host.Editor.
func (b *Bridge) ListOpenDocuments(ctx context.Context) ([]host.Document, error) {
	editor := b.server.Editor()
	if editor == nil {
		return nil, fmt.Errorf("list documents: %w", host.ErrClosed)
	}

	resp, err := b.server.Request(ctx, editor, MsgListDocsRequest, struct{}{})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var list ListDocsResponse
	if err := Decode(resp.Payload, &list); err != nil {
		return nil, fmt.Errorf("decode document list: %w", err)
	}

	docs := make([]host.Document, 0, len(list.Documents))
	for _, d := range list.Documents {
		docs = append(docs, host.Document{Path: d.Path, Dirty: d.Dirty})
	}
	return docs, nil
}

// Reload implements host.Editor.
func (b *Bridge) Reload(ctx context.Context, path string) error {
	editor := b.server.Editor()
	if editor == nil {
		return fmt.Errorf("reload %s: %w", path, host.ErrClosed)
	}

	resp, err := b.server.Request(ctx, editor, MsgReloadRequest, &ReloadRequest{Path: path})
	if err != nil {
		return fmt.Errorf("reload %s: %w", path, err)
	}

	var result ReloadResponse
	if err := Decode(resp.Payload, &result); err != nil {
		return fmt.Errorf("decode reload response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("reload %s: %s", path, result.Error)
	}
	return nil
}

// ErrPromptDismissed reports a prompt closed without a choice.
var ErrPromptDismissed = errors.New("prompt dismissed")

// Prompt implements host.Editor.
func (b *Bridge) Prompt(ctx context.Context, title, body string, choices []string) (string, error) {
	editor := b.server.Editor()
	if editor == nil {
		return "", fmt.Errorf("prompt: %w", host.ErrClosed)
	}

	resp, err := b.server.Request(ctx, editor, MsgPromptRequest, &PromptRequest{
		Title:   title,
		Body:    body,
		Choices: choices,
	})
	if err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}

	var result PromptResponse
	if err := Decode(resp.Payload, &result); err != nil {
		return "", fmt.Errorf("decode prompt response: %w", err)
	}
	if result.Dismissed {
		return "", ErrPromptDismissed
	}
	return result.Choice, nil
}

// Notify pushes a passive notice to the editor if one is connected.
// Returns false when no editor could receive it.
func (b *Bridge) Notify(title, body string) bool {
	editor := b.server.Editor()
	if editor == nil {
		return false
	}
	return b.server.Push(editor, MsgNotice, &NoticeEvent{Title: title, Body: body}) == nil
}
