package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Message types for async operations
type (
	// bootstrappedMsg reports the initial session and list load
	bootstrappedMsg struct{ err error }

	// stateChangedMsg is sent whenever the client state changes, including
	// changes pushed by the server
	stateChangedMsg struct{}

	insertedMsg  struct{ err error }
	deletedMsg   struct{ err error }
	refreshedMsg struct{ err error }
	signedInMsg  struct{ err error }
	signedOutMsg struct{ err error }
)

func bootstrapCmd(ctx context.Context, c Controller) tea.Cmd {
	return func() tea.Msg {
		return bootstrappedMsg{err: c.Bootstrap(ctx)}
	}
}

func insertCmd(ctx context.Context, c Controller, title, url string) tea.Cmd {
	return func() tea.Msg {
		_, err := c.Insert(ctx, title, url)
		return insertedMsg{err: err}
	}
}

func deleteCmd(ctx context.Context, c Controller, id string) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{err: c.Delete(ctx, id)}
	}
}

func refreshCmd(ctx context.Context, c Controller) tea.Cmd {
	return func() tea.Msg {
		return refreshedMsg{err: c.Refresh(ctx)}
	}
}

func signInCmd(ctx context.Context, c Controller) tea.Cmd {
	return func() tea.Msg {
		return signedInMsg{err: c.SignIn(ctx)}
	}
}

func signOutCmd(ctx context.Context, c Controller) tea.Cmd {
	return func() tea.Msg {
		return signedOutMsg{err: c.SignOut(ctx)}
	}
}
