// Package tui is the terminal front end of the bookmark manager: a single
// screen that shows either a sign-in prompt or the signed-in user's list.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sakif/smart-bookmarks/internal/apperror"
	"github.com/sakif/smart-bookmarks/internal/client"
	"github.com/sakif/smart-bookmarks/internal/model"
)

// Controller is the part of client.Client the screen drives.
type Controller interface {
	Bootstrap(ctx context.Context) error
	Snapshot() client.State
	Refresh(ctx context.Context) error
	Insert(ctx context.Context, title, url string) (*model.Bookmark, error)
	Delete(ctx context.Context, id string) error
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

var _ Controller = (*client.Client)(nil)

// User-facing notices.
const (
	noticeMissing      = "Please enter both title and URL."
	noticeAddFailed    = "Failed to add bookmark."
	noticeDeleteFailed = "Delete failed."
	noticeLoadFailed   = "Failed to load bookmarks."
	noticeSignInFailed = "Sign-in failed."
)

type focus int

const (
	focusTitle focus = iota
	focusURL
	focusList
)

type screen struct {
	ctx  context.Context
	ctrl Controller

	state   client.State
	loading bool
	busy    string // shown while a sign-in or sign-out is in flight
	adding  bool
	notice  string // blocks input until dismissed
	cursor  int
	focus   focus
	title   textinput.Model
	url     textinput.Model
	width   int
}

func newScreen(ctx context.Context, ctrl Controller) screen {
	title := textinput.New()
	title.Placeholder = "Bookmark Title"
	title.Prompt = ""
	title.CharLimit = 200
	title.Focus()

	url := textinput.New()
	url.Placeholder = "Bookmark URL"
	url.Prompt = ""
	url.CharLimit = 2048

	return screen{
		ctx:     ctx,
		ctrl:    ctrl,
		loading: true,
		focus:   focusTitle,
		title:   title,
		url:     url,
	}
}

func (m screen) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, bootstrapCmd(m.ctx, m.ctrl))
}

func (m screen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case bootstrappedMsg:
		m.loading = false
		m.sync()
		if msg.err != nil {
			m.notice = noticeLoadFailed
		}
		return m, nil

	case stateChangedMsg:
		m.sync()
		return m, nil

	case insertedMsg:
		m.adding = false
		switch {
		case msg.err == nil:
			m.title.SetValue("")
			m.url.SetValue("")
			return m, m.setFocus(focusTitle)
		case errors.Is(msg.err, apperror.ErrValidation):
			m.notice = noticeMissing
		default:
			m.notice = noticeAddFailed
		}
		return m, nil

	case deletedMsg:
		if msg.err != nil {
			m.notice = noticeDeleteFailed
		}
		return m, nil

	case refreshedMsg:
		if msg.err != nil {
			m.notice = noticeLoadFailed
		}
		return m, nil

	case signedInMsg:
		m.busy = ""
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.notice = noticeSignInFailed
		}
		return m, nil

	case signedOutMsg:
		m.busy = ""
		m.sync()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateInputs(msg)
}

func (m screen) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	// A notice is modal: the next key only dismisses it.
	if m.notice != "" {
		m.notice = ""
		return m, nil
	}
	if m.loading || m.busy != "" {
		if key == "q" || key == "esc" {
			return m, tea.Quit
		}
		return m, nil
	}

	if m.state.Mode() == client.Unauthenticated {
		switch key {
		case "q", "esc":
			return m, tea.Quit
		case "enter":
			m.busy = "Waiting for Google sign-in in your browser…"
			return m, signInCmd(m.ctx, m.ctrl)
		}
		return m, nil
	}

	switch key {
	case "tab":
		return m, m.setFocus((m.focus + 1) % 3)
	case "shift+tab":
		return m, m.setFocus((m.focus + 2) % 3)
	case "ctrl+o":
		m.busy = "Signing out…"
		return m, signOutCmd(m.ctx, m.ctrl)
	}

	if m.focus == focusList {
		return m.handleListKey(key)
	}

	switch key {
	case "enter":
		if m.focus == focusTitle {
			return m, m.setFocus(focusURL)
		}
		if m.adding {
			return m, nil
		}
		m.adding = true
		return m, insertCmd(m.ctx, m.ctrl, m.title.Value(), m.url.Value())
	case "esc":
		return m, m.setFocus(focusList)
	}
	return m.updateInputs(msg)
}

func (m screen) handleListKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.state.Bookmarks)-1 {
			m.cursor++
		}
	case "d", "delete":
		if m.cursor < len(m.state.Bookmarks) {
			return m, deleteCmd(m.ctx, m.ctrl, m.state.Bookmarks[m.cursor].ID)
		}
	case "r":
		return m, refreshCmd(m.ctx, m.ctrl)
	case "a", "i":
		return m, m.setFocus(focusTitle)
	}
	return m, nil
}

func (m *screen) setFocus(f focus) tea.Cmd {
	m.focus = f
	m.title.Blur()
	m.url.Blur()
	switch f {
	case focusTitle:
		return m.title.Focus()
	case focusURL:
		return m.url.Focus()
	}
	return nil
}

func (m screen) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var titleCmd, urlCmd tea.Cmd
	m.title, titleCmd = m.title.Update(msg)
	m.url, urlCmd = m.url.Update(msg)
	return m, tea.Batch(titleCmd, urlCmd)
}

// sync copies the client state in and keeps the cursor in range.
func (m *screen) sync() {
	m.state = m.ctrl.Snapshot()
	if m.cursor >= len(m.state.Bookmarks) {
		m.cursor = max(len(m.state.Bookmarks)-1, 0)
	}
	if m.state.Mode() == client.Unauthenticated {
		m.title.SetValue("")
		m.url.SetValue("")
		m.adding = false
	}
}

func (m screen) View() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Smart Bookmark App 🚀") + "\n\n")

	switch {
	case m.notice != "":
		s.WriteString(noticeStyle.Render(m.notice+"\n\n"+subtleStyle.Render("press any key")) + "\n")
	case m.loading:
		s.WriteString(subtleStyle.Render("Loading…") + "\n")
	case m.busy != "":
		s.WriteString(subtleStyle.Render(m.busy) + "\n")
	case m.state.Mode() == client.Unauthenticated:
		s.WriteString(m.renderSignIn())
	default:
		s.WriteString(m.renderBookmarks())
	}

	return s.String()
}

func (m screen) renderSignIn() string {
	var s strings.Builder
	s.WriteString(buttonStyle.Render("Sign in with Google") + "\n\n")
	s.WriteString(subtleStyle.Render("enter: sign in • q: quit") + "\n")
	return s.String()
}

func (m screen) renderBookmarks() string {
	var s strings.Builder

	s.WriteString("Logged in as: " + emailStyle.Render(m.state.Session.User.Email) + "\n\n")

	s.WriteString(m.renderField("Title", m.title, m.focus == focusTitle))
	s.WriteString(m.renderField("URL  ", m.url, m.focus == focusURL))
	if m.adding {
		s.WriteString(busyButtonStyle.Render("Adding...") + "\n\n")
	} else {
		s.WriteString(buttonStyle.Render("Add Bookmark") + "\n\n")
	}

	if len(m.state.Bookmarks) == 0 {
		s.WriteString(emptyStyle.Render("No bookmarks yet.") + "\n")
	}
	for i, b := range m.state.Bookmarks {
		cursor := "  "
		style := titleStyle
		if m.focus == focusList && i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		s.WriteString(fmt.Sprintf("%s%s\n", cursor, style.Render(b.Title)))
		s.WriteString("  " + urlStyle.Render(truncate(b.URL, m.urlWidth())) + "\n")
	}

	s.WriteString("\n" + subtleStyle.Render(m.help()) + "\n")
	return s.String()
}

func (m screen) renderField(label string, in textinput.Model, focused bool) string {
	marker := "  "
	if focused {
		marker = selectedStyle.Render("› ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, marker, subtleStyle.Render(label+" "), in.View()) + "\n"
}

func (m screen) help() string {
	if m.focus == focusList {
		return "↑/↓: move • d: delete • r: refresh • a: add • ctrl+o: logout • q: quit"
	}
	return "tab: next field • enter: add • esc: list • ctrl+o: logout • ctrl+c: quit"
}

func (m screen) urlWidth() int {
	if m.width <= 10 {
		return 0
	}
	return m.width - 4
}

// truncate shortens s to maxLen runes; maxLen <= 0 disables truncation.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Run shows the screen until the user quits. State changes made outside
// the screen (a sign-out elsewhere, an expired session) are pushed in
// through the client's change hook.
func Run(ctx context.Context, c *client.Client) error {
	p := tea.NewProgram(
		newScreen(ctx, c),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	c.OnChange(func() { p.Send(stateChangedMsg{}) })
	defer c.OnChange(nil)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
