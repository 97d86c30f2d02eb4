// ABOUTME: Line-oriented terminal view: prints finished messages per tab and lane, runs slash commands
// ABOUTME: Agent markdown is flattened with goldmark; colors come from fatih/color

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/coven-lanes/internal/client"
	"github.com/2389/coven-lanes/internal/conversation"
	"github.com/2389/coven-lanes/internal/lane"
	"github.com/2389/coven-lanes/internal/markdown"
	"github.com/2389/coven-lanes/internal/roles"
	"github.com/2389/coven-lanes/internal/session"
	"github.com/2389/coven-lanes/internal/store"
)

// defaultLedgerLimit is how many events /ledger shows without an argument.
const defaultLedgerLimit = 20

type view struct {
	sess *session.Session

	mu  sync.Mutex
	out io.Writer

	// offline tracks the last status so only connectivity changes print.
	offline bool

	tab    *color.Color
	user   *color.Color
	agent  *color.Color
	system *color.Color
	dim    *color.Color
	errc   *color.Color
}

func newView(sess *session.Session, out io.Writer) *view {
	return &view{
		sess:   sess,
		out:    out,
		tab:    color.New(color.FgCyan, color.Bold),
		user:   color.New(color.FgGreen),
		agent:  color.New(color.FgMagenta),
		system: color.New(color.FgYellow),
		dim:    color.New(color.FgHiBlack),
		errc:   color.New(color.FgRed),
	}
}

// watch prints updates until the channel closes.
func (v *view) watch(updates <-chan *conversation.Update) {
	for u := range updates {
		v.render(u)
	}
}

func (v *view) render(u *conversation.Update) {
	switch u.Kind {
	case conversation.UpdateActivated:
		v.printf("%s %s\n", v.tab.Sprintf("▶ [%d]", u.Seq), u.Title)
	case conversation.UpdateClosed:
		v.printf("%s\n", v.dim.Sprintf("✕ [%d] %s closed", u.Seq, u.Title))
	case conversation.UpdateRetitled:
		v.printf("%s\n", v.dim.Sprintf("✎ [%d] %s", u.Seq, u.Title))
	case conversation.UpdateLaneOpened:
		v.printf("%s\n", v.dim.Sprintf("+ [%d] %s opened", u.Seq, v.laneName(u.Lane)))
	case conversation.UpdateMessageFinished:
		v.renderMessage(u)
	case conversation.UpdateStatus:
		offline := strings.HasPrefix(u.Status, "offline")
		if offline != v.offline {
			v.offline = offline
			if offline {
				v.printf("%s\n", v.errc.Sprint("⚠ "+u.Status))
			} else {
				v.printf("%s\n", v.dim.Sprint("✓ "+u.Status))
			}
		}
	}
}

func (v *view) renderMessage(u *conversation.Update) {
	msg := u.Message
	if msg == nil {
		return
	}

	name := v.agent
	text := markdown.ToPlain(msg.Text)
	switch msg.Role {
	case roles.User:
		name = v.user
		text = msg.Text
	case roles.System:
		name = v.system
	}

	where := fmt.Sprintf("[%d]", u.Seq)
	if !msg.Lane.IsMain() {
		where = fmt.Sprintf("[%d %s]", u.Seq, msg.Lane.Role())
	}

	indented := strings.ReplaceAll(text, "\n", "\n    ")
	v.printf("%s %s %s\n", v.tab.Sprint(where), name.Sprint(msg.Name+":"), indented)

	if u.Prompt != nil {
		if len(u.Prompt.Roles) == 0 {
			v.printf("%s\n", v.dim.Sprint("    /continue で継続（相談窓はまだありません）"))
			return
		}
		v.printf("%s\n", v.dim.Sprintf("    /continue で全員、/continue %s で指定して継続",
			strings.Join(u.Prompt.Roles, " ")))
	}
}

// handle runs one input line. It returns true when the user asked to quit.
func (v *view) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}

	name, args := parseCommand(line)
	switch name {
	case "":
		v.send(ctx, line)
	case "quit", "exit", "q":
		return true
	case "help":
		v.printHelp()
	case "new":
		if _, err := v.sess.Create(ctx); err != nil {
			v.errorf("%v", err)
		}
	case "close":
		v.closeTab(ctx, args)
	case "tabs":
		v.listTabs()
	case "use":
		v.useTab(args)
	case "lanes":
		v.listLanes()
	case "history":
		v.history(ctx, args)
	case "ledger":
		v.ledger(ctx, args)
	case "add":
		v.addAgents(ctx, args)
	case "continue":
		v.continueDiscussion(ctx, args)
	case "status":
		v.printf("%s (cursor %d)\n", v.sess.Status(), v.sess.Cursor())
	default:
		v.errorf("unknown command /%s (try /help)", name)
	}
	return false
}

func (v *view) send(ctx context.Context, text string) {
	id := v.sess.Focused()
	if id == "" {
		v.errorf("no conversation open; use /new")
		return
	}
	// Sends block on the backend; run them off the input loop so polling
	// output and other tabs stay responsive.
	go func() {
		err := v.sess.Send(ctx, id, text)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrSendInFlight):
			v.errorf("still sending the previous message")
		case errors.Is(err, context.Canceled), errors.Is(err, client.ErrTransport):
			// the session already posted the failure into the conversation
		default:
			v.errorf("%v", err)
		}
	}()
}

func (v *view) closeTab(ctx context.Context, args []string) {
	id := v.sess.Focused()
	if len(args) > 0 {
		info, err := v.lookupTab(args[0])
		if err != nil {
			v.errorf("%v", err)
			return
		}
		id = info.ID
	}
	if id == "" {
		v.errorf("no conversation to close")
		return
	}
	if err := v.sess.CloseConversation(ctx, id); err != nil {
		v.errorf("%v", err)
	}
}

func (v *view) listTabs() {
	focused := v.sess.Focused()
	convs := v.sess.Conversations()
	if len(convs) == 0 {
		v.printf("no conversations\n")
		return
	}
	for _, info := range convs {
		marker := " "
		if info.ID == focused {
			marker = "▶"
		}
		extra := ""
		if n := v.sess.Pending(info.ID); n > 0 {
			extra = fmt.Sprintf(" · %d revealing", n)
		}
		v.printf("%s %s %s %s\n", marker, v.tab.Sprintf("[%d]", info.Seq), info.Title,
			v.dim.Sprintf("(%d lanes%s)", len(info.Lanes)+1, extra))
	}
}

func (v *view) useTab(args []string) {
	if len(args) == 0 {
		v.errorf("usage: /use <tab>")
		return
	}
	info, err := v.lookupTab(args[0])
	if err != nil {
		v.errorf("%v", err)
		return
	}
	if err := v.sess.Focus(info.ID); err != nil {
		v.errorf("%v", err)
	}
}

func (v *view) listLanes() {
	info, ok := v.sess.Conversation(v.sess.Focused())
	if !ok {
		v.errorf("no conversation open")
		return
	}
	v.printf("  main\n")
	for _, l := range info.Lanes {
		v.printf("  %s %s\n", l.String(), v.dim.Sprint(v.laneName(l)))
	}
}

func (v *view) history(ctx context.Context, args []string) {
	id := v.sess.Focused()
	if id == "" {
		v.errorf("no conversation open")
		return
	}

	var err error
	var msgs []*store.MessageRecord
	if len(args) == 0 {
		msgs, err = v.sess.AllMessages(ctx, id)
	} else {
		l, ok := parseLaneArg(args[0])
		if !ok {
			v.errorf("unknown lane %q", args[0])
			return
		}
		msgs, err = v.sess.Messages(ctx, id, l)
	}
	if err != nil {
		v.errorf("%v", err)
		return
	}
	for _, m := range msgs {
		v.printf("%s %s %s\n", v.dim.Sprintf("%4d %-18s", m.Position, m.Lane), m.Name+":", m.Text)
	}
}

func (v *view) ledger(ctx context.Context, args []string) {
	id := v.sess.Focused()
	limit := defaultLedgerLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			v.errorf("usage: /ledger [count]")
			return
		}
		limit = n
	}

	events, err := v.sess.Ledger(ctx, id, limit)
	if err != nil {
		v.errorf("%v", err)
		return
	}
	for _, e := range events {
		v.printf("%s %-10s %-6s %s: %s\n", v.dim.Sprintf("#%d", e.EventID), e.Disposition, e.Source, e.Role, e.Text)
	}
}

func (v *view) addAgents(ctx context.Context, args []string) {
	id := v.sess.Focused()
	var err error
	switch len(args) {
	case 0:
		v.errorf("usage: /add <role> [role...]")
		return
	case 1:
		err = v.sess.AddAgent(ctx, id, args[0])
	default:
		err = v.sess.AddAgents(ctx, id, args)
	}
	if err != nil {
		v.errorf("%v", err)
	}
}

func (v *view) continueDiscussion(ctx context.Context, args []string) {
	id := v.sess.Focused()
	go func() {
		if err := v.sess.Continue(ctx, id, args); err != nil && !errors.Is(err, context.Canceled) {
			v.errorf("%v", err)
		}
	}()
}

func (v *view) lookupTab(arg string) (conversation.Info, error) {
	seq, err := strconv.Atoi(strings.TrimPrefix(arg, "#"))
	if err != nil {
		return conversation.Info{}, fmt.Errorf("not a tab number: %q", arg)
	}
	info, ok := v.sess.ConversationBySeq(seq)
	if !ok {
		return conversation.Info{}, fmt.Errorf("no open tab %d", seq)
	}
	return info, nil
}

func (v *view) laneName(l lane.Lane) string {
	if l.IsMain() {
		return lane.MainTag
	}
	return v.sess.Catalog().Label(l.Role())
}

func (v *view) printHelp() {
	v.printf(`Commands:
  /new               Start a new conversation
  /close [tab]       Close the focused or given tab
  /tabs              List open tabs
  /use <tab>         Focus a tab
  /lanes             List lanes of the focused tab
  /history [lane]    Show messages (lane: main, consult:<role> or <role>)
  /ledger [n]        Show recent feed events and what happened to them
  /add <role>...     Invite specialists
  /continue [role...] Continue the discussion with everyone or the given roles
  /status            Show connectivity and cursor
  /help              Show this help
  /quit              Exit
`)
}

func (v *view) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

func (v *view) errorf(format string, args ...any) {
	v.printf("%s\n", v.errc.Sprintf("[error] "+format, args...))
}

// parseCommand splits a slash command into its name and arguments. Lines
// that are not commands return an empty name.
func parseCommand(line string) (string, []string) {
	if !strings.HasPrefix(line, "/") {
		return "", nil
	}
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// parseLaneArg accepts a wire lane tag or a bare role id.
func parseLaneArg(arg string) (lane.Lane, bool) {
	if arg == lane.MainTag || strings.HasPrefix(arg, lane.ConsultPrefix) {
		return lane.Parse(arg)
	}
	if arg == "" {
		return lane.Lane{}, false
	}
	return lane.Consult(arg), true
}
