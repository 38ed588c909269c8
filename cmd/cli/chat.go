package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/chat"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/realtime"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/voicecmd"
)

var flagAI bool

const chatHelp = `Commands:
  /sessions           list conversations
  /open <session-id>  switch to a conversation
  /ai                 switch to the AI assistant
  /doctors            linked doctors you can request
  /request <doctor>   request a chat with a doctor
  /accept             accept the open request (doctors)
  /close              close the open chat
  /history            reprint the open conversation
  /voice <file>       send a voice recording
  /image <file>       send an image
  /dictate <text>     send dictated text, showing recognised readings
  /symptoms <text>    preview symptom readings without sending
  /quit               leave
Anything else is sent as a message.`

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Open an interactive chat",
	Long: `Open an interactive chat. Patients land in the AI assistant by default;
pass a session id to open a doctor conversation instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stack, err := newChatStack(ctx, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer stack.Close()
		serveMetrics(ctx)

		r := newREPL(stack)
		if err := r.start(ctx); err != nil {
			return err
		}

		switch {
		case len(args) == 1:
			err = r.open(ctx, args[0])
		case flagAI || stack.identity.Role == models.RolePatient:
			err = r.openAI(ctx)
		default:
			r.listSessions(ctx)
		}
		if err != nil {
			r.term.println(renderError(err))
		}
		r.term.println(mutedStyle.Render("Type /help for commands."))

		return r.loop(ctx, bufio.NewScanner(cmd.InOrStdin()))
	},
}

// repl is the line-mode chat view over one chat.Client.
type repl struct {
	stack *chatStack
	term  *terminal

	mu      sync.Mutex
	printed map[string]struct{}
}

func newREPL(stack *chatStack) *repl {
	return &repl{
		stack:   stack,
		term:    stack.term,
		printed: make(map[string]struct{}),
	}
}

// start launches the chat client, then prints pushed messages once the
// client's own handler has reconciled them.
func (r *repl) start(ctx context.Context) error {
	client := r.stack.client
	if err := client.Start(ctx); err != nil {
		return err
	}
	r.stack.channel.On(models.EventNewMessage, func(realtime.Message) { r.flush() })
	client.Typing().OnChange(func(sessionID string) {
		th := client.Thread()
		if th == nil || th.SessionID() != sessionID {
			return
		}
		if actor, ok := th.Typing(); ok {
			r.term.println(renderTyping(actor))
		}
	})
	return nil
}

// flush prints cached messages of the open thread not yet shown.
func (r *repl) flush() {
	th := r.stack.client.Thread()
	if th == nil {
		return
	}
	msgs := r.stack.client.Messages().Cached(th.SessionID())

	r.mu.Lock()
	var fresh []models.ChatMessage
	for _, m := range msgs {
		if _, ok := r.printed[m.ID]; ok {
			continue
		}
		r.printed[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	r.mu.Unlock()

	for _, m := range fresh {
		r.term.println(renderMessage(m, r.stack.identity.ID))
	}
}

func (r *repl) open(ctx context.Context, sessionID string) error {
	th, err := r.stack.client.SwitchThread(ctx, sessionID)
	if err != nil {
		return err
	}
	r.showThread(ctx, th)
	return nil
}

func (r *repl) openAI(ctx context.Context) error {
	th, err := r.stack.client.OpenAIThread(ctx)
	if err != nil {
		return err
	}
	r.showThread(ctx, th)
	return nil
}

func (r *repl) showThread(ctx context.Context, th *chat.Thread) {
	session, _ := th.Session()
	header := session.DisplayTitle(r.stack.identity.Role)
	if !th.IsAI() {
		header += " [" + string(session.Status) + "]"
	}
	r.term.println(titleStyle.Render(header))

	if _, err := th.Messages(ctx); err != nil {
		return
	}
	r.mu.Lock()
	for _, m := range r.stack.client.Messages().Cached(th.SessionID()) {
		r.printed[m.ID] = struct{}{}
	}
	r.mu.Unlock()
	r.term.println(renderThread(th.Grouped(now()), r.stack.identity.ID))

	if session.Status == models.StatusRequested && !chat.CanAccept(session, r.stack.identity.Role) {
		r.term.println(mutedStyle.Render("Waiting for the doctor to accept your chat request"))
	}
}

func (r *repl) listSessions(ctx context.Context) {
	sessions, err := r.stack.client.Sessions().List(ctx)
	if err != nil {
		return
	}
	r.term.println(renderSessions(sessions, r.stack.identity.Role))
}

func (r *repl) loop(ctx context.Context, scanner *bufio.Scanner) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if r.stack.client.Stopped() {
				return chat.ErrStopped
			}
			quit, err := r.handle(ctx, line)
			if err != nil {
				r.term.println(renderError(err))
			}
			if quit {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the user asked to quit.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	name, arg := parseCommand(line)
	client := r.stack.client
	th := client.Thread()

	switch name {
	case "":
		if strings.TrimSpace(arg) == "" {
			return false, nil
		}
		if th == nil {
			return false, errNoThread
		}
		th.SetDraft(arg)
		err := th.SendText(ctx)
		r.flush()
		return false, err
	case "quit", "exit":
		return true, nil
	case "help":
		r.term.println(chatHelp)
	case "sessions":
		r.listSessions(ctx)
	case "open":
		if arg == "" {
			return false, fmt.Errorf("usage: /open <session-id>")
		}
		return false, r.open(ctx, arg)
	case "ai":
		return false, r.openAI(ctx)
	case "doctors":
		candidates, err := client.RequestCandidates(ctx)
		if err != nil {
			return false, err
		}
		r.term.println(renderDoctors(candidates))
	case "request":
		if arg == "" {
			return false, fmt.Errorf("usage: /request <doctor-id>")
		}
		session, err := client.RequestDoctorChat(ctx, arg)
		if err != nil {
			return false, err
		}
		return false, r.open(ctx, session.ID)
	case "accept":
		if th == nil {
			return false, errNoThread
		}
		return false, th.Accept(ctx)
	case "close":
		if th == nil {
			return false, errNoThread
		}
		return false, th.CloseSession(ctx)
	case "history":
		if th == nil {
			return false, errNoThread
		}
		r.showThread(ctx, th)
	case "voice", "image":
		if th == nil {
			return false, errNoThread
		}
		return false, r.sendFile(ctx, th, name, arg)
	case "dictate":
		if th == nil {
			return false, errNoThread
		}
		r.term.println(renderReadings(voicecmd.Parse(arg)))
		th.SetDictating(true)
		th.SetDraft(arg)
		err := th.SendText(ctx)
		r.flush()
		return false, err
	case "symptoms":
		r.term.println(renderReadings(voicecmd.Parse(arg)))
	default:
		return false, fmt.Errorf("unknown command /%s, try /help", name)
	}
	return false, nil
}

func (r *repl) sendFile(ctx context.Context, th *chat.Thread, kind, path string) error {
	if path == "" {
		return fmt.Errorf("usage: /%s <file>", kind)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if kind == "voice" {
		err = th.SendVoice(ctx, filepath.Base(path), f)
	} else {
		err = th.SendImage(ctx, filepath.Base(path), f)
	}
	r.flush()
	return err
}

var errNoThread = fmt.Errorf("%w: use /open or /ai", chat.ErrNoThread)

// parseCommand splits "/name arg..." into name and argument; plain text
// returns an empty name and the line itself.
func parseCommand(line string) (string, string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return "", line
	}
	name, arg, _ := strings.Cut(trimmed[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// renderError 展示错误
func renderError(err error) string {
	return levelStyles[chat.LevelError].Render("✗ ") + chat.ErrorMessage(err)
}

func init() {
	chatCmd.Flags().BoolVar(&flagAI, "ai", false, "open the AI assistant session")
	rootCmd.AddCommand(chatCmd)
}
