package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"employee_directory/internal/apiclient"
	"employee_directory/internal/chatclient"
	"employee_directory/internal/config"
	"employee_directory/internal/domain"
	"employee_directory/internal/transport"
	"employee_directory/pkg/logger"
)

const help = `commands:
  /groups                 list your groups
  /join <n|group-id>      open a group
  /more                   load older messages
  /edit <id> <text>       edit one of your messages
  /delete <id>            delete one of your messages
  /new <name> [ids...]    create a group with the given employee ids
  /quit                   exit
anything else is sent to the open group`

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appLogger := logger.NewWithWriter(os.Stderr, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := apiclient.New(cfg.BaseURL, appLogger)
	login, err := api.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		appLogger.Fatal("Login failed", "error", err)
	}

	ws, err := transport.DialWS(ctx, wsURL(cfg.BaseURL), login.AccessToken, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect realtime transport", "error", err)
	}
	defer ws.Close()

	session, err := chatclient.NewSession(chatclient.Options{
		Identity:         login.Identity(),
		API:              api,
		Transport:        ws,
		PageSize:         cfg.Chat.PageSize,
		TypingTimeout:    cfg.Chat.TypingTimeout,
		MaxContentLength: cfg.Chat.MaxContentLength,
		EchoMode:         chatclient.EchoMode(cfg.Chat.EchoSuppression),
		Log:              appLogger,
	})
	if err != nil {
		appLogger.Fatal("Failed to start session", "error", err)
	}
	defer session.Close()

	fmt.Printf("signed in as %s\n%s\n", login.Employee.DisplayName, help)
	if err := session.RefreshGroups(ctx); err != nil {
		fmt.Println("error:", err)
	}
	printGroups(session.State().Groups)

	r := &renderer{self: login.Employee.ID, seen: make(map[int64]int)}
	go r.run(ctx, session)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(ctx, session, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// handleLine runs one REPL command. It returns false on /quit.
func handleLine(ctx context.Context, s *chatclient.Session, line string) bool {
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		if err := s.Send(chatclient.Draft{Content: line}); err != nil {
			fmt.Println("error:", err)
		}
		return true
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	var err error
	switch cmd {
	case "/quit":
		return false
	case "/help":
		fmt.Println(help)
	case "/groups":
		if err = s.RefreshGroups(ctx); err == nil {
			printGroups(s.State().Groups)
		}
	case "/join":
		var groupID uuid.UUID
		if groupID, err = pickGroup(s.State().Groups, rest); err == nil {
			err = s.SelectGroup(groupID)
		}
	case "/more":
		st := s.State()
		var more bool
		if more, err = s.LoadMore(ctx, st.ActiveGroup); err == nil && !more {
			fmt.Println("-- beginning of conversation --")
		}
	case "/edit":
		idStr, text, _ := strings.Cut(rest, " ")
		var id int64
		if id, err = strconv.ParseInt(idStr, 10, 64); err == nil {
			err = s.Edit(id, strings.TrimSpace(text))
		}
	case "/delete":
		var id int64
		if id, err = strconv.ParseInt(rest, 10, 64); err == nil {
			err = s.Delete(id)
		}
	case "/new":
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			err = fmt.Errorf("usage: /new <name> [employee-ids...]")
			break
		}
		req := domain.CreateGroupRequest{Name: fields[0]}
		for _, f := range fields[1:] {
			id, perr := uuid.Parse(f)
			if perr != nil {
				err = fmt.Errorf("invalid employee id %q", f)
				break
			}
			req.MemberIDs = append(req.MemberIDs, id)
		}
		if err == nil {
			var g *domain.Group
			if g, err = s.CreateGroup(ctx, req); err == nil {
				fmt.Printf("created %s (%s)\n", g.Name, g.ID)
			}
		}
	default:
		err = fmt.Errorf("unknown command %s", cmd)
	}

	if err != nil {
		fmt.Println("error:", err)
		s.ClearError()
	}
	return true
}

func pickGroup(groups []domain.Group, arg string) (uuid.UUID, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(groups) {
			return uuid.Nil, fmt.Errorf("no group #%d", n)
		}
		return groups[n-1].ID, nil
	}
	return uuid.Parse(arg)
}

func printGroups(groups []domain.Group) {
	if len(groups) == 0 {
		fmt.Println("no groups yet, create one with /new")
		return
	}
	for i, g := range groups {
		line := fmt.Sprintf("%2d. %s", i+1, g.Name)
		if g.UnreadCount > 0 {
			line += fmt.Sprintf(" (%d unread)", g.UnreadCount)
		}
		if g.LastMessage != nil {
			line += fmt.Sprintf("  %s: %s", g.LastMessage.SenderName, g.LastMessage.Content)
		}
		fmt.Println(line)
	}
}

// wsURL maps the REST base URL onto the realtime endpoint.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}

// renderer prints state changes as they arrive.
type renderer struct {
	self   uuid.UUID
	group  uuid.UUID
	seen   map[int64]int
	typing string
	err    error
	online bool
}

func (r *renderer) run(ctx context.Context, s *chatclient.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.Updates():
			if !ok {
				return
			}
			r.render(s.State())
		}
	}
}

func (r *renderer) render(st chatclient.State) {
	if st.ActiveGroup != r.group {
		r.group = st.ActiveGroup
		r.seen = make(map[int64]int)
		fmt.Println("---")
	}
	if st.Connected != r.online && !st.Loading {
		r.online = st.Connected
		if !st.Connected {
			fmt.Println("[offline]")
		}
	}

	for _, m := range st.Messages {
		if edits, ok := r.seen[m.ID]; ok && edits == m.EditCount {
			continue
		}
		r.seen[m.ID] = m.EditCount
		fmt.Println(formatMessage(m, r.self))
	}

	typing := formatTyping(st.Typing)
	if typing != r.typing {
		r.typing = typing
		if typing != "" {
			fmt.Println(typing)
		}
	}

	if st.Err != nil && st.Err != r.err {
		fmt.Println("error:", st.Err)
	}
	r.err = st.Err
}

func formatMessage(m domain.Message, self uuid.UUID) string {
	who := m.SenderName
	if m.SenderID == self {
		who = "you"
	}
	line := fmt.Sprintf("[%s] #%d %s: %s", m.CreatedAt.Local().Format(time.Kitchen), m.ID, who, m.Content)
	if m.EditCount > 0 {
		line += " (edited)"
	}
	switch m.Status {
	case domain.MessageStatusPending:
		line += " (sending)"
	case domain.MessageStatusFailed:
		line += " (failed)"
	}
	return line
}

func formatTyping(signals []domain.TypingSignal) string {
	if len(signals) == 0 {
		return ""
	}
	names := make([]string, 0, len(signals))
	for _, sig := range signals {
		names = append(names, sig.DisplayName)
	}
	if len(names) == 1 {
		return names[0] + " is typing..."
	}
	return strings.Join(names, ", ") + " are typing..."
}
