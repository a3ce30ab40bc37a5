package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"ephemera/internal/client/channel"
	"ephemera/internal/client/gateway"
	"ephemera/internal/client/session"
	"ephemera/internal/client/sessionstore"
	"ephemera/internal/domain"
	"ephemera/pkg/logger"
)

const usage = `commands:
  say <text>          send a chat message
  edit <text>         replace the document content
  lang <language>     change the document language
  cursor <line> <col> move your cursor
  kick <username>     remove a participant (admin only)
  who                 list participants
  history             show recent messages
  doc                 show the document
  time                show the time left
  leave | forget      leave the room (forget also drops your participant row)
`

func main() {
	var (
		gatewayURL = flag.String("gateway", "http://localhost:8080", "gateway base URL")
		memory     = flag.Bool("memory", false, "run against an in-process gateway with a fresh demo room")
		roomFlag   = flag.String("room", "", "room id")
		password   = flag.String("password", "", "room password")
		username   = flag.String("username", "", "username (optional when a stored session exists)")
		storePath  = flag.String("store", defaultStorePath(), "session store file")
		autoSuffix = flag.Bool("auto-suffix", false, "retry a taken username once with a numeric suffix")
		noEncrypt  = flag.Bool("no-encrypt", false, "send chat messages in plaintext")
		debounce   = flag.Duration("debounce", 400*time.Millisecond, "document write debounce")
		ttl        = flag.Duration("ttl", 10*time.Minute, "demo room lifetime with -memory")
		logMode    = flag.String("log-mode", logger.ProductionMode, "production or development")
	)
	flag.Parse()

	l := logger.New(*logMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sessionstore.Open(*storePath, l.Named("sessionstore"))
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer store.Close()
	if n, err := store.Purge(ctx); err == nil && n > 0 {
		l.Infof("Dropped %d expired sessions", n)
	}

	deps := session.Deps{Store: store, Logger: l.Named("session")}
	var roomID uuid.UUID
	if *memory {
		gw := gateway.NewMemory()
		bus := channel.NewBus(l.Named("bus"))
		gw.SetNotifier(bus.Broadcast)
		if *password == "" {
			*password = "demo"
		}
		room := gw.CreateRoom("demo", *password, domain.RoomKindMixed, *ttl)
		roomID = room.ID
		deps.Gateway, deps.Transport = gw, bus
		fmt.Printf("demo room %s (password %q) expires %s\n", room.ID, *password, room.ExpiresAt.Format(time.Kitchen))
	} else {
		if roomID, err = uuid.Parse(*roomFlag); err != nil {
			log.Fatalf("Invalid -room: %v", err)
		}
		deps.Gateway = gateway.NewHTTPGateway(*gatewayURL, gateway.WithLogger(l.Named("gateway")))
		deps.Transport = channel.NewWSTransport(*gatewayURL, l.Named("channel"))
	}

	cfg := session.DefaultConfig()
	cfg.Debounce = *debounce
	cfg.Encrypt = !*noEncrypt
	cfg.AutoSuffixOnConflict = *autoSuffix

	in := bufio.NewScanner(os.Stdin)
	params := session.JoinParams{RoomID: roomID, Password: *password, Username: *username}
	res, err := session.Join(ctx, deps, cfg, params)
	if err == nil && res.RequiresUsername {
		fmt.Print("username: ")
		if !in.Scan() {
			return
		}
		params.Username = strings.TrimSpace(in.Text())
		res, err = session.Join(ctx, deps, cfg, params)
	}
	if err != nil {
		log.Fatalf("Failed to join room: %v", err)
	}
	sess := res.Session
	defer sess.Close()

	me := sess.Me()
	fmt.Printf("joined %q as %s (admin: %t)\n%s", res.Room.Name, me.Username, sess.IsAdmin(), usage)

	go printEvents(os.Stdout, sess)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case line, ok := <-lines:
			if !ok {
				_ = sess.Leave(context.Background(), session.LeaveOptions{})
				return
			}
			done, err := execute(ctx, sess, os.Stdout, line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
			if done {
				<-sess.Done()
				return
			}
		}
	}
}

// execute runs one command line and reports whether the session ended.
func execute(ctx context.Context, sess *session.Session, out io.Writer, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return false, nil
	case "say":
		_, err := sess.SendMessage(ctx, arg)
		return false, err
	case "edit":
		return false, sess.Edit(ctx, arg)
	case "lang":
		return false, sess.ChangeLanguage(ctx, arg)
	case "cursor":
		parts := strings.Fields(arg)
		if len(parts) != 2 {
			return false, errors.New("usage: cursor <line> <col>")
		}
		ln, err1 := strconv.Atoi(parts[0])
		col, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return false, errors.New("line and col must be numbers")
		}
		return false, sess.MoveCursor(ctx, ln, col)
	case "kick":
		return false, sess.Kick(ctx, arg)
	case "who":
		list, err := sess.RefreshRoster(ctx)
		if err != nil {
			return false, err
		}
		admin, _ := sess.Admin()
		printRoster(out, list, admin.Username)
		return false, nil
	case "history":
		msgs, err := sess.History(ctx)
		if err != nil {
			return false, err
		}
		for _, m := range msgs {
			printMessage(out, m)
		}
		return false, nil
	case "doc":
		v := sess.Document()
		fmt.Fprintf(out, "[%s, last edit by %s]\n%s\n", v.Language, v.LastEditedBy, v.Content)
		return false, nil
	case "time":
		fmt.Fprintf(out, "%s left\n", sess.Remaining().Round(time.Second))
		return false, nil
	case "leave":
		return true, sess.Leave(ctx, session.LeaveOptions{})
	case "forget":
		return true, sess.Leave(ctx, session.LeaveOptions{Forget: true})
	case "help":
		fmt.Fprint(out, usage)
		return false, nil
	}
	return false, fmt.Errorf("unknown command %q", cmd)
}

func printEvents(out io.Writer, sess *session.Session) {
	for e := range sess.Events() {
		switch e.Kind {
		case session.EventChat:
			printMessage(out, *e.Message)
		case session.EventRoster:
			printRoster(out, e.Roster, e.Admin)
		case session.EventDocument:
			if e.Document.Remote {
				fmt.Fprintf(out, "* document updated by %s\n", e.Document.LastEditedBy)
			}
		case session.EventExpired:
			fmt.Fprintln(out, "* the room has expired, leaving shortly")
		case session.EventConnection:
			fmt.Fprintf(out, "* channel %s\n", e.Connection)
		case session.EventError:
			fmt.Fprintf(out, "* %s: %s\n", e.Err.Code, e.Err.Message)
		case session.EventClosed:
			fmt.Fprintf(out, "* session ended (%s)\n", e.Reason)
		}
	}
}

func printRoster(out io.Writer, list []domain.Participant, admin string) {
	for _, p := range list {
		mark := " "
		if p.Username == admin {
			mark = "*"
		}
		status := "offline"
		if p.IsOnline {
			status = "online"
		}
		fmt.Fprintf(out, "%s %-20s %s\n", mark, p.Username, status)
	}
}

func printMessage(out io.Writer, m session.Message) {
	fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.Kitchen), m.Username, m.Body)
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ephemera-sessions.db"
	}
	return filepath.Join(dir, "ephemera", "sessions.db")
}
