// Command campuslink is a terminal client for the CampusLink campus network:
// sign in, browse suggestions, and chat over the realtime connection.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/campuslink/campuslink/internal/api"
	"github.com/campuslink/campuslink/internal/config"
	"github.com/campuslink/campuslink/internal/localstore"
	"github.com/campuslink/campuslink/internal/logging"
	"github.com/campuslink/campuslink/internal/match"
	"github.com/campuslink/campuslink/internal/models"
	"github.com/campuslink/campuslink/internal/session"
)

var (
	email    = flag.String("email", "", "account email (omit to reuse the stored session)")
	password = flag.String("password", "", "account password")
)

func main() {
	flag.Parse()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	store, err := localstore.New(cfg.StorePath)
	if err != nil {
		log.Fatal("open local store", zap.Error(err))
	}
	defer store.Close()

	token := ""
	client := api.NewClient(cfg.APIBaseURL, func() string { return token }, func() {
		// Stale credentials: same as the web client clearing localStorage.
		if err := store.Clear(); err != nil {
			log.Warn("clear local store", zap.Error(err))
		}
	})

	user, token := signIn(log, client, store)

	students, err := client.GetAllStudents()
	if err != nil {
		log.Fatal("fetch roster", zap.Error(err))
	}
	printSuggestions(os.Stdout, user, students)

	sess := session.New(cfg.WSURL, user.ID, log)
	defer sess.Close()
	if err := sess.Connect(); err != nil {
		log.Warn("realtime connection failed, retrying in background", zap.Error(err))
	}
	if chats, err := client.GetUserChats(user.ID); err != nil {
		log.Warn("fetch chats", zap.Error(err))
	} else {
		sess.SetChats(chats)
	}

	unsubscribe := sess.Subscribe(func(e session.Event) {
		switch e {
		case session.EventMessages:
			msgs := sess.Messages()
			if len(msgs) == 0 {
				return
			}
			if last := msgs[len(msgs)-1]; last.SenderID != user.ID {
				fmt.Printf("<< %s\n", last.Content)
			}
		case session.EventNotifications:
			for _, n := range sess.Notifications() {
				fmt.Printf("[%d unread from %s %s]\n", n.Count, n.FirstName, n.LastName)
			}
		}
	})
	defer unsubscribe()

	repl(sess, students)
}

// signIn restores the stored session or signs in with the given flags.
func signIn(log *zap.Logger, client *api.Client, store *localstore.Store) (*models.Student, string) {
	if *email == "" {
		token, user, err := store.Session()
		if err == nil {
			log.Info("restored session", zap.String("user", user.FirstName))
			return user, token
		}
		fmt.Fprintln(os.Stderr, "no stored session; pass -email and -password")
		os.Exit(1)
	}

	resp, err := client.Signin(*email, *password)
	if err != nil {
		log.Fatal("sign in", zap.Error(err))
	}
	if err := store.SaveSession(resp.Token, resp.Student); err != nil {
		log.Warn("persist session", zap.Error(err))
	}
	return &resp.Student, resp.Token
}

func printSuggestions(w io.Writer, user *models.Student, students []models.Student) {
	suggestions := match.Suggestions(user.ID, students)
	if len(suggestions) == 0 {
		fmt.Fprintln(w, "No suggestions yet: add more skills and interests to your profile.")
		return
	}
	fmt.Fprintln(w, "People you may know:")
	for _, s := range suggestions {
		fmt.Fprintf(w, "  #%d %s %s (%s, %s) - %d shared: %s\n",
			s.Student.ID, s.Student.FirstName, s.Student.LastName,
			s.Student.Branch, s.Student.Year,
			s.MatchCount, strings.Join(s.CommonTags, ", "))
	}
}

func repl(sess *session.Session, students []models.Student) {
	names := make(map[int]string, len(students))
	for _, s := range students {
		names[s.ID] = s.FirstName + " " + s.LastName
	}

	fmt.Println("commands: chats | open <id> | send <text> | bell | quit")
	scanner := bufio.NewScanner(os.Stdin)
	open := 0
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		cmd, rest, _ := strings.Cut(line, " ")

		switch cmd {
		case "chats":
			for _, c := range sess.Chats() {
				marker := " "
				if c.User.IsOnline {
					marker = "*"
				}
				summary := ""
				if c.LastMessage != nil {
					summary = fmt.Sprintf("%q (%d unread)", c.LastMessage.Content, c.LastMessage.UnreadCount)
				}
				fmt.Printf("  %s #%d %s %s %s\n", marker, c.User.ID, c.User.FirstName, c.User.LastName, summary)
			}
		case "open":
			id, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				fmt.Println("usage: open <student id>")
				continue
			}
			if err := sess.OpenChat(id); err != nil {
				fmt.Println("cannot open chat:", err)
				continue
			}
			open = id
			fmt.Printf("chatting with %s\n", names[id])
		case "send":
			if open == 0 {
				fmt.Println("open a chat first")
				continue
			}
			if err := sess.SendMessage(open, rest); err != nil {
				fmt.Println("not sent:", err)
			}
		case "bell":
			if err := sess.RequestNotifications(); err != nil {
				fmt.Println("unavailable:", err)
			}
		case "quit", "exit":
			return
		case "":
		default:
			fmt.Println("commands: chats | open <id> | send <text> | bell | quit")
		}
	}
}
