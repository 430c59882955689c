package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/chatclient"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/transport/protocol"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

const usage = `commands:
  /peer <userId> <text>   send a direct message
  /group <groupId> <text> send to a group
  /to <id> <text>         let the server resolve the target
  /who                    show online users
  /quit                   exit`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return errors.New("CHATRELAY_USERNAME and CHATRELAY_PASSWORD are required")
	}
	color.Enable = cfg.Colours

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: "text"})

	base, err := url.Parse(cfg.Server)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	token, err := authenticate(base, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	options := chatclient.DefaultClientOptions()
	options.Logger = logger
	options.Token = token
	options.OnStateChange = func(connected bool) {
		if connected {
			color.Green.Println("* connected")
		} else {
			color.Yellow.Println("* disconnected")
		}
	}

	client := chatclient.NewClient(websocketURL(*base), options)
	view := &roster{}
	client.OnMessage(domain.MessageTypePresence, view.update)
	client.OnMessage(domain.MessageTypeChat, printChat)
	client.OnMessage(domain.MessageTypeDeliveryFailed, printDeliveryFailed)

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	fmt.Println(usage)
	lines := readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			return <-runErr
		case err := <-runErr:
			return err
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				stop()
				return <-runErr
			}
			if err := handleLine(ctx, client, view, line); err != nil {
				color.Red.Println(err.Error())
			}
		}
	}
}

func handleLine(ctx context.Context, client *chatclient.Client, view *roster, line string) error {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	switch fields[0] {
	case "":
		return nil
	case "/who":
		view.render()
		return nil
	case "/peer", "/group", "/to":
		if len(fields) < 3 {
			return fmt.Errorf("usage: %s <id> <text>", fields[0])
		}
		req := domain.ChatRequest{Recipient: fields[1], Text: fields[2]}
		switch fields[0] {
		case "/peer":
			req.Kind = domain.TargetPeer
		case "/group":
			req.Kind = domain.TargetGroup
		}
		return client.SendChat(ctx, req)
	default:
		return errors.New(usage)
	}
}

// authenticate logs in, registering first when asked, and returns the
// session token.
func authenticate(base *url.URL, cfg Config) (string, error) {
	if cfg.Register {
		_, err := post(base, "/register", map[string]string{"username": cfg.Username, "password": cfg.Password})
		if err != nil {
			return "", fmt.Errorf("register: %w", err)
		}
	}

	resp, err := post(base, "/login", map[string]string{"usernameOrEmail": cfg.Username, "password": cfg.Password})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	for _, c := range resp.Cookies() {
		if c.Name == "token" {
			return c.Value, nil
		}
	}
	return "", errors.New("login: server set no token cookie")
}

func post(base *url.URL, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(base.JoinPath(path).String(), "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return nil, fmt.Errorf("%s: %s", resp.Status, failure.Error)
	}
	return resp, nil
}

func websocketURL(base url.URL) url.URL {
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	default:
		base.Scheme = "ws"
	}
	return *base.JoinPath("/ws")
}

func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

type roster struct {
	mu     sync.Mutex
	online domain.Roster
}

func (r *roster) update(_ context.Context, msg *domain.Message) error {
	var p domain.PresencePayload
	if err := protocol.DecodePayload(msg, &p); err != nil {
		return err
	}

	r.mu.Lock()
	r.online = p.Online
	r.mu.Unlock()

	color.Cyan.Printf("* %d online\n", len(p.Online))
	return nil
}

func (r *roster) render() {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User ID", "Username"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, ident := range r.online {
		table.Append([]string{ident.UserID, ident.DisplayName})
	}
	table.Render()
}

func printChat(_ context.Context, msg *domain.Message) error {
	var chat domain.ChatDelivered
	if err := protocol.DecodePayload(msg, &chat); err != nil {
		return err
	}

	header := fmt.Sprintf("[%s] %s -> %s (%s)", chat.CreatedAt.Local().Format("15:04:05"), chat.Sender, chat.Recipient, chat.Kind)
	fmt.Println(color.New(color.FgGreen, color.OpBold).Render(header))
	if chat.Text != "" {
		fmt.Println("  " + chat.Text)
	}
	if chat.File != "" {
		color.Gray.Printf("  attachment: /uploads/%s\n", chat.File)
	}
	return nil
}

func printDeliveryFailed(_ context.Context, msg *domain.Message) error {
	var failed domain.DeliveryFailed
	if err := protocol.DecodePayload(msg, &failed); err != nil {
		return err
	}
	color.Red.Printf("* message to %s was not delivered: %s\n", failed.Recipient, failed.Reason)
	return nil
}
