// Command chatcli opens a conversation with a brand and chats in the
// terminal. Lines read from stdin are sent; new messages are printed as
// they are polled.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/npezzotti/brandchat/internal/chatclient"
)

var (
	baseURL      string
	email        string
	password     string
	brandId      string
	conversation string
	asBrand      bool
)

func main() {
	flag.StringVar(&baseURL, "url", "http://localhost:8000", "brandchat server url")
	flag.StringVar(&email, "email", "demo-user@example.com", "account email")
	flag.StringVar(&password, "password", "", "account password")
	flag.StringVar(&brandId, "brand", "brand-demo-123", "brand to chat with, or to act for with -as-brand")
	flag.StringVar(&conversation, "conversation", "", "conversation id, required with -as-brand")
	flag.BoolVar(&asBrand, "as-brand", false, "reply on behalf of the brand")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatcli] ", log.LstdFlags)

	if password == "" {
		logger.Fatal("-password is required")
	}

	var opts []chatclient.Option
	if asBrand {
		if conversation == "" {
			logger.Fatal("-conversation is required with -as-brand")
		}
		opts = append(opts, chatclient.AsBrand(brandId))
	}

	client, err := chatclient.New(baseURL, opts...)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := client.Login(ctx, email, password); err != nil {
		logger.Fatal("login:", err)
	}
	defer client.Logout(context.Background())

	if !asBrand {
		conv, created, err := client.OpenConversation(ctx, brandId)
		if err != nil {
			logger.Fatal("open conversation:", err)
		}
		if created {
			logger.Printf("started conversation %s", conv.Id)
		}
		conversation = conv.Id
	}

	session := chatclient.NewSession(client, conversation)
	poller := chatclient.NewPoller(session, chatclient.DefaultPollInterval, logger)

	var (
		mu      sync.Mutex
		printed = make(map[string]chatclient.State)
	)
	poller.OnUpdate = func(entries []chatclient.Entry) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range entries {
			if state, ok := printed[e.ClientMessageId+e.Id]; ok && state == e.State {
				continue
			}
			printed[e.ClientMessageId+e.Id] = e.State
			printEntry(e)
		}
	}
	poller.OnError = func(err error) {
		if chatclient.IsAPIError(err, 401) {
			logger.Println("session expired, please log in again")
			stop()
		}
	}

	go poller.Run(ctx)

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
			handleLine(ctx, session, logger, strings.TrimSpace(line))
		}
	}
}

func handleLine(ctx context.Context, session *chatclient.Session, logger *log.Logger, line string) {
	switch {
	case line == "":
	case line == "/retry":
		for _, e := range session.Messages() {
			if e.State != chatclient.Failed {
				continue
			}
			if _, err := session.Retry(ctx, e.Id); err != nil {
				logger.Println("retry:", err)
			}
		}
	default:
		if _, err := session.Send(ctx, line); err != nil {
			logger.Println("send failed, type /retry to resend:", err)
		}
	}
}

func printEntry(e chatclient.Entry) {
	switch e.State {
	case chatclient.Pending:
		fmt.Printf("  ... %s\n", e.Content)
	case chatclient.Failed:
		fmt.Printf("  !!! %s\n", e.Content)
	default:
		fmt.Printf("%s %-5s %s\n", e.CreatedAt.Local().Format("15:04"), e.SenderType, e.Content)
	}
}
