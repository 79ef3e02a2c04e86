package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabomarinc/konsul-console/internal/config"
	"github.com/gabomarinc/konsul-console/internal/profile"
	"github.com/gabomarinc/konsul-console/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	allFlag := flag.Bool("all", false, "include persisted notification history")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}
	c := client.New(cfg.Server.Listen)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "chats":
		cmdChats(ctx, c, *jsonFlag)
	case "open":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: konsulctl open <chat-id>")
			os.Exit(1)
		}
		cmdOpen(ctx, c, args[1], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: konsulctl send <chat-id> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: konsulctl delete <chat-id>")
			os.Exit(1)
		}
		cmdDelete(ctx, c, args[1])
	case "notifications":
		cmdNotifications(ctx, c, *jsonFlag, *allFlag)
	case "read-all":
		cmdReadAll(ctx, c)
	case "token":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: konsulctl token <bearer-token>")
			os.Exit(1)
		}
		cmdToken(ctx, c, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: konsulctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show daemon status")
	fmt.Fprintln(os.Stderr, "  chats                  List chats, newest activity first")
	fmt.Fprintln(os.Stderr, "  open <chat-id>         Open a chat and mark it read")
	fmt.Fprintln(os.Stderr, "  send <chat-id> <text>  Send a message to a chat")
	fmt.Fprintln(os.Stderr, "  delete <chat-id>       Delete a chat upstream and locally")
	fmt.Fprintln(os.Stderr, "  notifications          Show the notification inbox (--all for history)")
	fmt.Fprintln(os.Stderr, "  read-all               Mark all notifications read")
	fmt.Fprintln(os.Stderr, "  token <bearer-token>   Install a fresh gateway token")
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	info, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(info)
		return
	}
	fmt.Printf("State:         %s\n", info.State)
	fmt.Printf("Workspace:     %s\n", info.Workspace)
	fmt.Printf("Unread chats:  %d\n", info.UnreadChats)
	fmt.Printf("Notifications: %d unread\n", info.UnreadNotifications)
	fmt.Printf("Consoles:      %d\n", info.Consoles)
	if info.LastCycle != nil {
		fmt.Printf("Last cycle:    %s (%d chats, %d new, %d changed)\n",
			info.LastCycle.At.Format(time.RFC3339), info.LastCycle.Chats,
			info.LastCycle.NewChats, info.LastCycle.Changed)
	}
}

func cmdChats(ctx context.Context, c *client.Client, jsonOut bool) {
	chats, err := c.Chats(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No chats yet.")
		return
	}
	for _, chat := range chats {
		marker := " "
		if !chat.Opened {
			marker = "*"
		}
		fmt.Printf("%s %-24s %-16s %4d msgs  %s\n", marker, chat.ID, chat.Name,
			chat.MessageCount, chat.LastActivity.Format("2006-01-02 15:04"))
	}
}

func cmdOpen(ctx context.Context, c *client.Client, chatID string, jsonOut bool) {
	if err := c.OpenChat(ctx, chatID); err != nil {
		fail(err)
	}
	msgs, err := c.Messages(ctx, chatID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %-9s %s\n", m.Timestamp.Format("15:04"), m.Role, m.Text)
	}
}

func cmdSend(ctx context.Context, c *client.Client, chatID, text string, jsonOut bool) {
	msg, err := c.SendMessage(ctx, chatID, text)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Sent %s to %s\n", msg.ID, chatID)
}

func cmdDelete(ctx context.Context, c *client.Client, chatID string) {
	if err := c.DeleteChat(ctx, chatID); err != nil {
		fail(err)
	}
	fmt.Printf("Deleted %s\n", chatID)
}

func cmdNotifications(ctx context.Context, c *client.Client, jsonOut, all bool) {
	if all {
		records, err := c.NotificationHistory(ctx, 100)
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(records)
			return
		}
		for _, r := range records {
			at := time.UnixMilli(r.CreatedAt)
			fmt.Printf("[%s] %s: %s\n", at.Format("2006-01-02 15:04"), r.ChatName, r.Summary)
		}
		return
	}

	entries, unread, err := c.Notifications(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("Inbox empty.")
		return
	}
	fmt.Printf("%d unread\n", unread)
	for _, e := range entries {
		fmt.Printf("[%s] %s: %s\n", e.CreatedAt.Format("15:04"), e.ChatName, e.Summary)
	}
}

func cmdReadAll(ctx context.Context, c *client.Client) {
	if err := c.MarkAllRead(ctx); err != nil {
		fail(err)
	}
	fmt.Println("All notifications marked read.")
}

func cmdToken(ctx context.Context, c *client.Client, token string) {
	if err := c.SetToken(ctx, token); err != nil {
		fail(err)
	}
	fmt.Println("Token installed.")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
