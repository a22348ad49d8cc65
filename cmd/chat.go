package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goaide/pkg/protocol"
)

const chatWrapWidth = 100

func chatCmd() *cobra.Command {
	var (
		baseURL    string
		token      string
		userID     string
		showEvents bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running goaide gateway from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("GOAIDE_HTTP_TOKEN")
			}
			return runChat(cmd.Context(), baseURL, token, userID, showEvents)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:18890", "gateway base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default: $GOAIDE_HTTP_TOKEN)")
	cmd.Flags().StringVar(&userID, "user", "cli", "user id to chat as")
	cmd.Flags().BoolVar(&showEvents, "events", false, "subscribe to /ws and print run/tool events")
	return cmd
}

func runChat(ctx context.Context, baseURL, token, userID string, showEvents bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conversationID := uuid.NewString()
	client := &http.Client{}

	if showEvents {
		go watchEvents(ctx, baseURL)
	}

	fmt.Printf("Connected to %s as %s. Ctrl-D to exit.\n", baseURL, userID)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if err := sendMessage(ctx, client, baseURL, token, userID, conversationID, line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	fmt.Println()
	return scanner.Err()
}

// sendMessage posts one turn over the SSE endpoint and prints chunks as
// they arrive.
func sendMessage(ctx context.Context, client *http.Client, baseURL, token, userID, conversationID, content string) error {
	body, err := json.Marshal(map[string]interface{}{
		"content":         content,
		"user_id":         userID,
		"conversation_id": conversationID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/message/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	streamed := false
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		data, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), "data: ")
		if !ok {
			continue
		}
		switch {
		case data == "[DONE]":
			fmt.Println()
			return nil
		case strings.HasPrefix(data, "[THREAD:"):
			// informative only; the conversation id pins the thread
		case strings.HasPrefix(data, "[ERROR] "):
			fmt.Println()
			return fmt.Errorf("%s", strings.TrimPrefix(data, "[ERROR] "))
		case streamed:
			fmt.Print(data)
		default:
			// First content frame. A lone full-reply frame gets wrapped;
			// live chunks print as they come.
			streamed = true
			fmt.Print(wrapText(data, chatWrapWidth))
		}
	}
	fmt.Println()
	return nil
}

// watchEvents tails the gateway's /ws event stream and prints run and
// tool activity alongside the conversation.
func watchEvents(ctx context.Context, baseURL string) {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"
	for ctx.Err() == nil {
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
				continue
			}
		}
		readEvents(ctx, conn)
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func readEvents(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame protocol.EventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		payload, _ := frame.Payload.(map[string]interface{})
		switch frame.Event {
		case protocol.EventToolCall:
			fmt.Fprintf(os.Stderr, "  %s %v\n", eventTag("tool"), payload["tool"])
		case protocol.EventRunFailed:
			fmt.Fprintf(os.Stderr, "  %s %v\n", eventTag("fail"), payload["error"])
		}
	}
}

// eventTag renders a fixed-width label so event lines align regardless
// of the label's display width.
func eventTag(label string) string {
	return "[" + runewidth.FillRight(label, 4) + "]"
}

// wrapText breaks s into lines no wider than width display cells,
// preferring space boundaries.
func wrapText(s string, width int) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		b.WriteString(wrapLine(line, width))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func wrapLine(line string, width int) string {
	if runewidth.StringWidth(line) <= width {
		return line
	}
	var b strings.Builder
	current := 0
	for _, word := range strings.Fields(line) {
		w := runewidth.StringWidth(word)
		if current > 0 && current+1+w > width {
			b.WriteString("\n")
			current = 0
		} else if current > 0 {
			b.WriteString(" ")
			current++
		}
		b.WriteString(word)
		current += w
	}
	return b.String()
}
