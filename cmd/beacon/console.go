package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/app"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/domain"
	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

const historyTail = 20

// console is the interactive stdin surface of the run command: plain lines
// are sent as chat, slash commands inspect and steer the node.
type console struct {
	rt   *app.Runtime
	stop func()
}

func newConsole(rt *app.Runtime, stop func()) *console {
	return &console{rt: rt, stop: stop}
}

func (c *console) Start(ctx context.Context) {
	go c.printEvents(ctx)
	go c.readLoop(ctx)
}

func (c *console) readLoop(ctx context.Context) {
	prompt()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			prompt()
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.dispatch(ctx, line); quit {
				return
			}
			prompt()
			continue
		}
		c.sendChat(line)
		prompt()
	}
}

// dispatch runs one slash command and reports whether the console should
// exit.
func (c *console) dispatch(ctx context.Context, line string) bool {
	parts := strings.SplitN(line, " ", 2)
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch parts[0] {
	case "/peers":
		c.printPeers()
	case "/connect":
		if arg == "" {
			fmt.Println("usage: /connect <peer-id>")
			break
		}
		if err := c.rt.Nearby.ConnectToPeer(ctx, arg); err != nil {
			fmt.Printf("connect failed: %v\n", err)
		}
	case "/disconnect":
		if err := c.rt.Nearby.Disconnect(ctx); err != nil {
			fmt.Printf("disconnect failed: %v\n", err)
		}
	case "/history":
		c.printHistory()
	case "/help":
		fmt.Println("  /peers             list known peers")
		fmt.Println("  /connect <id>      join a peer's group")
		fmt.Println("  /disconnect        leave the current group")
		fmt.Println("  /history           show recent messages")
		fmt.Println("  /quit              exit")
		fmt.Println("  anything else is sent as a chat message")
	case "/quit":
		c.stop()

		return true
	default:
		fmt.Printf("unknown command: %s (try /help)\n", parts[0])
	}

	return false
}

func (c *console) sendChat(text string) {
	result := <-c.rt.Messenger.SendText(text)
	if result.Err != nil {
		fmt.Printf("send failed: %v\n", result.Err)
	}
}

func (c *console) printPeers() {
	peers := c.rt.Directory.Snapshot()
	if len(peers) == 0 {
		fmt.Println("no peers discovered yet")

		return
	}
	for _, p := range peers {
		fmt.Println(formatPeerLine(p))
	}
}

func formatPeerLine(p domain.Peer) string {
	marker := " "
	if p.Status == events.PeerStateConnected {
		marker = "*"
	}
	flags := ""
	if p.Emergency {
		flags = "  EMERGENCY"
	}

	return fmt.Sprintf("  %s %-20s %-12s signal %d/5  %s%s", marker, p.DisplayName(), p.Status, p.Signal, p.ID, flags)
}

func (c *console) printHistory() {
	messages := c.rt.MessageLog.Messages()
	if len(messages) == 0 {
		fmt.Println("no messages yet")

		return
	}
	start := 0
	if len(messages) > historyTail {
		start = len(messages) - historyTail
	}
	for _, m := range messages[start:] {
		fmt.Println(formatHistoryLine(m))
	}
}

func formatHistoryLine(m domain.ChatMessage) string {
	name := m.SenderName
	if m.Mine {
		name = "me"
	}

	return fmt.Sprintf("  %s [%s] %s", m.SentAt.Local().Format("15:04:05"), name, m.Text)
}

// printEvents mirrors bus traffic onto the terminal so incoming chat and
// link changes show up between prompts.
func (c *console) printEvents(ctx context.Context) {
	b := c.rt.Bus
	msgSub := b.Subscribe(events.TopicMessage)
	presenceSub := b.Subscribe(events.TopicPresence)
	socketSub := b.Subscribe(events.TopicSocket)
	supportSub := b.Subscribe(events.TopicSupport)
	defer b.Unsubscribe(msgSub, events.TopicMessage)
	defer b.Unsubscribe(presenceSub, events.TopicPresence)
	defer b.Unsubscribe(socketSub, events.TopicSocket)
	defer b.Unsubscribe(supportSub, events.TopicSupport)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgSub:
			if !ok {
				return
			}
			msg, ok := raw.(domain.ChatMessage)
			if !ok || msg.Mine {
				continue
			}
			notice("[%s] %s", msg.SenderName, msg.Text)
		case raw, ok := <-presenceSub:
			if !ok {
				return
			}
			presence, ok := raw.(events.PeerPresence)
			if !ok {
				continue
			}
			verb := "joined the group"
			if presence.Kind == events.PresenceLeft {
				verb = "left the group"
			}
			notice("* %s %s", presence.Name, verb)
		case raw, ok := <-socketSub:
			if !ok {
				return
			}
			switch event := raw.(type) {
			case events.SocketConnected:
				notice("* chat link established with %s (%s)", event.RemoteAddr, event.Role)
			case events.SocketDisconnected:
				notice("* chat link lost: %s", event.Reason)
			case events.SocketConnectFailed:
				notice("* chat link failed after %d attempts: %s", event.Attempts, event.Err)
			}
		case raw, ok := <-supportSub:
			if !ok {
				return
			}
			support, ok := raw.(events.SupportNotice)
			if !ok || support.Supported {
				continue
			}
			notice("* nearby radio unavailable: %s", support.Reason)
		}
	}
}

func notice(format string, args ...any) {
	fmt.Printf("\n"+format+"\n", args...)
	prompt()
}

func prompt() {
	fmt.Print("> ")
}
