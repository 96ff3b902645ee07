package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/coupserver/network"
	"github.com/wfunc/coupserver/protocol"
)

var messageNames = map[uint16]string{
	protocol.MsgJoined:          "joined",
	protocol.MsgJoinRejected:    "join-rejected",
	protocol.MsgYouAreLeader:    "you-are-leader",
	protocol.MsgRosterUpdate:    "roster",
	protocol.MsgReadyConfirm:    "ready",
	protocol.MsgGameStarted:     "game-started",
	protocol.MsgStateUpdate:     "state",
	protocol.MsgLogEntry:        "log",
	protocol.MsgPrivateHand:     "hand",
	protocol.MsgExchangeOptions: "exchange-options",
	protocol.MsgGameOver:        "game-over",
	protocol.MsgRejected:        "rejected",
	protocol.MsgRoomClosed:      "room-closed",
}

// client tracks the roster so targets can be typed by name.
type client struct {
	conn  *websocket.Conn
	mutex sync.Mutex
	ids   map[string]string
}

// send formats and sends a message to the WebSocket server.
func (c *client) send(msg protocol.Inbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	packet, err := network.EncodePacket(msg.MsgID(), data)
	if err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, packet)
}

func (c *client) names() map[string]string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make(map[string]string, len(c.ids))
	for k, v := range c.ids {
		out[k] = v
	}
	return out
}

func (c *client) readLoop(done chan<- struct{}) {
	defer close(done)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			log.Println("Read error:", err)
			return
		}
		packet, err := network.DecodePacket(message)
		if err != nil {
			log.Printf("Received invalid packet of size %d", len(message))
			continue
		}
		if packet.MsgID == protocol.MsgRosterUpdate {
			var roster protocol.RosterUpdate
			if err := json.Unmarshal(packet.Data, &roster); err == nil {
				c.mutex.Lock()
				c.ids = make(map[string]string, len(roster.Participants))
				for _, p := range roster.Participants {
					c.ids[p.Name] = p.ID
				}
				c.mutex.Unlock()
			}
		}
		name, ok := messageNames[packet.MsgID]
		if !ok {
			name = fmt.Sprintf("msg %d", packet.MsgID)
		}
		log.Printf("<- %s: %s", name, packet.Data)
	}
}

func createRoom(server string) (string, error) {
	resp, err := http.Post(strings.TrimRight(server, "/")+"/rooms", "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create room: %s", resp.Status)
	}
	var body struct {
		Room string `json:"room"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Room, nil
}

func main() {
	server := flag.String("server", "http://localhost:8080", "game server base URL")
	roomCode := flag.String("room", "", "room code to join; empty creates a room")
	name := flag.String("name", "", "display name to claim on connect")
	heartbeat := flag.Duration("heartbeat", 15*time.Second, "heartbeat interval")
	flag.Parse()

	code := *roomCode
	if code == "" {
		var err error
		if code, err = createRoom(*server); err != nil {
			log.Fatalf("Create room failed: %v", err)
		}
		log.Printf("Created room %s", code)
	}

	u, err := url.Parse(*server)
	if err != nil {
		log.Fatalf("Bad server url: %v", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	u.RawQuery = url.Values{"room": {code}}.Encode()
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	c := &client{conn: conn, ids: make(map[string]string)}
	done := make(chan struct{})
	go c.readLoop(done)

	go func() {
		ticker := time.NewTicker(*heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.send(protocol.Heartbeat{}); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	if *name != "" {
		if err := c.send(protocol.ClaimName{Name: *name}); err != nil {
			log.Fatalf("Write error: %v", err)
		}
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	log.Println("Client started. Type 'help' for commands.")

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			c.close(done)
			return
		case line, ok := <-lines:
			if !ok {
				c.close(done)
				return
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "help":
				fmt.Println(helpText)
				continue
			case "quit":
				c.close(done)
				return
			}
			msg, err := parseCommand(line, c.names())
			if err != nil {
				log.Println(err)
				continue
			}
			if err := c.send(msg); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}

func (c *client) close(done <-chan struct{}) {
	c.mutex.Lock()
	err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mutex.Unlock()
	if err != nil {
		log.Println("Write close error:", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
