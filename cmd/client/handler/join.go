package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HMasataka/huddle/cmd/client/lib"
)

type BaseCommand struct {
	ServerURL string `long:"server" description:"Signaling websocket URL" default:"ws://localhost:8080/ws"`
	UserID    string `long:"user-id" description:"User ID" required:"true"`
	Name      string `long:"name" description:"Display name"`
}

type JoinCommand struct {
	BaseCommand
	RoomID string `long:"room" description:"Room ID" required:"true"`
}

func NewJoinCommand() *JoinCommand {
	return &JoinCommand{}
}

// Execute joins the room and prints every event until interrupted.
func (cmd *JoinCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, cmd.ServerURL, cmd.UserID, cmd.Name, printEvent)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.JoinRoom(ctx, cmd.RoomID)
	if err != nil {
		return err
	}
	if err := printJSON("Response", resp); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return c.LeaveRoom(context.Background(), cmd.RoomID)
	case <-c.Done():
		return fmt.Errorf("connection closed by server")
	}
}

func printEvent(method string, params json.RawMessage) {
	fmt.Printf("Event %s: %s\n", method, params)
}

func printJSON(label string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", label, err)
	}
	fmt.Printf("%s: %s\n", label, b)
	return nil
}
