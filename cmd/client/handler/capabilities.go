package handler

import (
	"context"
	"time"

	"github.com/HMasataka/huddle/cmd/client/lib"
)

type CapabilitiesCommand struct {
	BaseCommand
	RoomID  string        `long:"room" description:"Room ID" required:"true"`
	Timeout time.Duration `long:"timeout" description:"Request timeout" default:"15s"`
}

func NewCapabilitiesCommand() *CapabilitiesCommand {
	return &CapabilitiesCommand{}
}

func (cmd *CapabilitiesCommand) Execute(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	c, err := client.Dial(ctx, cmd.ServerURL, cmd.UserID, cmd.Name, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.JoinRoom(ctx, cmd.RoomID); err != nil {
		return err
	}

	caps, err := c.GetRouterRtpCapabilities(ctx, cmd.RoomID)
	if err != nil {
		return err
	}

	return printJSON("RtpCapabilities", caps)
}
