// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitech/bril/cmd/bril/board"
	"github.com/digitech/bril/cmd/bril/link"
)

func SendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <command> [args...]",
		Short: "Send one command to the board",
		Long: "Send one command to the board and exit.\n\n" +
			"Arguments follow the console syntax, for example:\n" +
			"  bril send setdac a 1.3\n" +
			"  bril send setid 23\n" +
			"  bril send setovert -5.5\n\n" +
			"Run 'bril commands' for the full list.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, err := cmd.Flags().GetBool("wait")
			if err != nil {
				return err
			}
			e, err := getEnv(cmd)
			if err != nil {
				return err
			}

			// Validate before touching the port.
			req, err := board.ParseRequest(args[0], args[1:], time.Now())
			if err != nil {
				return err
			}
			addr, err := board.NewAddress(e.settings.BoardID)
			if err != nil {
				return err
			}

			arb, err := openLink(e)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer arb.Close(context.Background())

			var replyTimeout time.Duration
			if wait {
				replyTimeout = e.settings.ReadTimeout
			}
			frame, reply, err := sendRequest(ctx, arb, addr, req, replyTimeout)
			if err != nil {
				return err
			}
			fmt.Printf("[Sent] % x\n", frame)
			if reply != "" {
				fmt.Println(reply)
			}
			return nil
		},
	}
	cmd.Flags().BoolP("wait", "w", false, "wait for the reply of the board and print it")
	return cmd
}

// sendRequest writes req under the permit. A positive replyTimeout also
// reads one reply line before the permit is released.
func sendRequest(ctx context.Context, arb *link.Arbiter, addr board.Address, req board.Request, replyTimeout time.Duration) ([]byte, string, error) {
	frame, err := req.Encode(addr)
	if err != nil {
		return nil, "", err
	}
	var reply string
	err = arb.WithExclusiveLink(ctx, func(c *link.Conn) error {
		if err := c.Write(frame); err != nil {
			return err
		}
		if replyTimeout <= 0 {
			return nil
		}
		line, err := c.ReadLine(replyTimeout)
		if err != nil {
			return err
		}
		reply = board.Classify(line).Text
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return frame, reply, nil
}
