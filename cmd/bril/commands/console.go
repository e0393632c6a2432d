// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/digitech/bril/cmd/bril/board"
	"github.com/digitech/bril/cmd/bril/link"
)

func ConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Send commands to the board interactively",
		Long: "Start an interactive shell that sends commands to the board and prints\n" +
			"the first line of every reply. Use 'bril listen' to also log everything\n" +
			"the board sends and poll it periodically.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := getEnv(cmd)
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
			defer arb.Close(context.Background())

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			c := newConsole(arb, addr, e.settings.ReadTimeout, e.log)
			sh := c.shell(ctx)
			go func() {
				<-ctx.Done()
				sh.Close()
			}()
			sh.Run()
			return nil
		},
	}
	return cmd
}

// console turns typed commands into frames. When reply is zero the console
// only writes; replies are then picked up by the reader of 'bril listen'.
type console struct {
	arb   *link.Arbiter
	addr  board.Address
	reply time.Duration
	log   logrus.FieldLogger
	now   func() time.Time
}

func newConsole(arb *link.Arbiter, addr board.Address, reply time.Duration, log logrus.FieldLogger) *console {
	return &console{
		arb:   arb,
		addr:  addr,
		reply: reply,
		log:   log.WithField("component", "console"),
		now:   time.Now,
	}
}

// run executes one console command and returns what to print.
func (c *console) run(ctx context.Context, name string, args []string) (string, error) {
	req, err := board.ParseRequest(name, args, c.now())
	if err != nil {
		return "", err
	}
	frame, reply, err := sendRequest(ctx, c.arb, c.addr, req, c.reply)
	if err != nil {
		return "", err
	}
	c.log.WithFields(logrus.Fields{
		"command": req.Command.String(),
		"board":   c.addr.ID(),
	}).Debug("sent command")
	out := fmt.Sprintf("[Sent] % x", frame)
	if reply != "" {
		out += "\n" + reply
	}
	return out, nil
}

// selectBoard changes the board the following commands address.
func (c *console) selectBoard(args []string) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("Addressing board %s", c.addr), nil
	}
	if len(args) != 1 {
		return "", fmt.Errorf("%w: usage: board [ID]", board.ErrInvalidArgument)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return "", fmt.Errorf("%w: board id %q", board.ErrInvalidArgument, args[0])
	}
	addr, err := board.NewAddress(id)
	if err != nil {
		return "", err
	}
	c.addr = addr
	return fmt.Sprintf("Addressing board %s", c.addr), nil
}

func (c *console) shell(ctx context.Context) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt("bril> ")
	sh.Println("Enter \"commands\" for the command list, \"exit\" to quit.")

	for _, cmd := range board.Catalog() {
		name := cmd.String()
		help := cmd.Help()
		if cmd.Usage() != "" {
			help = cmd.Usage() + "  " + help
		}
		sh.AddCmd(&ishell.Cmd{
			Name: name,
			Help: help,
			Func: func(ic *ishell.Context) {
				out, err := c.run(ctx, name, ic.Args)
				if err != nil {
					ic.Err(err)
					return
				}
				ic.Println(out)
			},
		})
	}

	sh.AddCmd(&ishell.Cmd{
		Name:    "commands",
		Aliases: []string{"list"},
		Help:    "print the command table",
		Func: func(ic *ishell.Context) {
			ic.Print(catalogTable())
		},
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "board",
		Help: "[ID]  show or change the addressed board",
		Func: func(ic *ishell.Context) {
			out, err := c.selectBoard(ic.Args)
			if err != nil {
				ic.Err(err)
				return
			}
			ic.Println(out)
		},
	})
	sh.NotFound(func(ic *ishell.Context) {
		ic.Err(fmt.Errorf("%w: '%s'. Enter \"commands\" for the command list", board.ErrUnknownCommand, strings.Join(ic.RawArgs, " ")))
	})
	return sh
}
