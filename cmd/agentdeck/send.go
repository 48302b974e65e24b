// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/agentdeck/agentdeck/agentapi"
	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
	"github.com/agentdeck/agentdeck/mirror"
)

func sendCommand() *cli.Command {
	var c console
	var sessionID string
	var confirmTimeout time.Duration
	return &cli.Command{
		Name:    "send",
		Summary: "Send a prompt to a session",
		Description: `Send a prompt to a session.

The prompt is mirrored optimistically, submitted to the server, and
the command waits until the stored message comes back over the push
channel. On confirmation timeout the message id is still printed; the
prompt was accepted, only the echo is outstanding.`,
		Usage: "agentdeck send --session SESSION TEXT...",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			c.addFlags(flagSet)
			flagSet.StringVar(&sessionID, "session", "", "session id to prompt")
			flagSet.DurationVar(&confirmTimeout, "confirm-timeout", 10*time.Second,
				"how long to wait for the push-channel echo")
			return flagSet
		},
		Run: func(args []string) error {
			if sessionID == "" || len(args) == 0 {
				return fmt.Errorf("usage: agentdeck send --session SESSION TEXT...")
			}
			deck, err := c.dial()
			if err != nil {
				return err
			}
			return send(deck, sessionID, strings.Join(args, " "), confirmTimeout)
		},
	}
}

// send mirrors the prompt optimistically, submits it, and waits for
// the push channel to echo the stored message back.
func send(deck *deck, sessionID, text string, confirmTimeout time.Duration) error {
	dialer := agentapi.NewDialer(agentapi.DialerConfig{Logger: deck.logger})
	engine, err := mirror.New(mirror.Config{
		Transport:      dialerTransport{dialer},
		Fetcher:        dialer,
		Logger:         deck.logger,
		InitialBackoff: deck.cfg.Backoff.Initial.Std(),
		MaxBackoff:     deck.cfg.Backoff.Max.Std(),
		RetryCountdown: deck.cfg.RetryCountdown.Std(),
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	key := deck.key()
	release := engine.Follow(key)
	defer release()

	// Subscribe before sending so the echo cannot slip between the
	// send and the watch.
	subscription := engine.Cache().WatchMessages(key, sessionID)
	defer subscription.Close()

	placeholder := engine.Cache().AppendOptimistic(key, sessionID, text)
	deck.logger.Debug("optimistic message staged", "id", placeholder.Info.ID)

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	message, err := deck.client.SendMessage(ctx, deck.server.Directory, sessionID,
		agentapi.TextMessage(text))
	if err != nil {
		return err
	}

	if !awaitEcho(engine.Cache(), subscription, key, sessionID, message.ID, confirmTimeout) {
		deck.logger.Warn("push confirmation not observed", "id", message.ID,
			"timeout", confirmTimeout)
	}
	fmt.Println(message.ID)
	return nil
}

// awaitEcho waits until the cached message list contains messageID,
// meaning the push channel delivered the stored message (and the merge
// retired the optimistic placeholder). Returns false on timeout.
func awaitEcho(cache *mirror.Cache, subscription *mirror.Subscription, key mirror.ChannelKey, sessionID, messageID string, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if messages, ok := cache.Messages(key, sessionID); ok {
			for _, message := range messages {
				if message.Info.ID == messageID {
					return true
				}
			}
		}
		select {
		case <-subscription.C:
		case <-deadline.C:
			return false
		}
	}
}
