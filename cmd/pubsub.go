// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hermes/internal/pubsub"
)

var (
	pubEndpoint string
	pubTopic    string

	subEndpoint string
	subTopic    string
)

var pubCmd = &cobra.Command{
	Use:   "pub [message]",
	Short: "Publish a message on the pub/sub sidecar",
	Args:  cobra.ExactArgs(1),
	RunE:  runPub,
}

var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Subscribe to the pub/sub sidecar and print messages",
	RunE:  runSub,
}

func init() {
	pubCmd.Flags().StringVar(&pubEndpoint, "endpoint", "tcp://*:5556", "PUB socket bind endpoint")
	pubCmd.Flags().StringVar(&pubTopic, "topic", "", "topic to publish under")

	subCmd.Flags().StringVar(&subEndpoint, "endpoint", "tcp://localhost:5556", "PUB socket endpoint to connect to")
	subCmd.Flags().StringVar(&subTopic, "topic", "", "topic filter (empty subscribes to everything)")
}

func runPub(cmd *cobra.Command, args []string) error {
	p, err := pubsub.NewPublisher(pubEndpoint, log)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Publish(pubTopic, [][]byte{[]byte(args[0])})
	return nil
}

func runSub(cmd *cobra.Command, args []string) error {
	s, err := pubsub.NewSubscriber(subEndpoint, subTopic, log, func(topic string, body [][]byte) {
		fmt.Printf("[%s]", topic)
		for _, frame := range body {
			fmt.Printf(" %s", frame)
		}
		fmt.Println()
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = s.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
