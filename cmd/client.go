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
	"time"

	"github.com/spf13/cobra"

	"hermes/internal/client"
	"hermes/internal/envelope"
)

var (
	clientBrokerEndpoint string
	clientService        string
	clientMethod         string
	clientTimeout        time.Duration
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Call services through the broker",
}

var clientRequestCmd = &cobra.Command{
	Use:   "request [args...]",
	Short: "Send one request and print the reply",
	RunE:  runClientRequest,
}

func init() {
	clientCmd.PersistentFlags().StringVar(&clientBrokerEndpoint, "broker", "tcp://localhost:5555", "broker endpoint")
	clientCmd.PersistentFlags().StringVar(&clientService, "service", "", "service name to call")
	clientCmd.PersistentFlags().StringVar(&clientMethod, "method", "echo", "method name within the service")
	clientCmd.PersistentFlags().DurationVar(&clientTimeout, "timeout", 10*time.Second, "request timeout")
	clientCmd.AddCommand(clientRequestCmd)
}

func runClientRequest(cmd *cobra.Command, args []string) error {
	if clientService == "" {
		return fmt.Errorf("client: --service is required")
	}

	c, err := client.New(client.Config{BrokerEndpoint: clientBrokerEndpoint, RequestTimeout: clientTimeout}, log)
	if err != nil {
		return err
	}
	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	go c.Run(ctx)

	argFrames := make([][]byte, len(args))
	for i, a := range args {
		argFrames[i] = []byte(a)
	}

	reply, err := c.Request(ctx, clientService, envelope.Encode(clientMethod, argFrames))
	if err != nil {
		return err
	}
	for _, frame := range reply {
		fmt.Println(string(frame))
	}
	return nil
}
