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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hermes/internal/config"
	"hermes/internal/envelope"
	"hermes/internal/worker"
)

var workerConfigPath string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker",
}

var workerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the broker and serve one service",
	RunE:  runWorker,
}

func init() {
	workerCmd.PersistentFlags().StringVarP(&workerConfigPath, "config", "c", "worker.yml", "path to worker config file")
	workerCmd.AddCommand(workerRunCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWorkerConfig(workerConfigPath)
	if err != nil {
		return err
	}

	registry := envelope.NewRegistry()
	registry.Register("echo", func(args [][]byte) ([][]byte, error) {
		return args, nil
	})

	session := worker.New(worker.Config{
		BrokerEndpoint:   cfg.Broker,
		Service:          cfg.Service,
		Identity:         cfg.Identity,
		ReconnectInitial: cfg.ReconnectInitial(),
	}, log, registry.Dispatch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = session.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
