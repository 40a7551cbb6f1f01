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

	"hermes/internal/adminapi"
	"hermes/internal/auditlog"
	"hermes/internal/broker"
	"hermes/internal/config"
	"hermes/internal/reclaim"
)

var brokerConfigPath string

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run the broker",
}

var brokerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start mediating client and worker traffic",
	RunE:  runBroker,
}

func init() {
	brokerCmd.PersistentFlags().StringVarP(&brokerConfigPath, "config", "c", "broker.yml", "path to broker config file")
	brokerCmd.AddCommand(brokerRunCmd)
}

func runBroker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadBrokerConfig(brokerConfigPath)
	if err != nil {
		return err
	}

	b := broker.New(broker.Config{
		Endpoint:          cfg.Endpoint,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		HeartbeatLiveness: cfg.HeartbeatLiveness,
		ServiceTimeout:    cfg.ServiceTimeout(),
		Reclaimer:         reclaim.New(log),
	}, log)

	var writer *auditlog.Writer
	if cfg.AuditDBPath != "" {
		writer, err = auditlog.Open(cfg.AuditDBPath, log)
		if err != nil {
			return err
		}
		defer writer.Close()
		b.SetAuditor(writer)
	}

	if err := b.Bind(); err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if writer != nil {
		go writer.Run(ctx)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- b.Run(ctx) }()

	if cfg.AdminEndpoint != "" {
		admin := adminapi.New(cfg.AdminEndpoint, log, adminapi.FromBroker(b))
		go func() { errCh <- admin.Run(ctx) }()
	}

	err = <-errCh
	if err == context.Canceled {
		return nil
	}
	return err
}
