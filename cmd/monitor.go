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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var monitorAdminEndpoint string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch broker service state in a terminal dashboard",
	RunE:  runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorAdminEndpoint, "admin", "http://127.0.0.1:8080", "broker admin API base URL")
	brokerCmd.AddCommand(monitorCmd)
}

type monitorService struct {
	Name             string `json:"name"`
	Workholic        bool   `json:"workholic"`
	Workers          int    `json:"workers"`
	Waiting          int    `json:"waiting"`
	QueuedRequests   int    `json:"queued_requests"`
	DesignatedWorker string `json:"designated_worker"`
}

type tickMsg time.Time

type servicesMsg struct {
	services []monitorService
	err      error
}

type monitorModel struct {
	baseURL  string
	services []monitorService
	err      error
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(fetchServices(m.baseURL), tickEvery())
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchServices(baseURL string) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get(baseURL + "/services")
		if err != nil {
			return servicesMsg{err: err}
		}
		defer resp.Body.Close()
		var services []monitorService
		if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
			return servicesMsg{err: err}
		}
		return servicesMsg{services: services}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(fetchServices(m.baseURL), tickEvery())
	case servicesMsg:
		m.err = msg.err
		if msg.err == nil {
			m.services = msg.services
		}
	}
	return m, nil
}

func (m monitorModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("error: %v\n", m.err)) + "\npress q to quit"
	}
	out := headerStyle.Render(fmt.Sprintf("%-16s %-10s %-8s %-8s %-8s %s", "SERVICE", "MODE", "WORKERS", "WAITING", "QUEUED", "DESIGNATED")) + "\n"
	for _, svc := range m.services {
		mode := "workholic"
		if !svc.Workholic {
			mode = "free-for-all"
		}
		out += fmt.Sprintf("%-16s %-10s %-8d %-8d %-8d %s\n", svc.Name, mode, svc.Workers, svc.Waiting, svc.QueuedRequests, svc.DesignatedWorker)
	}
	return out + "\npress q to quit"
}

func runMonitor(cmd *cobra.Command, args []string) error {
	model := monitorModel{baseURL: monitorAdminEndpoint}
	_, err := tea.NewProgram(model).Run()
	return err
}
