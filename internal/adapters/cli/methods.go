package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/forge-platform/firebridge/internal/adapters/host"
	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/services"
	"github.com/spf13/cobra"
)

var methodsJSON bool

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List the host methods and signals",
	Long:  `Print the method table a guest can call and the signals it can receive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plugin, err := services.NewPlugin(services.Dependencies{
			Host:   host.NewLoop(cfg.Host.HistorySize, logger),
			Logger: logger,
		})
		if err != nil {
			return err
		}
		defer plugin.Close()

		out := cmd.OutOrStdout()
		if methodsJSON {
			return writeSurfaceJSON(out, plugin.Methods(), domain.Signals())
		}
		writeSurface(out, plugin.Methods(), domain.Signals())
		return nil
	},
}

func init() {
	methodsCmd.Flags().BoolVar(&methodsJSON, "json", false, "output as JSON")
}

type surface struct {
	Methods []services.MethodSpec `json:"methods"`
	Signals []domain.SignalSpec   `json:"signals"`
}

func writeSurfaceJSON(w io.Writer, methods []services.MethodSpec, signals []domain.SignalSpec) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(surface{Methods: methods, Signals: signals})
}

func writeSurface(w io.Writer, methods []services.MethodSpec, signals []domain.SignalSpec) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Methods (%d)", len(methods))))
	for _, m := range methods {
		line := fmt.Sprintf("  %s(%s)", m.Name, strings.Join(m.Args, ", "))
		if m.Returns != "" {
			line += mutedStyle.Render(" -> " + m.Returns)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Signals (%d)", len(signals))))
	for _, s := range signals {
		fmt.Fprintf(w, "  %s(%s)\n", headerStyle.Render(string(s.Name)), strings.Join(s.Args, ", "))
	}
}
