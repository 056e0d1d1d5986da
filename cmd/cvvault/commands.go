package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pbaille/cvvault/internal/api"
	"github.com/pbaille/cvvault/internal/domain"
	"github.com/pbaille/cvvault/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Back up both collections to JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (json or yaml)", format)
			}

			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			backup := a.repo.Export()
			if format == "yaml" {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(backup); err != nil {
					return fmt.Errorf("encode yaml: %w", err)
				}
				return enc.Close()
			}

			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(backup)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

type reminder struct {
	Priority string
	Text     string
}

var admissionReminders = []reminder{
	{"High", "Focus on Super-curricular depth over participation."},
	{"High", "Explain HOW a challenge developed your thinking."},
	{"Medium", "Reflect on what you did NEXT after an activity."},
	{"Low", "80% Academic, 20% Extra-curricular balance is ideal."},
}

func tipsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tips",
		Short: "Show admissions strategy reminders",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, r := range admissionReminders {
				fmt.Printf("[%-6s] %s\n", r.Priority, r.Text)
			}
		},
	}
}

func serve(ctx context.Context, addr string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg)

	a, err := openApp(ctx, m)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	return api.New(a.repo, a.coord, a.log, reg).Run(ctx, addr)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func headline(e domain.Entry) string {
	switch v := e.(type) {
	case domain.Experience:
		return fmt.Sprintf("[%s] %s (%s)%s", v.Category, v.Title, v.Date, reflectedMark(v.Reflection))
	case domain.Education:
		s := v.School
		if v.Qualification != "" {
			s += " - " + v.Qualification
		}
		return s + reflectedMark(v.Reflection)
	}
	return e.EntryID()
}

func reflectedMark(reflection string) string {
	if reflection == "" {
		return ""
	}
	return " *"
}

func printExperience(e domain.Experience) {
	fmt.Printf("ID:        %s\n", e.ID)
	fmt.Printf("Title:     %s\n", e.Title)
	fmt.Printf("Category:  %s\n", e.Category)
	fmt.Printf("Date:      %s\n", e.Date)
	fmt.Printf("Challenge: %s\n", e.Challenge)
	fmt.Printf("Learning:  %s\n", e.Learning)
	if e.Link != "" {
		fmt.Printf("Link:      %s\n", e.Link)
	}
	if e.Reflection != "" {
		fmt.Printf("\nReflection:\n%s\n", e.Reflection)
	}
}

func printEducation(e domain.Education) {
	fmt.Printf("ID:            %s\n", e.ID)
	fmt.Printf("School:        %s\n", e.School)
	fmt.Printf("Qualification: %s\n", e.Qualification)
	fmt.Printf("Dates:         %s\n", e.Dates)
	fmt.Printf("Subjects:      %s\n", e.Subjects)
	if e.Notes != "" {
		fmt.Printf("Notes:         %s\n", e.Notes)
	}
	if e.Reflection != "" {
		fmt.Printf("\nInsight:\n%s\n", e.Reflection)
	}
}
