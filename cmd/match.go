package cmd

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Match faces in a class photo without recording attendance",
	Long: `Detect faces in a class photo and print the enrolled people they match.
Nothing is stored.

With --subject and --section the class roster is printed with each
student's match.`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("threshold", 0, "Minimum cosine similarity (default MATCH_THRESHOLD or 0.92)")
	matchCmd.Flags().String("subject", "", "Subject ID of the class")
	matchCmd.Flags().String("section", "", "Section ID of the class")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// matchLine is one row of match output.
type matchLine struct {
	PersonID   string   `json:"person_id"`
	Name       string   `json:"name,omitempty"`
	Confidence *float64 `json:"confidence"`
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	detector, err := a.detector()
	if err != nil {
		return err
	}
	engine, err := a.engine(detector)
	if err != nil {
		return err
	}

	threshold := a.cfg.Match.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = mustGetFloat64(cmd, "threshold")
	}

	matches, err := engine.MatchImage(ctx, data, threshold)
	if err != nil {
		return err
	}

	var lines []matchLine
	subject, section := mustGetString(cmd, "subject"), mustGetString(cmd, "section")
	if subject != "" && section != "" {
		provider, err := a.rosterProvider()
		if err != nil {
			return err
		}
		members, err := provider.Roster(ctx, subject, section)
		if err != nil {
			return err
		}
		for _, p := range members {
			line := matchLine{PersonID: p.ID, Name: p.Name}
			if c, ok := matches[p.ID]; ok {
				line.Confidence = &c
			}
			lines = append(lines, line)
		}
	} else {
		for id, c := range matches {
			lines = append(lines, matchLine{PersonID: id, Confidence: &c})
		}
		slices.SortFunc(lines, func(x, y matchLine) int {
			if c := cmp.Compare(*y.Confidence, *x.Confidence); c != 0 {
				return c
			}
			return cmp.Compare(x.PersonID, y.PersonID)
		})
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(lines)
	}

	fmt.Printf("Matched %d face(s) at threshold %.2f\n\n", len(matches), threshold)
	for _, l := range lines {
		conf := "absent"
		if l.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *l.Confidence)
		}
		if l.Name != "" {
			fmt.Printf("  %-16s %-32s %s\n", l.PersonID, l.Name, conf)
		} else {
			fmt.Printf("  %-16s %s\n", l.PersonID, conf)
		}
	}
	return nil
}
