package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/performance"
	"github.com/abhisek/assessor/internal/store"
	"github.com/abhisek/assessor/internal/ui/theme"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a learner's performance profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, domain := userDomain(cmd)

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		p, _, err := e.store.LoadProfile(cmd.Context(), user, domain)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No answers recorded for %s in %s yet.\n", user, domain)
			return nil
		}
		if err != nil {
			return err
		}
		renderProfile(cmd.OutOrStdout(), p)
		return nil
	},
}

func init() {
	userDomainFlags(statsCmd)
}

func renderProfile(w io.Writer, p *performance.Profile) {
	o := p.Overall
	lines := []string{
		theme.Title.Render(fmt.Sprintf("%s · %s", p.UserID, p.Domain)),
		"",
		theme.Row("Answered", o.Total),
		theme.Label.Render("Accuracy") + theme.Percent(o.Accuracy),
		theme.Row("Avg time", fmt.Sprintf("%.1fs", o.AvgTime)),
		theme.Row("Streak", fmt.Sprintf("%d (best %d)", o.CurrentStreak, o.LongestStreak)),
		theme.Label.Render("Today") + theme.Bar(20, goalFraction(o)) + fmt.Sprintf(" %d/%d", o.QuestionsToday, o.DailyGoal),
		theme.Label.Render("Recommended") + theme.Level(o.RecommendedDifficulty),
	}
	if len(o.WeakTopics) > 0 {
		lines = append(lines, theme.Label.Render("Weak")+theme.Incorrect.Render(strings.Join(o.WeakTopics, ", ")))
	}
	if len(o.StrongTopics) > 0 {
		lines = append(lines, theme.Label.Render("Strong")+theme.Correct.Render(strings.Join(o.StrongTopics, ", ")))
	}
	fmt.Fprintln(w, theme.Card.Render(strings.Join(lines, "\n")))

	if topics := p.Topics(); len(topics) > 0 {
		fmt.Fprintln(w, theme.Subtitle.Render("Topics"))
		for _, t := range topics {
			s := p.TopicStats[t]
			fmt.Fprintf(w, "  %-18s %s %s  %d answered, %.1fs avg\n",
				truncate(t, 18), theme.Bar(20, float64(s.Accuracy)/100), theme.Percent(s.Accuracy), s.Total, s.AvgTime)
		}
	}
	if len(p.DifficultyStats) > 0 {
		fmt.Fprintln(w, theme.Subtitle.Render("Levels"))
		for _, lvl := range difficulty.Levels {
			s, ok := p.DifficultyStats[lvl]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "  %-18s %s %s  %d answered\n",
				lvl, theme.Bar(20, float64(s.Accuracy)/100), theme.Percent(s.Accuracy), s.Total)
		}
	}
}

func goalFraction(o performance.Overall) float64 {
	if o.DailyGoal <= 0 {
		return 0
	}
	return float64(o.QuestionsToday) / float64(o.DailyGoal)
}
