package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/metrics"
	"github.com/abhisek/assessor/internal/session"
	"github.com/abhisek/assessor/internal/ui/theme"
)

// quitCommand ends a practice session early.
const quitCommand = ":q"

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Start an adaptive practice session",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, domain := userDomain(cmd)
		count, _ := cmd.Flags().GetInt("count")
		topics, _ := cmd.Flags().GetStringSlice("topic")
		levelName, _ := cmd.Flags().GetString("level")
		addr, _ := cmd.Flags().GetString("metrics-addr")

		req := session.StartRequest{UserID: user, Domain: domain, Topics: topics, Count: count}
		if levelName != "" {
			lvl, err := difficulty.ParseLevel(levelName)
			if err != nil {
				return err
			}
			req.FixedLevel = &lvl
		}
		if cmd.Flags().Changed("seed") {
			seed, _ := cmd.Flags().GetInt64("seed")
			req.Seed = &seed
		}

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var m *metrics.Metrics
		if addr != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m = metrics.New(reg)
			go func() {
				if err := metrics.Serve(ctx, addr, reg, e.log); err != nil {
					e.log.Error("metrics server", zap.Error(err))
				}
			}()
		}

		svc, err := e.newService(m)
		if err != nil {
			return err
		}
		_, err = practice(ctx, svc, req, cmd.InOrStdin(), cmd.OutOrStdout())
		return err
	},
}

func init() {
	userDomainFlags(practiceCmd)
	practiceCmd.Flags().IntP("count", "n", 0, "Number of items (default from config)")
	practiceCmd.Flags().StringSliceP("topic", "t", nil, "Restrict to topic (repeatable)")
	practiceCmd.Flags().String("level", "", "Fix difficulty: easy, medium, hard, advanced")
	practiceCmd.Flags().Int64("seed", 0, "Seed for reproducible selection")
	practiceCmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")
}

// practice runs one line-based session and returns its summary.
func practice(ctx context.Context, svc *session.Service, req session.StartRequest, in io.Reader, out io.Writer) (*session.Summary, error) {
	sess, err := svc.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out, theme.Title.Render(fmt.Sprintf("Practice · %s", sess.Domain)))
	fmt.Fprintln(out, theme.Hint.Render(fmt.Sprintf("%d items, starting at %s. Answer with a letter or the option text, %s to stop.",
		len(sess.Items), sess.Difficulty.Level, quitCommand)))
	if sess.WasFallback {
		fmt.Fprintln(out, theme.Warning.Render("Not enough new items matched, so some were widened or repeated."))
	}

	lines := bufio.NewScanner(in)
	reason := session.EndCompleted
	for {
		cur, err := svc.Get(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		next := cur.Next()
		if next == nil {
			break
		}

		printItem(out, cur, next)
		shown := time.Now()
		if !lines.Scan() || ctx.Err() != nil {
			reason = session.EndAbandoned
			break
		}
		answer := strings.TrimSpace(lines.Text())
		if answer == quitCommand {
			reason = session.EndAbandoned
			break
		}
		if answer == "" {
			continue
		}

		res, err := svc.Submit(ctx, session.AnswerRequest{
			SessionID: sess.ID,
			ItemID:    next.Item.ID,
			Answer:    answer,
			TimeSpent: time.Since(shown),
		})
		if err != nil {
			if _, endErr := svc.End(context.WithoutCancel(ctx), sess.ID, session.EndAbandoned); endErr != nil {
				return nil, errors.Join(err, endErr)
			}
			return nil, err
		}
		printOutcome(out, res)
	}

	// The session is closed even after an interrupt.
	sum, err := svc.End(context.WithoutCancel(ctx), sess.ID, reason)
	if err != nil {
		return nil, err
	}
	printSummary(out, sum)
	return sum, nil
}

func printItem(w io.Writer, sess *session.Session, pi *session.PlacedItem) {
	answered := len(sess.Items) - sess.Remaining()
	header := fmt.Sprintf("Question %d of %d  %s  %s",
		answered+1, len(sess.Items), theme.Level(sess.Difficulty.Level), theme.Subtitle.Render(pi.Item.Topic))

	body := []string{header, "", pi.Item.Content}
	if len(pi.Presentation.Options) > 0 {
		body = append(body, "")
		for i, opt := range pi.Presentation.Options {
			body = append(body, fmt.Sprintf("%c) %s", 'A'+i, opt))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, theme.Card.Render(strings.Join(body, "\n")))
	fmt.Fprint(w, "> ")
}

func printOutcome(w io.Writer, res *session.AnswerOutcome) {
	if res.Correct {
		fmt.Fprintln(w, theme.Mark(true), theme.Correct.Render("Correct"))
	} else {
		fmt.Fprintln(w, theme.Mark(false), theme.Incorrect.Render("Answer: "+res.CorrectAnswer))
	}
	if res.Explanation != "" {
		fmt.Fprintln(w, theme.Hint.Render(res.Explanation))
	}
	if ch := res.Change; ch != nil {
		verb := "Easing to"
		if ch.Promoted() {
			verb = "Level up:"
		}
		fmt.Fprintln(w, theme.Warning.Render(verb), theme.Level(ch.To))
	}
	if res.Replacement != nil {
		fmt.Fprintln(w, theme.Hint.Render(fmt.Sprintf("Next item adjusted to %s.", res.Replacement.AdaptiveLevel)))
	}
}

func printSummary(w io.Writer, sum *session.Summary) {
	lines := []string{
		theme.Title.Render("Session " + string(sum.Reason)),
		"",
		theme.Row("Answered", fmt.Sprintf("%d of %d", sum.Answered, sum.Total)),
		theme.Row("Correct", sum.Correct),
		theme.Label.Render("Accuracy") + theme.Percent(sum.Accuracy),
		theme.Row("Time", sum.TotalTime.Round(time.Second)),
		theme.Label.Render("Final level") + theme.Level(sum.FinalLevel),
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, theme.Card.Render(strings.Join(lines, "\n")))
}
