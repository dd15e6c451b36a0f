package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/echocoach/echo/internal/appstate"
	"github.com/echocoach/echo/internal/practice"
	"github.com/echocoach/echo/internal/protocol"
)

func (c *cli) replayCmd() *cobra.Command {
	var upload, verbose bool
	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Run a scripted session through the local engine and record it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sc, err := LoadScenario(args[0])
			if err != nil {
				return err
			}
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()

			out := cmd.OutOrStdout()
			opts := replayOptions{State: loc.state, Logger: c.log}
			if upload {
				client := c.client(loc.state)
				if client.Token() == "" {
					return fmt.Errorf("--upload needs a login; run echoctl login first")
				}
				opts.Reports = client
			}
			if verbose {
				opts.OnEvent = func(msg any) { printEvent(out, msg) }
			}

			scored, err := runReplay(ctx, sc, opts)
			if err != nil {
				return err
			}
			if err := loc.save(ctx); err != nil {
				return err
			}
			printScored(out, scored)
			return nil
		},
	}
	cmd.Flags().BoolVar(&upload, "upload", false, "upload a saved session to the server")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every engine event")
	return cmd
}

func (c *cli) driveCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "drive <scenario.yaml>",
		Short: "Play a scripted session against a running server over the websocket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sc, err := LoadScenario(args[0])
			if err != nil {
				return err
			}
			loc, err := c.openLocal(ctx)
			if err != nil {
				return err
			}
			defer loc.close()

			out := cmd.OutOrStdout()
			opts := driveOptions{Logger: c.log}
			if verbose {
				opts.OnEvent = func(msg any) { printEvent(out, msg) }
			}
			scored, err := runDrive(ctx, c.client(loc.state), sc, opts)
			if err != nil {
				return err
			}
			printScored(out, scored)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every server event")
	return cmd
}

func printEvent(w io.Writer, msg any) {
	switch m := deref(msg).(type) {
	case protocol.ClockTick:
		fmt.Fprintf(w, "[%3ds] speaking=%v\n", m.ElapsedSeconds, m.Speaking)
	case protocol.MetricsUpdate:
		fmt.Fprintf(w, "       pace=%d words=%d fillers=%d eye=%d%% sentiment=+%d/-%d\n",
			m.Pace, m.WordCount, len(m.FillerWords), m.EyeContact, m.Sentiment.Positive, m.Sentiment.Negative)
	case protocol.ErrorEvent:
		fmt.Fprintf(w, "error  %s: %s\n", m.Code, m.Detail)
	case protocol.SessionNotice:
		fmt.Fprintf(w, "%s %s\n", m.Type, m.PracticeID)
	}
}

func deref(msg any) any {
	switch m := msg.(type) {
	case *protocol.ClockTick:
		return *m
	case *protocol.MetricsUpdate:
		return *m
	case *protocol.ErrorEvent:
		return *m
	case *protocol.SessionNotice:
		return *m
	default:
		return msg
	}
}

func printScored(w io.Writer, s protocol.SessionScored) {
	card := s.Scorecard
	fmt.Fprintf(w, "overall %d  pace %d  fillers %d (%d used)  eye contact %d\n",
		card.OverallScore, card.PaceScore, card.FillerScore, card.TotalFillers, card.EyeContactScore)
	if !s.Saved {
		fmt.Fprintf(w, "session not saved: %s\n", discardText(s.Reason))
		return
	}
	if s.Record != nil {
		fmt.Fprintf(w, "saved %s: %ds, %d words\n", s.Record.ID, s.Record.Duration, s.Record.WordCount)
		for _, line := range s.Record.Strengths {
			fmt.Fprintf(w, "  + %s\n", line)
		}
		for _, line := range s.Record.Improvements {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	}
	for _, id := range s.Achievements {
		title := id
		if a, ok := appstate.LookupAchievement(appstate.AchievementID(id)); ok {
			title = a.Title
		}
		fmt.Fprintf(w, "achievement unlocked: %s\n", title)
	}
}

func discardText(reason string) string {
	switch reason {
	case practice.DiscardTooShort:
		return "shorter than the minimum duration"
	case practice.DiscardNoSpeech:
		return "no speech was recognized"
	case practice.DiscardRecognizer:
		return "speech recognition failed"
	default:
		return reason
	}
}
