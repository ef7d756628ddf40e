package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/lumi/backend/internal/analysis/crisis"
	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
	"github.com/zhouzirui/lumi/backend/internal/service/conversation"
	"github.com/zhouzirui/lumi/backend/internal/service/insights"
	"github.com/zhouzirui/lumi/backend/internal/service/mood"
)

type consentView struct {
	Profile   string `json:"profile" yaml:"profile"`
	Consented bool   `json:"consented" yaml:"consented"`
	Asked     bool   `json:"asked" yaml:"asked"`
}

func newConsentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Show or change emotion-sensing consent",
	}

	actions := []struct {
		use, short string
		apply      func(*mood.Manager, context.Context) error
	}{
		{"show", "Show the consent flags", nil},
		{"grant", "Allow emotion sensing", (*mood.Manager).Grant},
		{"decline", "Record that consent was declined", (*mood.Manager).Decline},
		{"revoke", "Withdraw consent", (*mood.Manager).Revoke},
	}
	for _, action := range actions {
		cmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := a.sessions.Profile(cmd.Context(), a.profile)
				if err != nil {
					return err
				}
				if action.apply != nil {
					if err := action.apply(m, cmd.Context()); err != nil {
						return err
					}
				}
				view := consentView{Profile: a.profile, Consented: m.Consented(), Asked: m.Asked()}
				return render(cmd.OutOrStdout(), a.output, view, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "profile %s: consented=%t asked=%t\n", view.Profile, view.Consented, view.Asked)
					return err
				})
			},
		})
	}
	return cmd
}

func newMoodCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mood",
		Short: "Inspect or clear the mood history",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the mood history, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.sessions.Profile(cmd.Context(), a.profile)
			if err != nil {
				return err
			}
			snap := m.State()
			return render(cmd.OutOrStdout(), a.output, snap, func(w io.Writer) error {
				return writeHistory(w, snap)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Erase the mood history; consent is unchanged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.sessions.Profile(cmd.Context(), a.profile)
			if err != nil {
				return err
			}
			if err := m.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.output, map[string]int{"entries": 0}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "mood history cleared")
				return err
			})
		},
	})
	return cmd
}

func writeHistory(w io.Writer, snap mood.Snapshot) error {
	if len(snap.History) == 0 {
		_, err := fmt.Fprintln(w, "no mood entries")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tLABEL\tSCORE")
	for _, e := range snap.History {
		at := time.UnixMilli(e.Timestamp).Local().Format(time.DateTime)
		fmt.Fprintf(tw, "%s\t%s\t%.2f\n", at, e.Label, e.Score)
	}
	return tw.Flush()
}

func newInsightsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "insights",
		Short: "Summarise the mood history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := a.insights.Get(cmd.Context(), a.profile)
			if err != nil {
				return err
			}

			var out any = report
			if report.Source == insights.SourceRemote {
				var payload any
				if err := json.Unmarshal(report.Remote, &payload); err != nil {
					return fmt.Errorf("decode remote insights: %w", err)
				}
				out = map[string]any{"source": report.Source, "remote": payload}
			}
			return render(cmd.OutOrStdout(), a.output, out, func(w io.Writer) error {
				return writeReport(w, report)
			})
		},
	}
}

func writeReport(w io.Writer, report insights.Report) error {
	if report.Summary == nil {
		_, err := fmt.Fprintf(w, "%s\n", report.Remote)
		return err
	}
	s := report.Summary
	fmt.Fprintf(w, "entries: %d  average score: %.2f\n", s.Total, s.Average)
	if s.Total == 0 {
		return nil
	}
	fmt.Fprintf(w, "dominant: %s  latest: %s\n", s.Dominant, s.Latest)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCOUNT\tAVERAGE\tDOMINANT")
	for _, d := range s.Daily {
		dominant := string(d.Dominant)
		if dominant == "" {
			dominant = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\n", d.Date, d.Count, d.Average, dominant)
	}
	return tw.Flush()
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to LUMI; one message per line, /quit to leave",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			info, err := a.sessions.Create(ctx, a.profile)
			if err != nil {
				return err
			}
			defer func() { _ = a.sessions.End(context.Background(), info.ID) }()

			conv, err := a.sessions.Get(ctx, info.ID)
			if err != nil {
				return err
			}
			return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.output, conv)
		},
	}
}

type chatTurn struct {
	conversation.Result `yaml:",inline"`

	Input     string            `json:"input" yaml:"input"`
	Helplines []crisis.Helpline `json:"helplines,omitempty" yaml:"helplines,omitempty"`
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, format string, conv *conversation.Session) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			return nil
		}

		res := conv.Chat(ctx, text)
		turn := chatTurn{Input: text, Result: res}
		if res.Crisis {
			turn.Helplines = crisis.Helplines()
		}
		if err := render(out, format, turn, func(w io.Writer) error {
			return writeTurn(w, turn)
		}); err != nil {
			return err
		}
		if res.Crisis {
			return nil
		}
	}
	return sc.Err()
}

func writeTurn(w io.Writer, turn chatTurn) error {
	if turn.Crisis {
		fmt.Fprintln(w, "It sounds like you may be going through something serious. Please reach out to someone now:")
		for _, h := range turn.Helplines {
			contact := h.Phone
			if contact == "" {
				contact = h.Text
			}
			fmt.Fprintf(w, "  - %s (%s): %s\n", h.Name, h.Region, contact)
		}
		return nil
	}

	feeling := "-"
	if turn.Emotion != nil && turn.Emotion.Source != emotion.SourceDisabled {
		feeling = fmt.Sprintf("%s %.2f", turn.Emotion.Label, turn.Emotion.Score)
	}
	reply := ""
	if turn.Reply != nil {
		reply = *turn.Reply
	}
	_, err := fmt.Fprintf(w, "lumi [%s]: %s\n", feeling, reply)
	return err
}
