package cli

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"sitevc.dev/sitevc/internal/cli/common"
	"sitevc.dev/sitevc/internal/merge"
	"sitevc.dev/sitevc/internal/runtime"
)

// newResolveCmd creates the resolve command
func newResolveCmd() *cobra.Command {
	var (
		picks       []string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <session> [conflict side]",
		Short: "Pick a side for conflicts of a merge session",
		Long: `Pick a side for conflicts of a merge session.

With a conflict id and a side (left keeps the branch merged into, right the
branch merged from) the pick applies to the whole conflict. Individual fields
of a generic conflict are picked with --pick conflict.field=side. With
--interactive, or without any pick, each pending conflict is prompted for in
an interactive terminal.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return fmt.Errorf("expected <session> or <session> <conflict> <side>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 3 {
				picks = append(picks, args[1]+"="+args[2])
			}
			parsed, err := common.ParsePicks(picks)
			if err != nil {
				return err
			}
			return common.Run(cmd, func(ctx *runtime.Context) error {
				sessionID := args[0]
				if interactive || len(parsed) == 0 {
					if !common.IsTTY() {
						return fmt.Errorf("no picks given; pass <conflict> <side> or --pick, or run in an interactive terminal")
					}
					session, err := ctx.Engine.GetSession(ctx, sessionID)
					if err != nil {
						return err
					}
					prompted, err := promptPicks(session)
					if err != nil {
						return err
					}
					for id, res := range prompted {
						parsed[id] = res
					}
				}

				var session *merge.Session
				for id, res := range parsed {
					if session, err = ctx.Engine.ResolveConflict(ctx, sessionID, id, res); err != nil {
						return err
					}
				}
				if session == nil {
					return nil
				}
				if pending := session.Pending(); len(pending) > 0 {
					ctx.Splog.Info("%d conflict(s) still pending.", len(pending))
				} else {
					ctx.Splog.Info("All conflicts picked.")
					ctx.Splog.Tip("Run 'sitevc merge-commit %s' to record the merge.", sessionID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&picks, "pick", nil, "Pick a side: conflict=side or conflict.field=side")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for every pending conflict")
	return cmd
}

// promptPicks asks for a side for every pending conflict of a session
func promptPicks(session *merge.Session) (merge.Picks, error) {
	picks := merge.Picks{}
	for _, id := range session.Pending() {
		c, _ := session.Conflicts.Find(id)
		switch c := c.(type) {
		case *merge.GenericConflict:
			res := merge.Resolution{Fields: map[string]merge.Side{}}
			for _, d := range c.Details {
				side, err := askSide(fmt.Sprintf("%s %s", c.Summary(), d.Field), d.Left.String(), d.Right.String())
				if err != nil {
					return nil, err
				}
				res.Fields[d.Field] = side
			}
			picks[id] = res
		case *merge.SpecialConflict:
			side, err := askSide(c.Summary(), c.Left, c.Right)
			if err != nil {
				return nil, err
			}
			picks[id] = merge.Resolution{Side: side}
		}
	}
	return picks, nil
}

func askSide(message, left, right string) (merge.Side, error) {
	options := []string{"left: " + left, "right: " + right}
	var choice int
	prompt := &survey.Select{Message: message, Options: options}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", fmt.Errorf("canceled")
	}
	if choice == 1 {
		return merge.Right, nil
	}
	return merge.Left, nil
}
