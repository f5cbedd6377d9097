package main

import (
	"fmt"
	"strings"

	"github.com/vorth-network/vigil/screener/policy"
	"github.com/vorth-network/vigil/screener/registry"

	cli "github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

// Runs fn against a freshly wired stack, closing it afterwards.
func withStack(fn func(cctx *cli.Context, st *Stack) error) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		logger := configLogger(cctx)
		st, err := setupStack(cctx, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		return fn(cctx, st)
	}
}

func requireArgs(cctx *cli.Context, n int) error {
	if cctx.Args().Len() != n {
		return fmt.Errorf("expected %d argument(s): %s", n, cctx.Command.ArgsUsage)
	}
	return nil
}

var checkNameCmd = &cli.Command{
	Name:      "check-name",
	Usage:     "check display names against the ban corpus",
	ArgsUsage: `<name>...`,
	Action: withStack(func(cctx *cli.Context, st *Stack) error {
		if cctx.Args().Len() == 0 {
			return fmt.Errorf("need at least one name to check")
		}
		version := st.Engine.Corpus().Version
		for _, name := range cctx.Args().Slice() {
			m := st.Engine.Check(cctx.Context, name)
			if err := printJSON(cctx, CheckNameResponse{Name: name, Matched: m != nil, Match: m, CorpusVersion: version}); err != nil {
				return err
			}
		}
		return nil
	}),
}

var reloadCmd = &cli.Command{
	Name:  "reload",
	Usage: "load the ban registry and report the resulting corpus",
	Action: withStack(func(cctx *cli.Context, st *Stack) error {
		return printJSON(cctx, corpusInfo(st.Engine.ReloadCorpus(cctx.Context)))
	}),
}

var policyCmd = &cli.Command{
	Name:  "policy",
	Usage: "inspect and change per-server screening policies",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "all known server policies",
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				policies, err := st.Policies.List(cctx.Context)
				if err != nil {
					return err
				}
				return printJSON(cctx, policies)
			}),
		},
		{
			Name:      "get",
			Usage:     "policy of one server (created with defaults if new)",
			ArgsUsage: `<server>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 1); err != nil {
					return err
				}
				p, err := st.Policies.Get(cctx.Context, cctx.Args().First())
				if err != nil {
					return err
				}
				return printJSON(cctx, p)
			}),
		},
		{
			Name:      "screening",
			Usage:     "turn enforcement on or off",
			ArgsUsage: `<server> <on|off>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 2); err != nil {
					return err
				}
				enabled, err := policy.ParseScreeningState(cctx.Args().Get(1))
				if err != nil {
					return err
				}
				p, err := st.Policies.SetScreening(cctx.Context, cctx.Args().First(), enabled)
				if err != nil {
					return err
				}
				return printJSON(cctx, p)
			}),
		},
		{
			Name:      "action",
			Usage:     "what to do on a match: ban, kick, log, ban,log or kick,log",
			ArgsUsage: `<server> <action>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 2); err != nil {
					return err
				}
				p, err := st.Policies.SetAction(cctx.Context, cctx.Args().First(), cctx.Args().Get(1))
				if err != nil {
					return err
				}
				return printJSON(cctx, p)
			}),
		},
		{
			Name:      "channel",
			Usage:     "set the notification channel (omit to clear)",
			ArgsUsage: `<server> [channel]`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if cctx.Args().Len() < 1 || cctx.Args().Len() > 2 {
					return fmt.Errorf("expected arguments: %s", cctx.Command.ArgsUsage)
				}
				p, err := st.Policies.SetNotificationChannel(cctx.Context, cctx.Args().First(), strings.TrimSpace(cctx.Args().Get(1)))
				if err != nil {
					return err
				}
				return printJSON(cctx, p)
			}),
		},
		{
			Name:      "exempt",
			Usage:     "exempt a member from screening",
			ArgsUsage: `<server> <member>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 2); err != nil {
					return err
				}
				added, err := st.Policies.AddExemption(cctx.Context, cctx.Args().First(), cctx.Args().Get(1))
				if err != nil {
					return err
				}
				if !added {
					fmt.Fprintln(cctx.App.Writer, "member already exempt")
				}
				return nil
			}),
		},
		{
			Name:      "unexempt",
			Usage:     "remove a member's exemption",
			ArgsUsage: `<server> <member>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 2); err != nil {
					return err
				}
				removed, err := st.Policies.RemoveExemption(cctx.Context, cctx.Args().First(), cctx.Args().Get(1))
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintln(cctx.App.Writer, "member was not exempt")
				}
				return nil
			}),
		},
		{
			Name:      "reset",
			Usage:     "restore the default policy",
			ArgsUsage: `<server>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 1); err != nil {
					return err
				}
				p, err := st.Policies.Reset(cctx.Context, cctx.Args().First())
				if err != nil {
					return err
				}
				return printJSON(cctx, p)
			}),
		},
		{
			Name:      "stats",
			Usage:     "screening counters (meaningful with --redis-url)",
			ArgsUsage: `<server>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 1); err != nil {
					return err
				}
				stats, err := st.Engine.Stats(cctx.Context, cctx.Args().First())
				if err != nil {
					return err
				}
				return printJSON(cctx, stats)
			}),
		},
	},
}

func actorFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "actor",
		Usage:    "auditor account making the change",
		Required: true,
		EnvVars:  []string{"VIGIL_ACTOR"},
	}
}

var registryCmd = &cli.Command{
	Name:  "registry",
	Usage: "curate the shared ban registry",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "all registry entries",
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				return printJSON(cctx, st.Registry.List())
			}),
		},
		{
			Name:      "add",
			Usage:     "add or update an entry",
			ArgsUsage: `<id> <name>`,
			Flags: []cli.Flag{
				actorFlag(),
				&cli.StringFlag{
					Name:  "reason",
					Usage: "why the identity is banned",
				},
			},
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 2); err != nil {
					return err
				}
				bi, err := addIdentity(cctx.Context, st, cctx.String("actor"), cctx.Args().First(), cctx.Args().Get(1), cctx.String("reason"))
				if err != nil {
					return err
				}
				return printJSON(cctx, bi)
			}),
		},
		{
			Name:      "remove",
			Usage:     "remove an entry",
			ArgsUsage: `<id>`,
			Flags:     []cli.Flag{actorFlag()},
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 1); err != nil {
					return err
				}
				return removeIdentity(cctx.Context, st, cctx.String("actor"), cctx.Args().First())
			}),
		},
		{
			Name:      "suggest-removal",
			Usage:     "print the entry for review before removing it",
			ArgsUsage: `<id>`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "requested-by",
					Usage:    "who asked for the removal",
					Required: true,
				},
			},
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 1); err != nil {
					return err
				}
				sug, err := st.Registry.SuggestRemoval(cctx.Context, cctx.Args().First(), cctx.String("requested-by"))
				if err != nil {
					return err
				}
				return printJSON(cctx, map[string]any{
					"identity":     sug.Identity,
					"requested_by": sug.RequestedBy,
				})
			}),
		},
		{
			Name:  "rebuild",
			Usage: "replace the registry with the network bans found in trusted servers' ban logs",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "ban-logs",
					Usage:    "directory of <server id>.json ban log exports",
					Required: true,
				},
				&cli.Float64Flag{
					Name:    "rebuild-rate-limit",
					Usage:   "max ban log fetches per second (0 for unlimited)",
					Value:   1,
					EnvVars: []string{"VIGIL_REBUILD_RATE_LIMIT"},
				},
				&cli.BoolFlag{
					Name:  "dry-run",
					Usage: "report what would change without saving",
				},
			},
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				ctx, span := tracer.Start(cctx.Context, "RebuildRegistry")
				defer span.End()

				servers, err := st.Access.TrustedServers(ctx)
				if err != nil {
					return err
				}
				idents, stats, err := registry.Rebuild(ctx, servers, &registry.DirBanLogSource{Dir: cctx.String("ban-logs")}, registry.RebuildOptions{
					RateLimit: rate.Limit(cctx.Float64("rebuild-rate-limit")),
					Logger:    st.Logger,
				})
				if err != nil {
					return err
				}
				if !cctx.Bool("dry-run") {
					if err := st.Registry.Replace(ctx, idents); err != nil {
						return err
					}
				}
				return printJSON(cctx, map[string]any{
					"servers_processed": stats.ServersProcessed,
					"servers_failed":    stats.ServersFailed,
					"entries_matched":   stats.EntriesMatched,
					"identities":        len(idents),
					"saved":             !cctx.Bool("dry-run"),
				})
			}),
		},
	},
}

var serversCmd = &cli.Command{
	Name:  "servers",
	Usage: "manage trusted servers, whose ban logs feed the registry",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "trusted servers",
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				servers, err := st.Access.TrustedServers(cctx.Context)
				if err != nil {
					return err
				}
				return printJSON(cctx, servers)
			}),
		},
		{
			Name:      "verify",
			Usage:     "mark a server as trusted",
			ArgsUsage: `<server>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 1); err != nil {
					return err
				}
				added, err := st.Access.VerifyServer(cctx.Context, cctx.Args().First())
				if err != nil {
					return err
				}
				if !added {
					fmt.Fprintln(cctx.App.Writer, "server already verified")
				}
				return nil
			}),
		},
		{
			Name:      "unverify",
			Usage:     "stop trusting a server",
			ArgsUsage: `<server>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 1); err != nil {
					return err
				}
				removed, err := st.Access.UnverifyServer(cctx.Context, cctx.Args().First())
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintln(cctx.App.Writer, "server was not verified")
				}
				return nil
			}),
		},
	},
}

var auditorsCmd = &cli.Command{
	Name:  "auditors",
	Usage: "manage accounts allowed to curate the registry",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "current auditors",
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				auditors, err := st.Access.Auditors(cctx.Context)
				if err != nil {
					return err
				}
				return printJSON(cctx, auditors)
			}),
		},
		{
			Name:      "add",
			ArgsUsage: `<user>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 1); err != nil {
					return err
				}
				_, err := st.Access.AddAuditor(cctx.Context, cctx.Args().First())
				return err
			}),
		},
		{
			Name:      "remove",
			ArgsUsage: `<user>`,
			Action: withStack(func(cctx *cli.Context, st *Stack) error {
				if err := requireArgs(cctx, 1); err != nil {
					return err
				}
				_, err := st.Access.RemoveAuditor(cctx.Context, cctx.Args().First())
				return err
			}),
		},
	},
}
