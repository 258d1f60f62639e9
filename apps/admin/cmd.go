package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/profile"
	"github.com/nexscholar/nexscholar/core/scholar"
	"github.com/nexscholar/nexscholar/core/search"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/core/taxonomy"
	"github.com/nexscholar/nexscholar/core/user"
	"github.com/nexscholar/nexscholar/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp          = errors.New("help provided")
	errSearchMissing = errors.New("search is not configured: set the OpenAI key")
)

// jobQueue runs the jobs the scholar sync dispatches.
type jobQueue interface {
	Start(ctx context.Context)
	Stop()
}

type commandLine struct {
	db          *sqlx.DB
	usrRepo     user.Repository
	profiles    *profile.Service
	taxonomy    *taxonomy.Service
	supervision *supervision.Service
	scholar     *scholar.Service
	search      *search.Service // nil when not configured
	queue       jobQueue
	out         io.Writer
}

func (cli *commandLine) run(args []string) error {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Nexscholar administration commands",
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          cli.usage,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.embeddingsCmd(),
		cli.qdrantCmd(),
		cli.phonesCmd(),
		cli.scholarCmd(),
		cli.taxonomyCmd(),
		cli.supervisionCmd(),
	)

	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// usage prints the help of cmd; it is the RunE of commands grouping subcommands.
func (cli *commandLine) usage(cmd *cobra.Command, _ []string) error {
	_ = cmd.Usage()
	return errHelp
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (cli *commandLine) requireSearch() (*search.Service, error) {
	if cli.search == nil {
		return nil, errSearchMissing
	}
	return cli.search, nil
}

func (cli *commandLine) readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		_ = cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, down, status, version, ...)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cli.usage(cmd, args)
			}
			return migrateFunc(cmd.Context(), cli.db, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var (
		name, uname, email string
		roles              []string
		isAdmin            bool
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the one with this username or email. The password is prompted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uname == "" || email == "" {
				return cli.usage(cmd, nil)
			}
			pwd, err := cli.readPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), name, uname, email, pwd, roles, isAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "user %s (%s) saved\n", usr.Username, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&uname, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role(s) to grant, e.g. academician:")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant the admin role")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; it is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uname == "" {
				return cli.usage(cmd, nil)
			}
			pwd, err := cli.readPassword(cmd)
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), uname, pwd)
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "the user's username or email")
	return cmd
}

func (cli *commandLine) embeddingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "embeddings", Short: "Manage the search embeddings", RunE: cli.usage}

	var types []string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Embed the profiles changed since their last embedding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := cli.requireSearch()
			if err != nil {
				return err
			}
			pts, err := parseProfileTypes(types)
			if err != nil {
				return err
			}
			report, err := svc.GenerateMissing(cmd.Context(), pts...)
			if err != nil {
				return err
			}
			return cli.printJSON(report)
		},
	}
	generate.Flags().StringSliceVar(&types, "type", nil, "profile type(s): academician, postgraduate, undergraduate")

	syncProfile := &cobra.Command{
		Use:   "sync-profile PROFILE_ID",
		Short: "Re-embed one profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.requireSearch()
			if err != nil {
				return err
			}
			return svc.SyncProfile(cmd.Context(), args[0])
		},
	}

	syncPrograms := &cobra.Command{
		Use:   "sync-programs",
		Short: "Embed every postgraduate program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := cli.requireSearch()
			if err != nil {
				return err
			}
			report, err := svc.SyncPrograms(cmd.Context())
			if err != nil {
				return err
			}
			return cli.printJSON(report)
		},
	}

	cmd.AddCommand(generate, syncProfile, syncPrograms)
	return cmd
}

func parseProfileTypes(raw []string) ([]profile.Type, error) {
	types := make([]profile.Type, 0, len(raw))
	for _, r := range raw {
		t := profile.Type(core.CleanString(r, true))
		if !t.IsValid() {
			return nil, errors.Errorf("unknown profile type %q", r)
		}
		types = append(types, t)
	}
	return types, nil
}

func (cli *commandLine) qdrantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "qdrant", Short: "Manage the vector collections", RunE: cli.usage}

	collectionCmd := func(use, short string, fn func(ctx context.Context, svc *search.Service, name string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " COLLECTION",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := cli.requireSearch()
				if err != nil {
					return err
				}
				return fn(cmd.Context(), svc, args[0])
			},
		}
	}

	cmd.AddCommand(
		collectionCmd("create", "Create a collection", func(ctx context.Context, svc *search.Service, name string) error {
			return svc.CreateCollection(ctx, name)
		}),
		collectionCmd("delete", "Delete a collection", func(ctx context.Context, svc *search.Service, name string) error {
			return svc.DeleteCollection(ctx, name)
		}),
		collectionCmd("recreate", "Drop a collection and create it empty", func(ctx context.Context, svc *search.Service, name string) error {
			return svc.RecreateCollection(ctx, name)
		}),
		collectionCmd("info", "Show a collection", func(ctx context.Context, svc *search.Service, name string) error {
			info, err := svc.CollectionInfo(ctx, name)
			if err != nil {
				return err
			}
			return cli.printJSON(info)
		}),
		&cobra.Command{
			Use:   "ensure",
			Short: "Create the missing collections",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := cli.requireSearch()
				if err != nil {
					return err
				}
				return svc.EnsureCollections(cmd.Context())
			},
		},
	)
	return cmd
}

func (cli *commandLine) phonesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "phones", Short: "Maintain profile phone numbers", RunE: cli.usage}

	var dryRun bool
	normalize := &cobra.Command{
		Use:   "normalize",
		Short: "Rewrite every phone number in international format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := cli.profiles.NormalizePhones(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			return cli.printJSON(report)
		},
	}
	normalize.Flags().BoolVar(&dryRun, "dry-run", false, "report the changes without saving them")

	cmd.AddCommand(normalize)
	return cmd
}

func (cli *commandLine) scholarCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "scholar", Short: "Google Scholar metrics", RunE: cli.usage}

	var profileID string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the Scholar metrics of every profile (or of --profile)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if profileID != "" {
				m, err := cli.scholar.SyncProfile(ctx, profileID)
				if err != nil {
					return err
				}
				return cli.printJSON(m)
			}

			cli.queue.Start(ctx)
			defer cli.queue.Stop()
			run, err := cli.scholar.SyncAll(ctx)
			if err != nil {
				return err
			}
			report, err := run.Wait(ctx)
			if err != nil {
				return err
			}
			return cli.printJSON(report)
		},
	}
	sync.Flags().StringVar(&profileID, "profile", "", "only sync this profile")

	cmd.AddCommand(sync)
	return cmd
}

func (cli *commandLine) taxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "taxonomy", Short: "Manage universities, faculties, fields of study...", RunE: cli.usage}

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Create the nodes of a YAML seed file that do not exist yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := cli.taxonomy.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			return cli.printJSON(res)
		},
	})
	return cmd
}

func (cli *commandLine) supervisionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "supervision", Short: "Supervision workflow maintenance", RunE: cli.usage}

	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Auto-cancel the requests and offers left unanswered too long",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cli.supervision.ExpireStale(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "%d request(s) expired\n", n)
			return nil
		},
	})
	return cmd
}
