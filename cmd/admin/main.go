// Command admin provides account and link-job maintenance for PatchDB operators.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"patchdb/internal/bootstrap"
	"patchdb/internal/config"
	"patchdb/internal/database"
	"patchdb/internal/models"
	"patchdb/internal/repository"
	"patchdb/internal/service"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd(openDB).Execute(); err != nil {
		os.Exit(1)
	}
}

// openDB loads the config and connects. The caller must invoke the returned closer.
func openDB() (*gorm.DB, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, _, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SkipSchema: true})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize runtime: %w", err)
	}
	return db, func() { _ = database.Close(db) }, nil
}

func newRootCmd(open func() (*gorm.DB, func(), error)) *cobra.Command {
	root := &cobra.Command{
		Use:          "admin",
		Short:        "PatchDB operator tools",
		SilenceUsage: true,
	}

	withDB := func(fn func(ctx context.Context, db *gorm.DB, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := open()
			if err != nil {
				return err
			}
			defer closeDB()
			return fn(cmd.Context(), db, cmd.OutOrStdout(), args)
		}
	}

	setRole := &cobra.Command{
		Use:   "set-role <username> <User|PatchMaker|Moderator|Admin>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: withDB(func(ctx context.Context, db *gorm.DB, out io.Writer, args []string) error {
			return setRole(ctx, db, out, args[0], args[1])
		}),
	}

	setState := &cobra.Command{
		Use:   "set-state <username> <active|locked|banned|deleted>",
		Short: "Change a user's account state",
		Args:  cobra.ExactArgs(2),
		RunE: withDB(func(ctx context.Context, db *gorm.DB, out io.Writer, args []string) error {
			return setState(ctx, db, out, args[0], args[1])
		}),
	}

	var minRole string
	listStaff := &cobra.Command{
		Use:   "list-staff",
		Short: "List users at or above a role",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, db *gorm.DB, out io.Writer, _ []string) error {
			return listStaff(ctx, db, out, minRole)
		}),
	}
	listStaff.Flags().StringVar(&minRole, "min-role", models.RolePatchMaker.String(), "lowest role to include")

	jobs := &cobra.Command{
		Use:   "link-jobs",
		Short: "Inspect and retry collection-link jobs",
	}

	var limit int
	failedJobs := &cobra.Command{
		Use:   "failed",
		Short: "List failed link jobs",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, db *gorm.DB, out io.Writer, _ []string) error {
			return listFailedJobs(ctx, db, out, limit)
		}),
	}
	failedJobs.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to show")

	retryJobs := &cobra.Command{
		Use:   "retry",
		Short: "Requeue every failed link job",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, db *gorm.DB, out io.Writer, _ []string) error {
			return retryFailedJobs(ctx, db, out)
		}),
	}

	jobs.AddCommand(failedJobs, retryJobs)
	root.AddCommand(setRole, setState, listStaff, jobs)
	return root
}

func userService(db *gorm.DB) *service.UserService {
	return service.NewUserService(repository.NewUserRepository(db), repository.NewFollowingRepository(db), nil, nil)
}

func setRole(ctx context.Context, db *gorm.DB, out io.Writer, username, roleName string) error {
	role, err := models.ParseUserRole(roleName)
	if err != nil {
		return err
	}
	users := userService(db)
	user, err := users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if user.Role == role {
		fmt.Fprintf(out, "%s is already %s\n", user.Username, role)
		return nil
	}
	previous := user.Role
	if user, err = users.SetRole(ctx, username, role); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ %s: %s -> %s\n", user.Username, previous, user.Role)
	return nil
}

func setState(ctx context.Context, db *gorm.DB, out io.Writer, username, stateName string) error {
	users := userService(db)
	user, err := users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	previous := user.State
	if user, err = users.SetState(ctx, username, models.UserState(stateName)); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ %s: %s -> %s\n", user.Username, previous, user.State)
	return nil
}

func listStaff(ctx context.Context, db *gorm.DB, out io.Writer, minRoleName string) error {
	minRole, err := models.ParseUserRole(minRoleName)
	if err != nil {
		return err
	}
	staff, err := userService(db).ListStaff(ctx, minRole)
	if err != nil {
		return err
	}
	if len(staff) == 0 {
		fmt.Fprintf(out, "No users at or above %s\n", minRole)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tSTATE")
	for _, u := range staff {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.State)
	}
	return w.Flush()
}

func listFailedJobs(ctx context.Context, db *gorm.DB, out io.Writer, limit int) error {
	jobs, err := repository.NewLinkJobRepository(db).ListByStatus(ctx, models.LinkJobFailed, limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No failed link jobs")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBMISSION\tUSER\tPATCH\tATTEMPTS\tERROR")
	for _, j := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n", j.ID, j.PatchSubmissionID, j.UserID, j.PatchNumber, j.Attempts, j.LastError)
	}
	return w.Flush()
}

func retryFailedJobs(ctx context.Context, db *gorm.DB, out io.Writer) error {
	n, err := repository.NewLinkJobRepository(db).RetryFailed(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Requeued %d link job(s)\n", n)
	return nil
}
