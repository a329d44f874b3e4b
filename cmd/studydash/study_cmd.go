package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"studydash/internal/client"
	"studydash/internal/models"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage dashboard accounts (admin)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			users, err := c.ListUsers(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{strconv.FormatInt(u.ID, 10), u.Username, u.Email, string(u.Role), formatTime(u.CreatedAt, nil)})
			}
			renderTable(a.out, []string{"ID", "Username", "Email", "Role", "Created"}, rows)
			return nil
		},
	}

	var (
		email, password, role string
		studies               []int64
	)
	create := &cobra.Command{
		Use:   "create USERNAME",
		Short: "Create an account; a password is generated when omitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			available, err := c.CheckUsername(ctx, args[0])
			if err != nil {
				return err
			}
			if !available {
				return fmt.Errorf("username %q is taken", args[0])
			}
			res, err := c.CreateUser(ctx, client.CreateUserRequest{
				Username: args[0],
				Email:    email,
				Password: password,
				Role:     models.Role(role),
				StudyIDs: studies,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created %s (id %d)\n", res.User.Username, res.User.ID)
			if res.TemporaryPassword != "" {
				fmt.Fprintf(a.out, "Temporary password: %s\n", res.TemporaryPassword)
			}
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "email address for notifications")
	create.Flags().StringVar(&password, "password", "", "initial password")
	create.Flags().StringVar(&role, "role", string(models.RoleResearcher), "admin or researcher")
	create.Flags().Int64SliceVar(&studies, "studies", nil, "study IDs to grant")

	var newRole, newEmail string
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change an account's role or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var req client.UpdateUserRequest
			if cmd.Flags().Changed("role") {
				r := models.Role(newRole)
				req.Role = &r
			}
			if cmd.Flags().Changed("email") {
				req.Email = &newEmail
			}
			if req.Role == nil && req.Email == nil {
				return errors.New("nothing to update: pass --role or --email")
			}

			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			u, err := c.UpdateUser(ctx, id, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated %s: role %s\n", u.Username, u.Role)
			return nil
		},
	}
	update.Flags().StringVar(&newRole, "role", "", "admin or researcher")
	update.Flags().StringVar(&newEmail, "email", "", "email address")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			if err := c.DeleteUser(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted user %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, create, update, del)
	return cmd
}

func newStudiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studies",
		Short: "List studies, or create one from a definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			studies, err := c.ListStudies(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(studies))
			for _, s := range studies {
				rows = append(rows, []string{strconv.FormatInt(s.ID, 10), s.Name, strconv.Itoa(s.Days()), s.Location().String()})
			}
			renderTable(a.out, []string{"ID", "Name", "Days", "Timezone"}, rows)
			return nil
		},
	}

	create := &cobra.Command{
		Use:   "create FILE",
		Short: "Create a study from a JSON definition (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read definition: %w", err)
			}
			if !json.Valid(raw) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			s, err := c.CreateStudy(ctx, raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created study %s (id %d)\n", s.Name, s.ID)
			return nil
		},
	}

	modules := &cobra.Command{
		Use:   "modules",
		Short: "Show the selected study's modules and questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID, err := a.studyID()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			mods, err := c.Modules(ctx, studyID)
			if err != nil {
				return err
			}
			questions, err := c.Questions(ctx, studyID)
			if err != nil {
				return err
			}
			byModule := make(map[string][]string)
			for _, q := range questions {
				byModule[q.ModuleID] = append(byModule[q.ModuleID], q.ID)
			}
			rows := make([][]string, 0, len(mods))
			for _, m := range mods {
				window := ""
				if m.WindowStart != "" {
					window = m.WindowStart + "-" + m.WindowEnd
				}
				rows = append(rows, []string{m.ID, m.Name, string(m.Repeat), window, strings.Join(byModule[m.ID], ", ")})
			}
			renderTable(a.out, []string{"Module", "Name", "Repeat", "Window", "Questions"}, rows)
			return nil
		},
	}

	cmd.AddCommand(create, modules)
	return cmd
}

func newMembershipCmd(a *app) *cobra.Command {
	var (
		userID int64
		remove bool
	)
	cmd := &cobra.Command{
		Use:   "membership",
		Short: "Grant or revoke a user's access to the selected study (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID, err := a.studyID()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			if remove {
				err = c.RemoveMembership(ctx, userID, studyID)
			} else {
				err = c.AddMembership(ctx, userID, studyID)
			}
			if err != nil {
				return err
			}
			verb := "Granted"
			if remove {
				verb = "Revoked"
			}
			fmt.Fprintf(a.out, "%s study %d for user %d\n", verb, studyID, userID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user ID (default: yourself)")
	cmd.Flags().BoolVar(&remove, "remove", false, "revoke instead of grant")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
