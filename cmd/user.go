package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/faceauth"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage library members",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Enroll a new member",
	Long: `Enroll a new member with a password and a facial descriptor.

The descriptor file holds a JSON array of 128 numbers, or an enrollment
document {"descriptor": [...]}. Use - to read it from stdin.

Examples:
  smart-library user add --name "Ada Lovelace" --email ada@example.com \
    --password secret --descriptor-file ada.json

  extract-face photo.jpg | smart-library user add --name Ada --email ada@example.com \
    --password secret --enrollment-id S-100 --descriptor-file -`,
	Args: cobra.NoArgs,
	RunE: runUserAdd,
}

var userSetPasswordCmd = &cobra.Command{
	Use:   "set-password <user-id>",
	Short: "Replace a member's password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserSetPassword,
}

var userSetDescriptorCmd = &cobra.Command{
	Use:   "set-descriptor <user-id>",
	Short: "Replace a member's facial enrollment",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserSetDescriptor,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List members",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a member",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userSetPasswordCmd, userSetDescriptorCmd, userListCmd, userDeleteCmd)

	userAddCmd.Flags().String("name", "", "Full name (required)")
	userAddCmd.Flags().String("email", "", "Email address used to log in (required)")
	userAddCmd.Flags().String("password", "", "Password (required)")
	userAddCmd.Flags().String("enrollment-id", "", "Student or staff number")
	userAddCmd.Flags().String("descriptor-file", "", "File with the facial descriptor, - for stdin (required)")
	userAddCmd.Flags().String("image-file", "", "Profile image")

	userSetPasswordCmd.Flags().String("password", "", "New password (required)")
	userSetDescriptorCmd.Flags().String("descriptor-file", "", "File with the facial descriptor, - for stdin (required)")

	userListCmd.Flags().Bool("json", false, "Output as JSON")
}

// parseUserID parses a positional user ID argument.
func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user ID %q", arg)
	}
	return id, nil
}

// readDescriptor reads a descriptor from path, or stdin for "-". Both the bare array and
// the stored enrollment document are accepted.
func readDescriptor(path string, stdin io.Reader) (faceauth.Descriptor, error) {
	if path == "" {
		return nil, errors.New("--descriptor-file is required")
	}
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path) //nolint:gosec // path is given by the operator
	}
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	stored := faceauth.ParseStoredRecord(raw)
	if stored == nil || stored.Malformed || !stored.Values.Valid() {
		return nil, fmt.Errorf("descriptor must be %d finite numbers", faceauth.DescriptorSize)
	}
	return stored.Values, nil
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("--password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(mustGetString(cmd, "name"))
	email := strings.TrimSpace(mustGetString(cmd, "email"))
	if name == "" || email == "" {
		return errors.New("--name and --email are required")
	}
	hash, err := hashPassword(mustGetString(cmd, "password"))
	if err != nil {
		return err
	}
	descriptor, err := readDescriptor(mustGetString(cmd, "descriptor-file"), cmd.InOrStdin())
	if err != nil {
		return err
	}
	var image []byte
	if path := mustGetString(cmd, "image-file"); path != "" {
		if image, err = os.ReadFile(path); err != nil { //nolint:gosec // path is given by the operator
			return fmt.Errorf("read profile image: %w", err)
		}
	}

	ctx := cmd.Context()
	cfg, err := connectDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase()

	users, err := database.GetUserWriter(ctx)
	if err != nil {
		return err
	}
	idx, err := loadDescriptorIndex(ctx, cfg, users)
	if err != nil {
		return err
	}

	user := &database.User{
		Name:         name,
		Email:        email,
		EnrollmentID: strings.TrimSpace(mustGetString(cmd, "enrollment-id")),
		PasswordHash: hash,
		ProfileImage: image,
	}
	if err := database.EnrollUniqueUser(ctx, users, user, descriptor, cfg.FaceAuth.Threshold); err != nil {
		return fmt.Errorf("enroll user: %w", err)
	}
	if err := idx.Save(); err != nil {
		return fmt.Errorf("save descriptor index: %w", err)
	}

	fmt.Printf("Enrolled %s <%s> as user %d\n", user.Name, user.Email, user.ID)
	return nil
}

// existingUser loads a user or fails with a readable error.
func existingUser(cmd *cobra.Command, users database.UserReader, id int64) (*database.User, error) {
	user, err := users.GetUser(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d not found", id)
	}
	return user, nil
}

func runUserSetPassword(cmd *cobra.Command, args []string) error {
	id, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	hash, err := hashPassword(mustGetString(cmd, "password"))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if _, err := connectDatabase(ctx); err != nil {
		return err
	}
	defer closeDatabase()

	users, err := database.GetUserWriter(ctx)
	if err != nil {
		return err
	}
	user, err := existingUser(cmd, users, id)
	if err != nil {
		return err
	}
	if err := users.UpdatePassword(ctx, id, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	fmt.Printf("Password updated for %s <%s>\n", user.Name, user.Email)
	return nil
}

func runUserSetDescriptor(cmd *cobra.Command, args []string) error {
	id, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	descriptor, err := readDescriptor(mustGetString(cmd, "descriptor-file"), cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, err := connectDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase()

	users, err := database.GetUserWriter(ctx)
	if err != nil {
		return err
	}
	user, err := existingUser(cmd, users, id)
	if err != nil {
		return err
	}
	idx, err := loadDescriptorIndex(ctx, cfg, users)
	if err != nil {
		return err
	}

	if err := database.ReplaceUniqueDescriptor(ctx, users, id, descriptor, cfg.FaceAuth.Threshold); err != nil {
		return fmt.Errorf("replace descriptor: %w", err)
	}
	if err := idx.Save(); err != nil {
		return fmt.Errorf("save descriptor index: %w", err)
	}
	fmt.Printf("Enrollment replaced for %s <%s>\n", user.Name, user.Email)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if _, err := connectDatabase(ctx); err != nil {
		return err
	}
	defer closeDatabase()

	users, err := database.GetUserReader(ctx)
	if err != nil {
		return err
	}
	list, err := users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if mustGetBool(cmd, "json") {
		type row struct {
			ID           int64  `json:"id"`
			Name         string `json:"name"`
			Email        string `json:"email"`
			EnrollmentID string `json:"enrollment_id,omitempty"`
		}
		rows := make([]row, len(list))
		for i, u := range list {
			rows[i] = row{ID: u.ID, Name: u.Name, Email: u.Email, EnrollmentID: u.EnrollmentID}
		}
		return outputJSON(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tENROLLMENT ID")
	for _, u := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.EnrollmentID)
	}
	return w.Flush()
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	id, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, err := connectDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase()

	users, err := database.GetUserWriter(ctx)
	if err != nil {
		return err
	}
	user, err := existingUser(cmd, users, id)
	if err != nil {
		return err
	}
	idx, err := loadDescriptorIndex(ctx, cfg, users)
	if err != nil {
		return err
	}
	if err := database.ForgetUser(ctx, users, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := idx.Save(); err != nil {
		return fmt.Errorf("save descriptor index: %w", err)
	}
	fmt.Printf("Deleted %s <%s>\n", user.Name, user.Email)
	return nil
}
