package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/faceauth"
)

var descriptorsCmd = &cobra.Command{
	Use:   "descriptors",
	Short: "Inspect stored facial enrollments",
}

var descriptorsAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Classify every member's stored descriptor",
	Long: `Read every member's stored enrollment and classify it the way face login would:

  ok            a usable descriptor of 128 finite numbers
  not_enrolled  no enrollment stored; face login answers 409 for this member
  corrupt       an enrollment that cannot be decoded; face login answers 422

Usable enrollments whose vector column is missing are reported as unindexed.
With --fix the vector column is rewritten for them so the duplicate-enrollment
index sees them after the next restart.

Examples:
  smart-library descriptors audit
  smart-library descriptors audit --fix
  smart-library descriptors audit --json`,
	Args: cobra.NoArgs,
	RunE: runDescriptorsAudit,
}

func init() {
	rootCmd.AddCommand(descriptorsCmd)
	descriptorsCmd.AddCommand(descriptorsAuditCmd)

	descriptorsAuditCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
	descriptorsAuditCmd.Flags().Bool("fix", false, "Rewrite missing vector columns of usable enrollments")
}

// Enrollment audit states
const (
	auditOK          = "ok"
	auditNotEnrolled = "not_enrolled"
	auditCorrupt     = "corrupt"
)

// AuditEntry is the verdict for one member.
type AuditEntry struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	Length    int    `json:"length,omitempty"`
	Unindexed bool   `json:"unindexed,omitempty"`
	Fixed     bool   `json:"fixed,omitempty"`
}

// AuditResult summarizes an audit run.
type AuditResult struct {
	Scanned       int          `json:"scanned"`
	OK            int          `json:"ok"`
	NotEnrolled   int          `json:"not_enrolled"`
	Corrupt       int          `json:"corrupt"`
	Unindexed     int          `json:"unindexed"`
	Fixed         int          `json:"fixed"`
	Problems      []AuditEntry `json:"problems"`
	DurationMs    int64        `json:"duration_ms"`
	DurationHuman string       `json:"duration_human,omitempty"`
}

// auditRecord classifies one stored enrollment. mirrored holds the users that have a
// vector column.
func auditRecord(rec database.FacialDataRecord, mirrored map[int64]bool) (AuditEntry, *faceauth.StoredDescriptor) {
	entry := AuditEntry{UserID: rec.UserID, Email: rec.Email}
	stored := faceauth.ParseStoredRecord(rec.FacialData)
	switch {
	case stored == nil:
		entry.Status = auditNotEnrolled
	case stored.Malformed || !stored.Values.Valid():
		entry.Status = auditCorrupt
		entry.Length = len(stored.Values)
	default:
		entry.Status = auditOK
		entry.Length = len(stored.Values)
		entry.Unindexed = !mirrored[rec.UserID]
	}
	return entry, stored
}

// add counts entry into the result and keeps it when it needs attention.
func (r *AuditResult) add(entry AuditEntry) {
	r.Scanned++
	switch entry.Status {
	case auditOK:
		r.OK++
	case auditNotEnrolled:
		r.NotEnrolled++
	case auditCorrupt:
		r.Corrupt++
	}
	if entry.Unindexed {
		r.Unindexed++
	}
	if entry.Fixed {
		r.Fixed++
	}
	if entry.Status != auditOK || entry.Unindexed {
		r.Problems = append(r.Problems, entry)
	}
}

// auditDescriptors scans all enrollments. progress is called once per record.
func auditDescriptors(ctx context.Context, users database.UserWriter, fix bool, progress func()) (*AuditResult, error) {
	records, err := users.ListFacialData(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	enrolled, err := users.ListEnrolledDescriptors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vector columns: %w", err)
	}
	mirrored := make(map[int64]bool, len(enrolled))
	for _, e := range enrolled {
		mirrored[e.UserID] = true
	}

	result := &AuditResult{Problems: []AuditEntry{}}
	for _, rec := range records {
		entry, stored := auditRecord(rec, mirrored)
		if fix && entry.Unindexed {
			if err := users.UpdateFacialData(ctx, rec.UserID, rec.FacialData, stored.Values.Float32()); err != nil {
				return nil, fmt.Errorf("fix user %d: %w", rec.UserID, err)
			}
			entry.Fixed = true
		}
		result.add(entry)
		if progress != nil {
			progress()
		}
	}
	return result, nil
}

func runDescriptorsAudit(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	fix := mustGetBool(cmd, "fix")
	startTime := time.Now()

	ctx := cmd.Context()
	if _, err := connectDatabase(ctx); err != nil {
		return err
	}
	defer closeDatabase()

	users, err := database.GetUserWriter(ctx)
	if err != nil {
		return err
	}

	var progress func()
	if !jsonOutput {
		list, err := users.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		fmt.Printf("Auditing %d members\n\n", len(list))
		bar := progressbar.NewOptions(len(list),
			progressbar.OptionSetDescription("Auditing enrollments"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("members"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		progress = func() { bar.Add(1) }
	}

	result, err := auditDescriptors(ctx, users, fix, progress)
	if err != nil {
		return err
	}
	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()
	result.DurationHuman = formatDuration(duration)

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println()
	fmt.Println("\nAudit complete!")
	fmt.Printf("  Members scanned: %d\n", result.Scanned)
	fmt.Printf("  OK:              %d\n", result.OK)
	fmt.Printf("  Not enrolled:    %d\n", result.NotEnrolled)
	fmt.Printf("  Corrupt:         %d\n", result.Corrupt)
	if result.Unindexed > 0 {
		fmt.Printf("  Unindexed:       %d\n", result.Unindexed)
	}
	if result.Fixed > 0 {
		fmt.Printf("  Fixed:           %d\n", result.Fixed)
	}
	fmt.Printf("  Duration:        %s\n", formatDuration(duration))

	for _, p := range result.Problems {
		note := p.Status
		if p.Unindexed {
			note += ", unindexed"
		}
		fmt.Printf("  user %d <%s>: %s\n", p.UserID, p.Email, note)
	}
	return nil
}
