package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/sync"
)

func CommandSync(cmd *cobra.Command, args []string) {
	req, err := syncRequestFromFlags(cmd)
	if err == nil {
		err = sync.ValidateRequest(req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid sync request: %v\n", err)
		os.Exit(2)
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		printPlan(os.Stdout, req)
		return
	}

	a := mustInit(cmd)
	defer a.Close()
	mustConnectDB(a)
	if err := a.ConnectRedis(); err != nil {
		a.Log.Warn().Err(err).Msg("Redis unavailable, locking within this process only")
	}

	authz := auth.Unrestricted()
	svc, err := a.Sync(authz, a.Composite(authz))
	if err != nil {
		a.Log.Fatal().Err(err).Msg("Failed to set up sync")
	}

	resp, err := svc.SyncData(context.Background(), auth.SystemActor, req)
	if resp != nil {
		printSummary(os.Stdout, resp)
	}
	if err != nil {
		a.Log.Error().Err(err).Msg("Sync failed")
		a.Close()
		os.Exit(1)
	}
}

func syncRequestFromFlags(cmd *cobra.Command) (model.SyncRequest, error) {
	mode, _ := cmd.Flags().GetString("mode")
	syncType, _ := cmd.Flags().GetString("type")
	courseID, _ := cmd.Flags().GetInt64("courseid")
	userID, _ := cmd.Flags().GetInt64("userid")
	term, _ := cmd.Flags().GetString("term")
	force, _ := cmd.Flags().GetBool("force")

	req := model.SyncRequest{
		SyncType:  model.SyncType(strings.ToLower(syncType)),
		Direction: model.Direction(strings.ToLower(mode)),
		Term:      term,
		Force:     force,
	}
	if courseID < 0 || userID < 0 {
		return req, fmt.Errorf("ids must be positive")
	}
	if courseID > 0 {
		req.CourseID = &courseID
	}
	if userID > 0 {
		req.UserID = &userID
	}
	return req, nil
}

func printPlan(w io.Writer, req model.SyncRequest) {
	ops := sync.Plan(req)
	fmt.Fprintf(w, "dry run: %s %s\n", req.Direction, req.SyncType)
	if len(ops) == 0 {
		fmt.Fprintln(w, "  nothing to do")
		return
	}
	for i, op := range ops {
		fmt.Fprintf(w, "  %d. %s %s", i+1, op.Direction, op.SyncType)
		switch {
		case op.SyncType == model.SyncTypeGrades:
			fmt.Fprintf(w, " for course %d", *req.CourseID)
			if req.UserID != nil {
				fmt.Fprintf(w, ", user %d", *req.UserID)
			}
		case op.SyncType == model.SyncTypeEnrollments && req.Term != "":
			fmt.Fprintf(w, " for term %s", req.Term)
		}
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, resp *model.SyncResponse) {
	status := "completed"
	if !resp.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "sync %s %s %s\n", resp.Direction, resp.SyncType, status)
	if u := resp.Results.Users; u != nil {
		fmt.Fprintf(w, "  users: %d created, %d updated, %d errors\n", u.Created, u.Updated, len(u.Errors))
		for _, e := range u.Errors {
			fmt.Fprintf(w, "    %s <%s>: %s\n", e.UserID, e.Email, e.Error)
		}
	}
	if e := resp.Results.Enrollments; e != nil {
		fmt.Fprintf(w, "  enrollments: %d enrolled, %d updated, %d unchanged across %d courses, %d errors\n",
			e.Enrolled, e.Updated, e.Unchanged, e.CoursesProcessed, len(e.Errors))
		for _, re := range e.Errors {
			fmt.Fprintf(w, "    %s in %s: %s\n", re.StudentID, re.CourseCode, re.Error)
		}
	}
	if g := resp.Results.Grades; g != nil {
		fmt.Fprintf(w, "  grades: %d accepted, %d skipped, %d rejected\n", g.Count, len(g.Skipped), len(g.Errors))
	}
	if resp.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", resp.Error)
	}
}
