package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ieap-grade-sync/internal/app"
	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/ieap"
	"ieap-grade-sync/internal/model"
)

func CommandCreateStructure(cmd *cobra.Command, args []string) {
	courseID, _ := cmd.Flags().GetInt64("courseid")
	levelFlag, _ := cmd.Flags().GetString("level")
	autoDetect, _ := cmd.Flags().GetBool("auto-detect")
	file, _ := cmd.Flags().GetString("file")
	rawWeights, _ := cmd.Flags().GetStringToString("weight")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if levelFlag == "auto" {
		levelFlag, autoDetect = "", true
	}
	sources := 0
	for _, set := range []bool{levelFlag != "", autoDetect, file != ""} {
		if set {
			sources++
		}
	}
	switch {
	case sources != 1:
		usageError("exactly one of --level, --auto-detect or --file is required")
	case courseID <= 0 && (autoDetect || !dryRun):
		usageError("--courseid is required")
	case file != "" && len(rawWeights) > 0:
		usageError("--weight applies to templates, edit the file instead")
	}
	overrides, err := parseWeights(rawWeights)
	if err != nil {
		usageError(err.Error())
	}

	var a *app.App
	if autoDetect || !dryRun {
		a = mustInit(cmd)
		defer a.Close()
		mustConnectDB(a)
	}
	ctx := context.Background()

	var structure model.Structure
	if file != "" {
		structure, err = loadStructureFile(file)
		if err != nil {
			usageError(err.Error())
		}
	} else {
		level, err := resolveLevel(ctx, a, courseID, levelFlag)
		if err != nil {
			usageError(err.Error())
		}
		if structure, err = ieap.Customize(level, overrides); err != nil {
			usageError(err.Error())
		}
	}

	if errs := ieap.Validate(structure); len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "invalid structure:")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", e.Field, e.Message)
		}
		os.Exit(2)
	}

	printStructure(os.Stdout, structure)
	if dryRun {
		fmt.Println("dry run: nothing created")
		return
	}

	authz := auth.Unrestricted()
	result, err := a.Composite(authz).CreateStructure(ctx, auth.SystemActor, model.CreateStructureRequest{
		CourseID:  courseID,
		Structure: &structure,
	})
	if err != nil {
		a.Log.Error().Err(err).Int64("course_id", courseID).Msg("Failed to create structure")
		a.Close()
		os.Exit(1)
	}
	fmt.Printf("created %q in course %d (category %d)\n", result.StructureName, result.CourseID, result.MainCategoryID)
	for _, c := range result.Components {
		fmt.Printf("  %s: category %d, %d items\n", c.Name, c.CategoryID, len(c.Items))
	}
}

func usageError(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

func resolveLevel(ctx context.Context, a *app.App, courseID int64, levelFlag string) (model.Level, error) {
	if levelFlag != "" {
		return ieap.ParseLevel(levelFlag)
	}
	course, err := a.Repo.FindCourse(ctx, courseID)
	if err != nil {
		return "", err
	}
	if course == nil {
		return "", fmt.Errorf("course %d not found", courseID)
	}
	level, ok := ieap.DetectLevel(course.ShortName + " " + course.FullName)
	if !ok {
		return "", fmt.Errorf("no IEAP level matches %q, pass --level", course.FullName)
	}
	fmt.Printf("detected %s from %q\n", level, course.FullName)
	return level, nil
}

// parseWeights turns Name=weight pairs into template overrides.
func parseWeights(raw map[string]string) (map[string]float64, error) {
	overrides := make(map[string]float64, len(raw))
	for name, value := range raw {
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || w < 0 || w > 1 {
			return nil, fmt.Errorf("weight for %s must be a number between 0 and 1, got %q", name, value)
		}
		overrides[name] = w
	}
	return overrides, nil
}

func loadStructureFile(path string) (model.Structure, error) {
	var s model.Structure
	f, err := os.Open(path)
	if err != nil {
		return s, fmt.Errorf("failed to open structure file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return s, fmt.Errorf("failed to parse structure file %s: %w", path, err)
	}
	return s, nil
}

func printStructure(w io.Writer, s model.Structure) {
	fmt.Fprintf(w, "structure: %s\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(w, "  %s\n", s.Description)
	}
	for _, c := range s.Components {
		fmt.Fprintf(w, "  %-24s %5.1f%%\n", c.Name, c.Weight*100)
		for _, item := range c.Items {
			fmt.Fprintf(w, "    - %s (max %g)\n", item.Name, item.MaxGrade)
		}
	}
}
