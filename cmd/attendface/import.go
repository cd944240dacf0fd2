package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/attendface/pkg/logging"
	"github.com/MrCodeEU/attendface/pkg/storage"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Enroll every <user_id>.jpg|.jpeg|.png image in a directory",
	Long: `Enroll a directory of reference photos. Each file must be named after the
numeric user id it belongs to, for example 42.jpg. Files that cannot be
enrolled are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

// enroller is the part of the engine the import needs.
type enroller interface {
	Enroll(ctx context.Context, key int64, image []byte) (*storage.Embedding, error)
}

type importFile struct {
	Path string
	Key  int64
}

type importFailure struct {
	Path string
	Err  error
}

type importSummary struct {
	Enrolled int
	Skipped  []string
	Failed   []importFailure
}

var importExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// scanImportDir lists the enrollable files in dir ordered by user id. Files
// with other extensions or non-numeric names are returned as skipped.
func scanImportDir(dir string) ([]importFile, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []importFile
	var skipped []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !importExtensions[ext] {
			skipped = append(skipped, name)
			continue
		}
		key, err := strconv.ParseInt(strings.TrimSuffix(name, filepath.Ext(name)), 10, 64)
		if err != nil || key <= 0 {
			skipped = append(skipped, name)
			continue
		}
		files = append(files, importFile{Path: filepath.Join(dir, name), Key: key})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, skipped, nil
}

func importDir(ctx context.Context, dir string, e enroller, out io.Writer) (*importSummary, error) {
	files, skipped, err := scanImportDir(dir)
	if err != nil {
		return nil, err
	}
	summary := &importSummary{Skipped: skipped}
	if len(files) == 0 {
		return summary, nil
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Enrolling faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	log := logging.Component("import")
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		data, err := os.ReadFile(f.Path)
		if err == nil {
			_, err = e.Enroll(ctx, f.Key, data)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return summary, err
			}
			log.WithError(err).WithField("file", f.Path).Debug("Enrollment failed")
			summary.Failed = append(summary.Failed, importFailure{Path: f.Path, Err: err})
		} else {
			summary.Enrolled++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return summary, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := importDir(cmd.Context(), args[0], a.engine, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Println()
	for _, name := range summary.Skipped {
		fmt.Printf("  skipped %s (not <user_id>.jpg|.jpeg|.png)\n", name)
	}
	for _, f := range summary.Failed {
		fmt.Printf("  failed  %s: %v\n", filepath.Base(f.Path), f.Err)
	}
	fmt.Printf("Enrolled %d, failed %d, skipped %d\n", summary.Enrolled, len(summary.Failed), len(summary.Skipped))
	if summary.Enrolled == 0 && len(summary.Failed) > 0 {
		return fmt.Errorf("no images were enrolled")
	}
	return nil
}
