package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/campus-attendance/internal/facematch"
)

var imageFileExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

var enrollCmd = &cobra.Command{
	Use:   "enroll [person-id image]",
	Short: "Enroll face signatures",
	Long: `Enroll the face signature of a person from a portrait image.

With --dir every image in the directory is enrolled, using the file name
without extension as the person ID. An existing signature is replaced.

Examples:
  campus-attendance enroll S1042 portrait.jpg
  campus-attendance enroll --dir ./portraits --concurrency 8`,
	Args: func(cmd *cobra.Command, args []string) error {
		if mustGetString(cmd, "dir") != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Enroll every image in this directory")
	enrollCmd.Flags().Int("concurrency", 4, "Number of images enrolled in parallel")
}

// enrollJob is one portrait to enroll.
type enrollJob struct {
	personID string
	path     string
}

// collectPortraits lists the images in dir as enrollment jobs.
func collectPortraits(dir string) ([]enrollJob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var jobs []enrollJob
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !imageFileExtensions[strings.ToLower(ext)] {
			continue
		}
		id := strings.TrimSpace(strings.TrimSuffix(e.Name(), ext))
		if id == "" {
			continue
		}
		jobs = append(jobs, enrollJob{personID: id, path: filepath.Join(dir, e.Name())})
	}
	return jobs, nil
}

func enrollOne(ctx context.Context, engine *facematch.Engine, job enrollJob) error {
	data, err := os.ReadFile(job.path)
	if err != nil {
		return fmt.Errorf("%s: %w", job.personID, err)
	}
	if _, err := engine.Enroll(ctx, job.personID, data, job.path); err != nil {
		return fmt.Errorf("%s: %w", job.personID, err)
	}
	return nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	detector, err := a.detector()
	if err != nil {
		return err
	}
	engine, err := a.engine(detector)
	if err != nil {
		return err
	}

	dir := mustGetString(cmd, "dir")
	if dir == "" {
		job := enrollJob{personID: args[0], path: args[1]}
		if err := enrollOne(ctx, engine, job); err != nil {
			return err
		}
		fmt.Printf("Enrolled %s from %s\n", job.personID, job.path)
		return nil
	}

	jobs, err := collectPortraits(dir)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No images found")
		return nil
	}

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, mustGetInt(cmd, "concurrency")))
	for _, job := range jobs {
		g.Go(func() error {
			if err := enrollOne(gctx, engine, job); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			bar.Add(1)
			return nil
		})
	}
	g.Wait()
	bar.Finish()

	fmt.Printf("\nEnrolled %d of %d\n", len(jobs)-len(errs), len(jobs))
	if len(errs) > 0 {
		fmt.Printf("Errors: %d\n", len(errs))
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		return errors.Join(errs...)
	}
	return nil
}
