package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tomas/secureface/internal/enroll"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <frames-dir>",
	Short: "Enroll a person from a directory of capture frames",
	Long: `Enroll reads capture frames (JPEG/PNG) from a directory, keeps only the
frames containing exactly one detected face, augments each accepted face and
folds all extracted embeddings into one averaged template.

Enrollment fails without persisting anything when fewer than the target
number of valid frames are available.

Examples:
  # Enroll with a generated person id
  secureface enroll ./captures --name "Alice Smith"

  # Explicit id and a custom sample target
  secureface enroll ./captures --id emp-042 --name "Alice Smith" --samples 10`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("id", "", "Person id (generated when empty)")
	enrollCmd.Flags().String("name", "", "Display name (required)")
	enrollCmd.Flags().Int("samples", 0, "Accepted captures required (default from config)")
	_ = enrollCmd.MarkFlagRequired("name")
}

// dirSource feeds frames from image files to the enrollment aggregator.
type dirSource struct {
	files []string
	pos   int
}

func (d *dirSource) Next(ctx context.Context) (image.Image, error) {
	for d.pos < len(d.files) {
		path := d.files[d.pos]
		d.pos++
		if img := decodeImage(path); img != nil {
			return img, nil
		}
	}
	return nil, io.EOF
}

func runEnroll(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	name, _ := cmd.Flags().GetString("name")
	samples, _ := cmd.Flags().GetInt("samples")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.log.Sync()

	if err := a.requireConsent(); err != nil {
		return err
	}

	if samples <= 0 {
		samples = a.cfg.Enrollment.TargetSamples
	}

	files, err := listImageFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files found in %s", args[0])
	}

	// Ctrl-C stops capture cooperatively between frames.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bar := progressbar.Default(int64(samples), "capturing")
	aggregator := enroll.NewAggregator(a.detector(), a.log)

	rec, err := aggregator.Enroll(ctx, &dirSource{files: files}, id, name, samples, func(accepted, target int) {
		_ = bar.Set(accepted)
	})
	if err != nil {
		return err
	}

	if err := a.store.AddPerson(rec); err != nil {
		return err
	}

	fmt.Printf("Enrolled %s (%s): quality %.3f from %d samples\n",
		rec.Name, rec.ID, rec.QualityScore, rec.TrainingSampleCount)
	return nil
}
