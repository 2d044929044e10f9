package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tomas/secureface/internal/match"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery <dir-or-files...>",
	Short: "Batch-score a gallery of images against the enrolled persons",
	Long: `Gallery processes a set of images, detects faces in each and classifies
every face as a match (confidence > 0.5) or unknown. Images that fail to
decode or whose detection step fails are counted as errors and skipped; the
batch always runs to completion.

Examples:
  secureface gallery ./photos
  secureface gallery a.jpg b.jpg c.png --verbose`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGallery,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.Flags().Bool("verbose", false, "Print per-face annotations")
}

func runGallery(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.log.Sync()

	files, err := listImageFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files to process")
	}

	bar := progressbar.Default(int64(len(files)), "scoring")
	images := make([]match.GalleryImage, 0, len(files))
	for _, path := range files {
		images = append(images, match.GalleryImage{Name: path, Image: decodeImage(path)})
		_ = bar.Add(1)
	}

	report := a.engine.BatchScoreGallery(context.Background(), images, a.detector())

	fmt.Printf("processed %d, matches %d, unknown %d, errors %d\n",
		report.Processed, report.Matches, report.Unknown, report.Errors)

	if verbose {
		for _, ir := range report.Images {
			for _, face := range ir.Faces {
				label := "unknown"
				if face.Matched {
					label = fmt.Sprintf("%s (%s)", face.PersonName, face.PersonID)
				}
				fmt.Printf("%s %v: %s %.2f\n", ir.Name, face.BBox, label, face.Confidence)
			}
		}
	}
	return nil
}
