package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomas/secureface/internal/detect"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Match the faces in an image against the enrolled persons",
	Long: `Match runs the external detector over one image and scores every detected
face against all stored templates.

With --adaptive the accept/reject threshold is scaled by the image's
grayscale variance before matching: flat, low-quality frames get a tighter
threshold. With --requery, faces rejected by the strict pass get a second
chance at 1.5x tolerance and are reported only above the given confidence.

Examples:
  secureface match photo.jpg
  secureface match photo.jpg --tolerance 0.45 --adaptive
  secureface match photo.jpg --requery 0.6`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("tolerance", 0, "Override the configured matching tolerance")
	matchCmd.Flags().Bool("adaptive", false, "Scale the threshold by image variance")
	matchCmd.Flags().Float64("requery", 0, "Re-query rejected faces at relaxed tolerance, keeping matches above this confidence")
}

func runMatch(cmd *cobra.Command, args []string) error {
	tolerance, _ := cmd.Flags().GetFloat64("tolerance")
	adaptive, _ := cmd.Flags().GetBool("adaptive")
	requery, _ := cmd.Flags().GetFloat64("requery")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.log.Sync()

	if tolerance > 0 {
		a.engine.SetTolerance(tolerance)
	}

	img := decodeImage(args[0])
	if img == nil {
		return fmt.Errorf("failed to decode image %s", args[0])
	}

	if adaptive {
		a.engine.SetTolerance(a.engine.AdaptiveThreshold(detect.Variance(img)))
	}

	ctx := context.Background()
	detections, err := a.detector().DetectAndEmbed(ctx, img)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	if len(detections) == 0 {
		fmt.Println("No faces detected")
		return nil
	}

	for i, d := range detections {
		res := a.engine.MatchOne(d.Embedding)
		if res.Person == nil && requery > 0 {
			res = a.engine.RequeryRelaxed(d.Embedding, requery)
		}
		if res.Person != nil {
			fmt.Printf("face %d %v: %s (%s) confidence %.2f\n",
				i, d.BBox, res.Person.Name, res.Person.ID, res.Confidence)
		} else {
			fmt.Printf("face %d %v: unknown\n", i, d.BBox)
		}
	}
	return nil
}
