package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"penguinoracle/ml"
)

type predictOptions struct {
	flipperLength float64
	species       string
	sex           string

	modelType    string
	modelPath    string
	metadataPath string
	endpoint     string
}

func newPredictCmd(root *rootOptions) *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict body mass (g) for one penguin",
		Example: `  penguins predict --flipper-length 200 --species Chinstrap --sex Female
  penguins predict --model-type remote --endpoint http://localhost:9000/predict --species Gentoo --sex Male`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			flags := cmd.Flags()
			if flags.Changed("model-type") {
				cfg.Model.Type = opts.modelType
			}
			if flags.Changed("model-path") {
				cfg.Model.Path = opts.modelPath
			}
			if flags.Changed("metadata-path") {
				cfg.Model.MetadataPath = opts.metadataPath
			}
			if flags.Changed("endpoint") {
				cfg.Model.Endpoint = opts.endpoint
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			fv := cfg.Input
			if flags.Changed("flipper-length") {
				fv.FlipperLengthMM = opts.flipperLength
			}
			if flags.Changed("species") {
				fv.Species = opts.species
			}
			if flags.Changed("sex") {
				fv.Sex = opts.sex
			}
			fv = fv.Normalized()

			model, err := ml.LoadModel(cmd.Context(), cfg.Model.ML())
			if err != nil {
				return err
			}
			defer model.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, fv.String())

			bodyMass, err := ml.NewPredictor(model, logger).BodyMass(cmd.Context(), fv)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "body_mass_g: %s\n", strconv.FormatFloat(bodyMass, 'f', -1, 64))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.flipperLength, "flipper-length", 0, "flipper length in mm, realistic range 160-240 (default: input.flipper_length_mm)")
	flags.StringVar(&opts.species, "species", "", "Adelie, Chinstrap or Gentoo (default: input.species)")
	flags.StringVar(&opts.sex, "sex", "", "Female or Male (default: input.sex)")
	flags.StringVar(&opts.modelType, "model-type", "", "override model.type (linear, onnx, remote)")
	flags.StringVar(&opts.modelPath, "model-path", "", "override model.path")
	flags.StringVar(&opts.metadataPath, "metadata-path", "", "override model.metadata_path (onnx)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "override model.endpoint (remote)")

	return cmd
}
