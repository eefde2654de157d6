package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"llamad/pkg/llama"
)

// engineFlags are shared by the commands that drive one engine directly.
type engineFlags struct {
	model   string
	tokens  int
	stop    string
	threads int
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Path to the model file (required)")
	cmd.Flags().IntVarP(&f.tokens, "tokens", "n", 0, "Maximum tokens to generate (0 = until end of stream)")
	cmd.Flags().StringVar(&f.stop, "stop", "", "Comma-separated stop sequences")
	cmd.Flags().IntVarP(&f.threads, "threads", "t", 0, "Threads (0 = config default)")
}

// predictOptions overlays the flags on the configured prediction defaults.
func (f *engineFlags) predictOptions(c *cli) llama.PredictOptions {
	po := c.cfg.PredictDefaults()
	if f.tokens > 0 {
		po.Tokens = f.tokens
	}
	if f.threads > 0 {
		po.Threads = f.threads
	}
	if stops := splitCSV(f.stop); len(stops) > 0 {
		po.StopPrompts = stops
	}
	return po
}

// openEngine loads f.model with the native backend linked into this binary.
func openEngine(c *cli, path string, embeddings bool) (*llama.Engine, error) {
	if path == "" {
		return nil, errors.New("--model is required")
	}
	b, err := llama.NativeBackend()
	if err != nil {
		return nil, err
	}
	mo := c.cfg.ModelOptions()
	if embeddings {
		llama.EnableEmbeddings(&mo)
	}
	return llama.Load(b, path, mo, llama.WithLogger(c.log))
}

func newPredictCmd(c *cli) *cobra.Command {
	var (
		f      engineFlags
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "predict [flags] PROMPT...",
		Short: "Generate a completion with one model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(c, f.model, false)
			if err != nil {
				return err
			}
			defer eng.Free()
			po := f.predictOptions(c)
			out := cmd.OutOrStdout()
			if stream {
				po.TokenCallback = func(tok string) bool {
					_, werr := fmt.Fprint(out, tok)
					return werr == nil
				}
			}
			text, err := eng.PredictContext(cmd.Context(), strings.Join(args, " "), &po)
			if err != nil {
				return err
			}
			if stream {
				_, err = fmt.Fprintln(out)
				return err
			}
			_, err = fmt.Fprintln(out, text)
			return err
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&stream, "stream", false, "Print tokens as they are generated")
	return cmd
}

func newEmbedCmd(c *cli) *cobra.Command {
	var (
		f      engineFlags
		tokens []int32
	)
	cmd := &cobra.Command{
		Use:   "embed [flags] TEXT...",
		Short: "Print the embedding vector of TEXT (or of --token-ids) as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) > 0) == (len(tokens) > 0) {
				return errors.New("give either TEXT or --token-ids")
			}
			eng, err := openEngine(c, f.model, true)
			if err != nil {
				return err
			}
			defer eng.Free()
			po := f.predictOptions(c)
			// Tokens doubles as the cap on returned values.
			po.Tokens = f.tokens
			var vec []float32
			if len(tokens) > 0 {
				vec, err = eng.TokenEmbeddings(tokens, &po)
			} else {
				vec, err = eng.Embeddings(strings.Join(args, " "), &po)
			}
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(vec)
		},
	}
	f.register(cmd)
	cmd.Flags().Int32SliceVar(&tokens, "token-ids", nil, "Pre-tokenized input, comma-separated")
	return cmd
}

func newStateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Save or restore engine state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("state requires a subcommand: save|load")
		},
	}

	var save engineFlags
	var prompt string
	saveCmd := &cobra.Command{
		Use:     "save [flags] FILE",
		Short:   "Evaluate --prompt and write the resulting state to FILE",
		Example: "  llamad state save -m model.gguf --prompt \"You are terse.\" chat.state",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(c, save.model, false)
			if err != nil {
				return err
			}
			defer eng.Free()
			if prompt != "" {
				po := save.predictOptions(c)
				if err := eng.Eval(prompt, &po); err != nil {
					return err
				}
			}
			if err := eng.SaveState(args[0]); err != nil {
				return err
			}
			c.log.Info().Str("path", args[0]).Msg("state saved")
			return nil
		},
	}
	save.register(saveCmd)
	saveCmd.Flags().StringVar(&prompt, "prompt", "", "Text to evaluate before saving")

	var load engineFlags
	loadCmd := &cobra.Command{
		Use:   "load [flags] FILE [PROMPT...]",
		Short: "Restore state from FILE, then optionally continue with PROMPT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(c, load.model, false)
			if err != nil {
				return err
			}
			defer eng.Free()
			if err := eng.LoadState(args[0]); err != nil {
				return err
			}
			c.log.Info().Str("path", args[0]).Msg("state loaded")
			if len(args) == 1 {
				return nil
			}
			po := load.predictOptions(c)
			text, err := eng.PredictContext(cmd.Context(), strings.Join(args[1:], " "), &po)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	load.register(loadCmd)

	cmd.AddCommand(saveCmd, loadCmd)
	return cmd
}
