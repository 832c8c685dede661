package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/upcycleai/internal/app"
	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/http/handlers"
	"github.com/yungbote/upcycleai/internal/platform/audio"
	"github.com/yungbote/upcycleai/internal/platform/ctxutil"
	"github.com/yungbote/upcycleai/internal/services"
)

type cli struct {
	output string
	newApp func(ctx context.Context) (*app.App, error)
	app    *app.App
}

// execute runs one command line and always releases the app, including when the
// command fails.
func execute(ctx context.Context, c *cli, args []string) error {
	defer c.close()
	root := newRootCmd(c)
	root.SetArgs(args)
	ctx = ctxutil.WithRequestMeta(ctx, &ctxutil.RequestMeta{
		RequestID: uuid.NewString(),
		Surface:   ctxutil.SurfaceCLI,
	})
	return root.ExecuteContext(ctx)
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "upcycle",
		Short:         "UpcycleAI companion: scan items, earn XP, build projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.output != outputJSON && c.output != outputYAML {
				return fmt.Errorf("unknown output format %q (want json or yaml)", c.output)
			}
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.output, "output", "o", outputJSON, "Output format: json or yaml")

	root.AddCommand(
		c.serveCmd(),
		c.scanCmd(),
		c.buildCmd(),
		c.expandCmd(),
		c.materialsCmd(),
		c.saveCmd(),
		c.savedCmd(),
		c.profileCmd(),
		c.historyCmd(),
		c.replayCmd(),
		c.tipCmd(),
		c.premiumCmd(),
		c.themeCmd(),
		c.tutorialCmd(),
	)
	return root
}

func (c *cli) print(cmd *cobra.Command, v any) error {
	return render(cmd.OutOrStdout(), c.output, v)
}

// restore makes a past scan the current analysis so its projects can be addressed.
func (c *cli) restore(historyID string) error {
	if historyID == "" {
		return nil
	}
	_, err := c.app.Services.Companion.ReplayHistory(historyID)
	return err
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local API on the loopback interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Run(cmd.Context())
		},
	}
}

func (c *cli) scanCmd() *cobra.Command {
	var imagePath, prompt, category string
	var prefetch bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Identify an item and suggest upcycling projects (+20 XP)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := services.IdentifyRequest{Prompt: prompt}
			if imagePath != "" {
				img, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				req.Image = img
			}
			cat, ok := domain.ParseCategory(category)
			if !ok {
				return fmt.Errorf("unknown category %q", category)
			}
			req.Category = cat

			out, err := c.app.Services.Companion.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			if prefetch {
				ids := make([]string, len(out.Result.Projects))
				for i, p := range out.Result.Projects {
					ids[i] = p.ID
				}
				if err := c.app.Services.Companion.PrefetchImages(cmd.Context(), ids, c.app.Cfg.PrefetchConcurrency); err != nil {
					return err
				}
				if cur, ok := c.app.Services.Projects.Current(); ok {
					out.Result = cur
				}
			}
			return c.print(cmd, out)
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "Path to a photo of the item")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Text description of the item")
	cmd.Flags().StringVar(&category, "category", "", "Project category filter (premium)")
	cmd.Flags().BoolVar(&prefetch, "prefetch", false, "Generate project preview images right away")
	return cmd
}

func (c *cli) buildCmd() *cobra.Command {
	var fromHistory string
	cmd := &cobra.Command{
		Use:   "build <project-id>",
		Short: "Mark a project as built (+50/100/200 XP by difficulty)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.restore(fromHistory); err != nil {
				return err
			}
			out, err := c.app.Services.Companion.CompleteBuild(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	}
	cmd.Flags().StringVar(&fromHistory, "from-history", "", "History item whose scan holds the project")
	return cmd
}

func (c *cli) expandCmd() *cobra.Command {
	var fromHistory, out string
	cmd := &cobra.Command{
		Use:   "expand <project-id>",
		Short: "Generate the finished-project image (once per project)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.restore(fromHistory); err != nil {
				return err
			}
			p, err := c.app.Services.Companion.ExpandProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out != "" {
				img, ok := p.ImageBytes()
				if !ok {
					return fmt.Errorf("project %s has no image", p.ID)
				}
				if err := os.WriteFile(out, img, 0o644); err != nil {
					return err
				}
			}
			p.GeneratedImage = ""
			return c.print(cmd, p)
		},
	}
	cmd.Flags().StringVar(&fromHistory, "from-history", "", "History item whose scan holds the project")
	cmd.Flags().StringVar(&out, "out", "", "Write the image to this file")
	return cmd
}

func (c *cli) materialsCmd() *cobra.Command {
	var fromHistory string
	cmd := &cobra.Command{
		Use:   "materials <project-id>",
		Short: "Find where to source a project's materials (premium)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.restore(fromHistory); err != nil {
				return err
			}
			p, err := c.app.Services.Companion.FetchMaterials(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd, p.GroundedMaterials)
		},
	}
	cmd.Flags().StringVar(&fromHistory, "from-history", "", "History item whose scan holds the project")
	return cmd
}

func (c *cli) saveCmd() *cobra.Command {
	var fromHistory string
	cmd := &cobra.Command{
		Use:   "save <project-id>",
		Short: "Toggle a project in the saved collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.restore(fromHistory); err != nil {
				return err
			}
			projects := c.app.Services.Projects
			p, ok := projects.Find(args[0])
			if !ok {
				return services.ErrProjectNotFound
			}
			if _, err := projects.ToggleSave(cmd.Context(), p); err != nil {
				return err
			}
			return c.print(cmd, map[string]any{"projectId": p.ID, "saved": projects.IsSaved(p.ID)})
		},
	}
	cmd.Flags().StringVar(&fromHistory, "from-history", "", "History item whose scan holds the project")
	return cmd
}

func (c *cli) savedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "saved",
		Short: "List saved projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			saved := c.app.Services.Projects.Saved()
			for i := range saved {
				saved[i].GeneratedImage = ""
			}
			return c.print(cmd, saved)
		},
	}
}

func (c *cli) profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show level, XP, streak and achievements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := handlers.NewProfileView(c.app.Services.Profiles.Snapshot())
			v.History = nil
			return c.print(cmd, v)
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show recent scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recent := c.app.Services.Profiles.Snapshot().RecentScans()
			for i := range recent {
				recent[i].Result = nil
			}
			return c.print(cmd, recent)
		},
	}
}

func (c *cli) replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <history-id>",
		Short: "Show the cached result of a past scan without calling the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.app.Services.Companion.ReplayHistory(args[0])
			if err != nil {
				return err
			}
			return c.print(cmd, res)
		},
	}
}

func (c *cli) tipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tip",
		Short: "Print a short upcycling tip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), c.app.Services.Companion.Tip(cmd.Context()))
			return err
		},
	}
}

func (c *cli) premiumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "premium",
		Short: "Unlock premium features on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.app.Services.Profiles.UpgradeToPremium(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd, map[string]any{"isPremium": p.IsPremium})
		},
	}
}

func (c *cli) themeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme <light|dark>",
		Short:     "Set the display theme",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(domain.ThemeLight), string(domain.ThemeDark)},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.app.Services.Profiles.UpdateTheme(cmd.Context(), domain.Theme(strings.ToLower(args[0])))
			if err != nil {
				return err
			}
			return c.print(cmd, p.Settings)
		},
	}
}

func (c *cli) tutorialCmd() *cobra.Command {
	var fromHistory, imageOut, audioOut string
	var step int
	var readAloud bool
	cmd := &cobra.Command{
		Use:   "tutorial <project-id>",
		Short: "Walk through a project's steps with illustrations and narration",
		Long: "Prints the normalized steps. With --step, --image-out writes the step illustration,\n" +
			"--audio-out writes the narration as WAV and --read-aloud streams raw 24 kHz mono s16le PCM\n" +
			"to stdout (e.g. | aplay -f S16_LE -r 24000 -c 1).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.restore(fromHistory); err != nil {
				return err
			}
			tutorials := c.app.Services.Tutorials
			s, err := tutorials.Open(args[0])
			if err != nil {
				return err
			}
			defer tutorials.Close(s.ID)
			ctx := cmd.Context()

			if imageOut != "" {
				img, err := s.StepImage(ctx, step)
				if err != nil {
					return err
				}
				if err := os.WriteFile(imageOut, img, 0o644); err != nil {
					return err
				}
			}
			if audioOut != "" {
				pcm, err := s.StepAudio(ctx, step)
				if err != nil {
					return err
				}
				if err := os.WriteFile(audioOut, audio.WAV(pcm), 0o644); err != nil {
					return err
				}
			}
			if readAloud {
				return playStep(ctx, s, step, cmd.OutOrStdout())
			}
			return c.print(cmd, map[string]any{
				"projectId":    s.Project.ID,
				"title":        s.Project.Title,
				"originalItem": s.OriginalItem,
				"tier":         s.Tier,
				"steps":        s.Steps,
			})
		},
	}
	cmd.Flags().StringVar(&fromHistory, "from-history", "", "History item whose scan holds the project")
	cmd.Flags().IntVar(&step, "step", 0, "Zero-based step index")
	cmd.Flags().StringVar(&imageOut, "image-out", "", "Write the step illustration to this file")
	cmd.Flags().StringVar(&audioOut, "audio-out", "", "Write the step narration (WAV) to this file")
	cmd.Flags().BoolVar(&readAloud, "read-aloud", false, "Stream the narration as raw PCM to stdout")
	return cmd
}

// playStep blocks until playback ends or ctx is cancelled, in which case the
// playback is stopped.
func playStep(ctx context.Context, s *services.TutorialSession, step int, sink io.Writer) error {
	done := make(chan error, 1)
	if err := s.ReadAloud(ctx, step, sink, func(err error) { done <- err }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.StopAudio()
		return ctx.Err()
	}
}
