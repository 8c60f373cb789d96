package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pseudodojo/psdist/internal/config"
	"github.com/pseudodojo/psdist/internal/publish"
	"github.com/pseudodojo/psdist/internal/site"
	"github.com/spf13/cobra"
)

// newPutter is replaced in tests.
var newPutter = func(cfg publish.Config) (publish.Putter, error) { return publish.NewClient(cfg) }

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the indices, bundles and indexed files to S3-compatible storage",
	Long: `Uploads files.json, targz.json and every file they reference to the bucket
configured through PSDIST_S3_* variables (process environment or <workdir>/.env).`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	dir, err := resolveWorkDir()
	if err != nil {
		return err
	}
	env, err := config.LoadEnv(dir)
	if err != nil {
		return err
	}
	ix, err := site.LoadIndex(dir)
	if err != nil {
		return fmt.Errorf("no distribution to publish, run 'psdist update' first: %w", err)
	}

	cfg := publish.Config{
		Endpoint:  env.S3Endpoint,
		Region:    env.S3Region,
		AccessKey: env.S3AccessKey,
		SecretKey: env.S3SecretKey,
		Bucket:    env.S3Bucket,
		Prefix:    env.S3Prefix,
		UseSSL:    env.S3UseSSL,
	}
	client, err := newPutter(cfg)
	if err != nil {
		return err
	}
	p, err := publish.New(client, cfg, logger)
	if err != nil {
		return err
	}

	objs := publish.Objects(dir, cfg.Prefix, ix)
	printSection("Publish")
	printInfo("", fmt.Sprintf("uploading %d objects to %s/%s", len(objs), cfg.Bucket, cfg.Prefix))
	n, err := p.Publish(cmd.Context(), objs)
	if err != nil {
		printErr("", "some uploads failed")
		return err
	}
	printOK("", fmt.Sprintf("uploaded %d objects (%s)", len(objs), humanize.IBytes(uint64(n))))
	return nil
}
