package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/amigocloud/amigocloud-go/pkg/amigocloud"
)

var (
	// Upload command flags
	uploadChunkSize    int64
	uploadForceChunked bool
	uploadQuiet        bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload OWNER PROJECT FILE [flags]",
	Short: "Upload a data file into a project",
	Long: `Upload a data file (shapefile archive, GeoJSON, CSV, ...) into a project, where
the server turns it into datasets. Files smaller than the simple upload limit are
sent in one request; larger files are sent in chunks and verified with an MD5
checksum.

Examples:
  amigo upload 1234 5678 parcels.zip
  amigo upload 1234 5678 roads.geojson --force-chunked --chunk-size 500000`,
	Args: cobra.ExactArgs(3),
	RunE: runUpload,
}

func runUpload(cmd *cobra.Command, args []string) error {
	owner, project, path := args[0], args[1], args[2]

	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", path, err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !uploadQuiet && !jsonOutput {
		bar = newUploadBar(cmd.ErrOrStderr(), filepath.Base(path), fi.Size())
	}

	start := time.Now()
	resp, err := client.UploadDatafile(commandContext(cmd), owner, project, amigocloud.FromPath(path), amigocloud.DatafileOptions{
		ChunkSize:    uploadChunkSize,
		ForceChunked: uploadForceChunked,
		Progress: func(sent, total int64) {
			if bar != nil {
				_ = bar.Set64(sent)
			}
		},
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		out := map[string]any{
			"result":  1,
			"file":    path,
			"bytes":   fi.Size(),
			"elapsed": time.Since(start).Round(time.Millisecond).String(),
		}
		if v := resp.JSON(); v.Exists() {
			out["response"] = v.Value()
		}
		printJSON(cmd.OutOrStdout(), out)
		return nil
	}
	okLabel.Fprintf(cmd.OutOrStdout(), "✓ Uploaded %s (%d bytes) in %s\n",
		filepath.Base(path), fi.Size(), time.Since(start).Round(time.Millisecond))
	if resp.IsJSON() {
		return printRaw(cmd.OutOrStdout(), resp.Body)
	}
	return nil
}

func newUploadBar(w io.Writer, filename string, size int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetDescription(fmt.Sprintf("Uploading %s", filename)),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().Int64Var(&uploadChunkSize, "chunk-size", 0, "Chunk size in bytes (default from config)")
	uploadCmd.Flags().BoolVar(&uploadForceChunked, "force-chunked", false, "Always use a chunked upload")
	uploadCmd.Flags().BoolVarP(&uploadQuiet, "quiet", "q", false, "Do not show a progress bar")
}
