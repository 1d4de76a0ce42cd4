package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/facewatch/internal/app"
	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/config"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/embedder"
	"github.com/ayusman/facewatch/internal/identity"
	"github.com/ayusman/facewatch/internal/server"
	"github.com/ayusman/facewatch/internal/staging"
	"github.com/ayusman/facewatch/internal/store"
)

const shutdownTimeout = 5 * time.Second

var (
	configPath string
	listenAddr string
	noReload   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the camera pipeline and the HTTP server",
	Long: `Start detection, recognition and staging against the configured camera.
The annotated stream is served at /api/stream and recognition results at
/api/recognitions. Edits to the config file are picked up while running.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (env FACEWATCH_CONFIG, default config.yaml)")
	runCmd.Flags().StringVar(&listenAddr, "addr", "", "HTTP listen address (overrides server.addr)")
	runCmd.Flags().BoolVar(&noReload, "no-reload", false, "do not watch the config file for changes")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if configPath == "" {
		configPath = envOr("FACEWATCH_CONFIG", "config.yaml")
	}

	snap, err := config.Load(configPath)
	if err != nil {
		return err
	}
	holder := config.NewHolder(snap)

	dbPath := snap.Recognition.DatabasePath
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("identity database: %w", err)
	}
	identities, err := identity.Load(dbPath)
	if err != nil {
		slog.Warn("identity database unreadable, every face will be UNKNOWN", "error", err)
	}

	stager, err := staging.New(snap.Detection.SaveFolder, snap.Detection.UnknownFolder, holder)
	if err != nil {
		return err
	}

	det, err := detector.NewServiceDetector(snap.Detection.ServiceScript, snap.Detection.ModelPath)
	if err != nil {
		return fmt.Errorf("face detector: %w", err)
	}
	emb, err := embedder.NewServiceEmbedder(snap.Recognition.ServiceScript, snap.Recognition.ModelPath)
	if err != nil {
		det.Close()
		return fmt.Errorf("face embedder: %w", err)
	}

	cam := capture.NewCamera(capture.Settings{
		DeviceID: snap.Camera.DeviceID,
		Width:    snap.Camera.Width,
		Height:   snap.Camera.Height,
		FPS:      snap.Camera.FPS,
	})

	frames := server.NewFrameHub()
	feed := server.NewResultFeed()

	appConfig := app.Config{
		Holder:          holder,
		Camera:          cam,
		Detector:        det,
		Embedder:        emb,
		Identities:      identities,
		Stager:          stager,
		Frames:          frames,
		WatchIdentities: true,
	}
	if !noReload {
		appConfig.ConfigPath = configPath
	}

	a := app.New(appConfig)
	a.OnResult(feed.Publish)
	if err := a.Start(ctx); err != nil {
		det.Close()
		emb.Close()
		return err
	}

	var db *store.Store
	if store.IsDatabasePath(dbPath) {
		if db, err = store.New(dbPath); err != nil {
			slog.Warn("identity API disabled", "error", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	srv := server.New(server.Config{
		StaticDir:  findWebDir(),
		Stats:      a,
		Identities: identities,
		Database:   db,
		Frames:     frames,
		Feed:       feed,
	})

	addr := listenAddr
	if addr == "" {
		addr = snap.Server.Addr
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(addr) }()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(runErr, srv.Shutdown(shutdownCtx), a.Stop())
}

// findWebDir searches for the web directory in common locations.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	candidates := []string{"web", "../web", "../../web"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".facewatch", "web"))
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
