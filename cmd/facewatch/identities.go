package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/facewatch/internal/identity"
	"github.com/ayusman/facewatch/internal/store"
)

var (
	dbPath      string
	samplesPath string
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Manage the identity database",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openDatabase(false)
		if err != nil {
			return err
		}
		defer st.Close()
		return listIdentities(cmd.OutOrStdout(), st)
	},
}

var identitiesImportCmd = &cobra.Command{
	Use:   "import <identities.json>",
	Short: "Import a JSON identity database",
	Long: `Import identities from the JSON format
{"name": {"mean_embedding": [...]}, ...}. Existing names are overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := identity.ReadFile(args[0])
		if err != nil {
			return err
		}

		st, err := openDatabase(true)
		if err != nil {
			return err
		}
		defer st.Close()

		bar := progressbar.NewOptions(len(records),
			progressbar.OptionSetDescription("Importing identities"),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
		)

		created, updated, err := importIdentities(st, records, func() { bar.Add(1) })
		bar.Finish()
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d identities (%d new, %d updated)\n", created+updated, created, updated)
		return nil
	},
}

var identitiesEnrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Create or replace an identity from descriptor samples",
	Long: `Average the descriptor samples in --samples (a JSON array of arrays) into
the identity's mean descriptor. The samples are stored alongside it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := readSamples(samplesPath)
		if err != nil {
			return err
		}

		st, err := openDatabase(true)
		if err != nil {
			return err
		}
		defer st.Close()

		i, err := enrollIdentity(st, args[0], samples)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Enrolled %s from %d samples (dim %d)\n", i.Name, len(samples), i.Dim())
		return nil
	},
}

var identitiesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an identity and its samples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openDatabase(false)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Identities().DeleteByName(args[0]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("identity %q not found", args[0])
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	identitiesCmd.PersistentFlags().StringVar(&dbPath, "db", "", "identity database (env FACEWATCH_DB, default faces.db)")
	identitiesEnrollCmd.Flags().StringVar(&samplesPath, "samples", "", "JSON file with descriptor samples")
	identitiesEnrollCmd.MarkFlagRequired("samples")

	identitiesCmd.AddCommand(identitiesListCmd, identitiesImportCmd, identitiesEnrollCmd, identitiesDeleteCmd)
	rootCmd.AddCommand(identitiesCmd)
}

// openDatabase opens the identity database. Unless create is set, a missing
// database is an error rather than silently created.
func openDatabase(create bool) (*store.Store, error) {
	path := dbPath
	if path == "" {
		path = envOr("FACEWATCH_DB", "faces.db")
	}
	if !store.IsDatabasePath(path) {
		return nil, fmt.Errorf("%s is not a database path (.db or .sqlite)", path)
	}
	if !create && !store.Exists(path) {
		return nil, fmt.Errorf("identity database %s: %w", path, os.ErrNotExist)
	}
	return store.New(path)
}

func listIdentities(w io.Writer, st *store.Store) error {
	identities, err := st.Identities().List()
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		fmt.Fprintln(w, "No identities")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tDIM\tSAMPLES\tUPDATED")
	for _, i := range identities {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", i.Name, i.ID, i.Dim(), i.Samples, i.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// importIdentities upserts records by name. step is called once per record.
func importIdentities(st *store.Store, records []identity.Record, step func()) (created, updated int, err error) {
	repo := st.Identities()
	for _, r := range records {
		existing, err := repo.GetByName(r.Name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := repo.Create(&store.Identity{ID: uuid.New().String(), Name: r.Name, MeanEmbedding: r.Descriptor}); err != nil {
				return created, updated, fmt.Errorf("create %s: %w", r.Name, err)
			}
			created++
		case err != nil:
			return created, updated, err
		default:
			existing.MeanEmbedding = r.Descriptor
			if err := repo.Update(existing); err != nil {
				return created, updated, fmt.Errorf("update %s: %w", r.Name, err)
			}
			updated++
		}
		step()
	}
	return created, updated, nil
}

func readSamples(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var samples [][]float32
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parse samples %s: %w", path, err)
	}
	return samples, nil
}

// enrollIdentity stores the mean of samples as name's descriptor, creating
// the identity when needed, and replaces its recorded samples.
func enrollIdentity(st *store.Store, name string, samples [][]float32) (*store.Identity, error) {
	mean, err := identity.Mean(samples)
	if err != nil {
		return nil, err
	}

	repo := st.Identities()
	i, err := repo.GetByName(name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		i = &store.Identity{ID: uuid.New().String(), Name: name, MeanEmbedding: mean}
		if err := repo.Create(i); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		i.MeanEmbedding = mean
		if err := repo.Update(i); err != nil {
			return nil, err
		}
	}

	if err := st.Samples().Replace(i.ID, samples); err != nil {
		return nil, fmt.Errorf("store samples: %w", err)
	}
	i.Samples = len(samples)
	return i, nil
}
