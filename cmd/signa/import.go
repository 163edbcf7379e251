package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/ayusman/signa/internal/classifier"
)

// importCmd stores a classifier/label-encoder pair under a new name.
func importCmd(args []string) error {
	fs := pflag.NewFlagSet("import", pflag.ExitOnError)
	name := fs.String("name", "", "name to store the artifact under (default: model.name)")
	classifierPath := fs.String("classifier", "", "classifier JSON file")
	labelsPath := fs.String("labels", "", "label encoder JSON file")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *classifierPath == "" || *labelsPath == "" {
		return fmt.Errorf("--classifier and --labels are required")
	}
	if *name == "" {
		*name = cfg.Model.Name
	}

	modelJSON, err := os.ReadFile(*classifierPath)
	if err != nil {
		return err
	}
	labelsJSON, err := os.ReadFile(*labelsPath)
	if err != nil {
		return err
	}

	artifact, err := classifier.DecodeArtifact(modelJSON, labelsJSON)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Model.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Models().Create(*name, artifact)
	if err != nil {
		return err
	}

	fmt.Printf("stored model %q (%s): %d classes [%s]\n",
		rec.Name, rec.ID, rec.NumClasses, strings.Join(rec.Labels, " "))
	return nil
}

// modelsCmd lists the stored artifacts.
func modelsCmd(args []string) error {
	fs := pflag.NewFlagSet("models", pflag.ExitOnError)

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Model.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.Models().List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCLASSES\tLABELS\tCREATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Name, r.NumClasses, strings.Join(r.Labels, ""), r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
