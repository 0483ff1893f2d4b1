package cmd

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/mortar-build/mortar/coredata"
	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/util"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"
)

var distAllowDirty bool

var distCmd = &cobra.Command{
	Use:   "dist [builddir]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Creates a release archive of the project sources",
	Long: `Creates a source release archive from the project's git repository.
Only committed files end up in the archive; a dirty work tree is rejected
unless --allow-dirty is given.`,
	Run: runDist,
}

func init() {
	distCmd.Flags().BoolVar(&distAllowDirty, "allow-dirty", false, "Create the archive even with uncommitted changes")
	rootCmd.AddCommand(distCmd)
}

func runDist(cmd *cobra.Command, args []string) {
	buildDir := buildDirArg(args)
	cd, err := coredata.Load(buildDir)
	if err != nil {
		log.Fatal("%s\n", err)
	}

	name := cd.ProjectName
	if cd.ProjectVersion != "" {
		name += "-" + cd.ProjectVersion
	}

	archivePath := path.Join(buildDir, "mortar-dist", name+".tar.gz")
	if err := createSourceArchive(cd.SourceDir, name, archivePath); err != nil {
		log.Fatal("%s\n", err)
	}

	sum, err := sha256File(archivePath)
	if err != nil {
		log.Fatal("Failed to checksum archive: %s.\n", err)
	}
	util.WriteFile(archivePath+".sha256sum", []byte(fmt.Sprintf("%s  %s\n", sum, path.Base(archivePath))))

	log.Success("Created %s\n", archivePath)
}

// createSourceArchive packs the committed files of HEAD into a tar.gz with a
// single root directory, the way release tarballs are laid out.
func createSourceArchive(sourceDir, rootName, archivePath string) error {
	repo, err := git.PlainOpen(sourceDir)
	if err != nil {
		return fmt.Errorf("'%s' is not a git repository: %s", sourceDir, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	status, err := worktree.Status()
	if err != nil {
		return err
	}
	if !status.IsClean() && !distAllowDirty {
		return fmt.Errorf("the work tree has uncommitted changes, commit them or use --allow-dirty")
	}

	head, err := repo.Head()
	if err != nil {
		return err
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return err
	}
	tree, err := commit.Tree()
	if err != nil {
		return err
	}

	util.MkdirAll(path.Dir(archivePath))
	file, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	return tree.Files().ForEach(func(f *object.File) error {
		mode := int64(0644)
		if f.Mode == filemode.Executable {
			mode = 0755
		}
		reader, err := f.Reader()
		if err != nil {
			return err
		}
		defer reader.Close()

		header := &tar.Header{
			Name: path.Join(rootName, f.Name),
			Mode: mode,
			Size: f.Size,
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		_, err = io.Copy(tw, reader)
		return err
	})
}

func sha256File(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
