package wrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/mortar-build/mortar/log"
	"github.com/mortar-build/mortar/netrc"
	"github.com/mortar-build/mortar/util"
)

// CacheDirName is the directory under subprojects/ that downloaded archives
// are cached in.
const CacheDirName = "packagecache"

// Resolver materializes wraps into subproject directories.
type Resolver struct {
	// SubprojectsDir is <sourceRoot>/subprojects.
	SubprojectsDir string
	// Mirror is the base URL used by InstallFromMirror.
	Mirror string

	mu   sync.Mutex
	defs map[string]*Definition
}

// NewResolver creates a resolver rooted at the project source directory.
func NewResolver(sourceRoot, mirror string) *Resolver {
	return &Resolver{
		SubprojectsDir: path.Join(sourceRoot, util.SubprojectsDirName),
		Mirror:         mirror,
		defs:           map[string]*Definition{},
	}
}

// List returns the names of all wraps present in the subprojects directory,
// ordered by name.
func (r *Resolver) List() []string {
	entries, err := os.ReadDir(r.SubprojectsDir)
	if err != nil {
		return nil
	}
	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".wrap") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".wrap"))
		}
	}
	return util.OrderedSlice(names)
}

// Load returns the parsed definition for a wrap, caching the result.
func (r *Resolver) Load(name string) (*Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defs == nil {
		r.defs = map[string]*Definition{}
	}
	if def, ok := r.defs[name]; ok {
		return def, nil
	}
	wrapPath := path.Join(r.SubprojectsDir, name+".wrap")
	if !util.FileExists(wrapPath) {
		return nil, fmt.Errorf("no wrap file for subproject '%s'", name)
	}
	def, err := ParseFile(wrapPath)
	if err != nil {
		return nil, err
	}
	r.defs[name] = def
	return def, nil
}

// FindProvider looks for a wrap that provides the given dependency name.
func (r *Resolver) FindProvider(depName string) (*Definition, bool) {
	for _, name := range r.List() {
		def, err := r.Load(name)
		if err != nil {
			log.Warning("Skipping broken wrap file '%s': %s.\n", name, err)
			continue
		}
		if def.Provides(depName) {
			return def, true
		}
	}
	return nil, false
}

// Resolve materializes the subproject for a wrap and returns its directory.
// Already materialized subprojects are reused as-is.
func (r *Resolver) Resolve(name string) (string, *Definition, error) {
	def, err := r.Load(name)
	if err != nil {
		return "", nil, err
	}

	targetDir := path.Join(r.SubprojectsDir, def.Directory)
	if util.DirExists(targetDir) {
		log.Debug("Subproject '%s' is already materialized.\n", name)
		return targetDir, def, nil
	}

	switch def.Kind {
	case WrapGit:
		err = r.materializeGit(def, targetDir)
	default:
		err = r.materializeFile(def, targetDir)
	}
	if err != nil {
		os.RemoveAll(targetDir)
		return "", nil, fmt.Errorf("failed to materialize subproject '%s': %s", name, err)
	}
	return targetDir, def, nil
}

// Update refetches a wrap even when its directory already exists. Archive
// wraps are re-extracted, git wraps fetched and checked out to the pinned
// revision.
func (r *Resolver) Update(name string) error {
	def, err := r.Load(name)
	if err != nil {
		return err
	}
	targetDir := path.Join(r.SubprojectsDir, def.Directory)

	if def.Kind == WrapGit && util.DirExists(path.Join(targetDir, ".git")) {
		return r.updateGit(def, targetDir)
	}

	if util.DirExists(targetDir) {
		if err := os.RemoveAll(targetDir); err != nil {
			return err
		}
	}
	_, _, err = r.Resolve(name)
	return err
}

// ResolveAll materializes all wraps, `jobs` at a time. Used by
// 'mortar subprojects download'.
func (r *Resolver) ResolveAll(ctx context.Context, jobs int) error {
	names := r.List()
	if jobs < 1 {
		jobs = 1
	}

	work := make(chan string, len(names))
	for _, name := range names {
		work <- name
	}
	close(work)

	var wg sync.WaitGroup
	errs := make(chan error, len(names))
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range work {
				if ctx.Err() != nil {
					return
				}
				if _, _, err := r.Resolve(name); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		return err
	}
	return ctx.Err()
}

func (r *Resolver) materializeFile(def *Definition, targetDir string) error {
	cacheDir := path.Join(r.SubprojectsDir, CacheDirName)
	archivePath := path.Join(cacheDir, def.SourceFilename)

	if util.FileExists(archivePath) {
		log.Debug("Using cached archive for '%s'.\n", def.Name)
		if err := verifyHash(archivePath, def.SourceHash); err != nil {
			return err
		}
	} else {
		if err := download(def.SourceURL, archivePath, def.SourceHash); err != nil {
			return err
		}
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()
	if err := extractTarGz(archive, targetDir); err != nil {
		return err
	}

	if def.PatchURL != "" {
		patchFilename := def.PatchFilename
		if patchFilename == "" {
			patchFilename = def.PatchURL[strings.LastIndex(def.PatchURL, "/")+1:]
		}
		patchPath := path.Join(cacheDir, patchFilename)
		if !util.FileExists(patchPath) {
			if err := download(def.PatchURL, patchPath, def.PatchHash); err != nil {
				return err
			}
		}
		patch, err := os.Open(patchPath)
		if err != nil {
			return err
		}
		defer patch.Close()
		if err := extractTarGz(patch, targetDir); err != nil {
			return err
		}
	}

	if def.PatchDirectory != "" {
		overlayDir := path.Join(r.SubprojectsDir, "packagefiles", def.PatchDirectory)
		if !util.DirExists(overlayDir) {
			return fmt.Errorf("patch_directory '%s' does not exist", def.PatchDirectory)
		}
		log.Debug("Applying patch overlay '%s'.\n", overlayDir)
		if err := util.CopyDir(overlayDir, targetDir); err != nil {
			return fmt.Errorf("failed to apply patch overlay: %s", err)
		}
	}

	return nil
}

func (r *Resolver) materializeGit(def *Definition, targetDir string) error {
	log.Log("Cloning '%s'.\n", def.GitURL)
	log.Spinner.Start()
	defer log.Spinner.Stop()

	repo, err := git.PlainClone(targetDir, false, &git.CloneOptions{
		URL:   def.GitURL,
		Depth: def.Depth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone: %s", err)
	}
	return checkoutRevision(repo, def.Revision)
}

func (r *Resolver) updateGit(def *Definition, targetDir string) error {
	repo, err := git.PlainOpen(targetDir)
	if err != nil {
		return fmt.Errorf("failed to open subproject repository: %s", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	status, err := worktree.Status()
	if err != nil {
		return err
	}
	if !status.IsClean() {
		return fmt.Errorf("subproject '%s' has uncommitted changes, not updating", def.Name)
	}

	log.Log("Fetching '%s'.\n", def.GitURL)
	log.Spinner.Start()
	defer log.Spinner.Stop()
	if err := repo.Fetch(&git.FetchOptions{}); err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("failed to fetch: %s", err)
	}
	return checkoutRevision(repo, def.Revision)
}

func checkoutRevision(repo *git.Repository, revision string) error {
	// The revision may be a hash, tag or branch. Resolve it to a commit hash
	// before checking out.
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return fmt.Errorf("failed to resolve revision '%s': %s", revision, err)
	}
	log.Debug("Revision '%s' was resolved to commit hash '%s'.\n", revision, hash.String())

	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		return fmt.Errorf("failed to checkout revision '%s': %s", hash.String(), err)
	}
	return nil
}

// InstallFromMirror fetches `<mirror>/<name>.wrap` into the subprojects
// directory. Used by 'mortar wrap install'.
func (r *Resolver) InstallFromMirror(name string) error {
	if r.Mirror == "" {
		return fmt.Errorf("no wrap mirror configured, set 'mirror' in the tool configuration")
	}
	wrapPath := path.Join(r.SubprojectsDir, name+".wrap")
	if util.FileExists(wrapPath) {
		return fmt.Errorf("wrap '%s' is already installed", name)
	}

	url := strings.TrimRight(r.Mirror, "/") + "/" + name + ".wrap"
	if err := download(url, wrapPath, ""); err != nil {
		return err
	}

	// Reject files the mirror served that are not valid wraps.
	if _, err := ParseFile(wrapPath); err != nil {
		os.Remove(wrapPath)
		return err
	}
	return nil
}

func download(url, destPath, expectedHash string) error {
	log.Log("Downloading '%s'.\n", url)
	log.Spinner.Start()
	defer log.Spinner.Stop()

	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if auth := netrc.GetAuthForURL(url); auth != nil {
		request.SetBasicAuth(auth.User, auth.Password)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return fmt.Errorf("failed to download: %s", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download '%s': %s", url, response.Status)
	}

	hasher := sha256.New()
	data, err := io.ReadAll(io.TeeReader(response.Body, hasher))
	if err != nil {
		return fmt.Errorf("failed to download: %s", err)
	}
	if expectedHash != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if actual != expectedHash {
			return fmt.Errorf("incorrect hash for '%s':\n %s expected\n %s actual", url, expectedHash, actual)
		}
	}

	util.WriteFile(destPath, data)
	return nil
}

func verifyHash(filePath, expectedHash string) error {
	if expectedHash == "" {
		return nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	if actual != expectedHash {
		return fmt.Errorf("incorrect hash for cached '%s':\n %s expected\n %s actual", filePath, expectedHash, actual)
	}
	return nil
}
