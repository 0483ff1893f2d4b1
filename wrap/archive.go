package wrap

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/mortar-build/mortar/log"
)

const defaultDirMode = 0770

func getRoot(p string) string {
	firstSlash := strings.IndexByte(p, '/')
	if firstSlash == -1 {
		return p
	}
	return p[0:firstSlash]
}

// This leaves a leading /, but this is fine because the result paths are
// joined onto the destination directory.
func stripRoot(p string) string {
	root := getRoot(p)
	if p == root {
		return "/"
	}
	return p[len(root):]
}

// extractTarGz unpacks a .tar.gz archive into `destDir`, stripping the
// archive's single root directory. Archives with files outside a single root
// directory are rejected.
func extractTarGz(archive io.Reader, destDir string) error {
	gzReader, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("failed to decompress: %s", err)
	}

	tarReader := tar.NewReader(gzReader)
	tarRootDir := ""
	for {
		header, err := tarReader.Next()

		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to decompress: %s", err)
		}

		headerRootDir := getRoot(header.Name)
		if header.Typeflag != tar.TypeDir && headerRootDir == header.Name {
			return fmt.Errorf("failed to decompress: archive can't have files outside root directory")
		}
		if tarRootDir == "" {
			tarRootDir = headerRootDir
		} else if tarRootDir != headerRootDir {
			return fmt.Errorf("failed to decompress: archive can't have more than one root directory")
		}

		// The tar stream does not always visit a directory before the files
		// inside it. Missing parents are created with a default mode and get
		// their real mode once their own header is seen.
		switch header.Typeflag {
		case tar.TypeDir:
			dirPath := path.Join(destDir, stripRoot(header.Name))
			log.Debug("Creating directory '%s'.\n", dirPath)
			if err := os.MkdirAll(dirPath, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("failed to create directory: %s", err)
			}
			if err := os.Chmod(dirPath, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("failed to change filemode: %s", err)
			}
		case tar.TypeReg:
			filePath := path.Join(destDir, stripRoot(header.Name))
			if err := os.MkdirAll(path.Dir(filePath), defaultDirMode); err != nil {
				return fmt.Errorf("failed to create directory: %s", err)
			}
			file, err := os.Create(filePath)
			if err != nil {
				return fmt.Errorf("failed to create file: %s", err)
			}
			_, err = io.Copy(file, tarReader)
			file.Close()
			if err != nil {
				return fmt.Errorf("failed to write file: %s", err)
			}
			if err := os.Chmod(filePath, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("failed to change filemode: %s", err)
			}
		case tar.TypeLink:
			if getRoot(header.Linkname) != tarRootDir {
				return fmt.Errorf("failed to decompress: link target outside root directory")
			}
			oldname := path.Join(destDir, stripRoot(header.Linkname))
			newname := path.Join(destDir, stripRoot(header.Name))
			if err := os.MkdirAll(path.Dir(newname), defaultDirMode); err != nil {
				return fmt.Errorf("failed to create directory: %s", err)
			}
			if err = os.Link(oldname, newname); err != nil {
				return fmt.Errorf("failed to create link: %s", err)
			}
		case tar.TypeSymlink:
			newname := path.Join(destDir, stripRoot(header.Name))
			if err := os.MkdirAll(path.Dir(newname), defaultDirMode); err != nil {
				return fmt.Errorf("failed to create directory: %s", err)
			}
			if err := os.Symlink(header.Linkname, newname); err != nil {
				return fmt.Errorf("failed to create symlink: %s", err)
			}
		default:
			return fmt.Errorf("unknown tar type flag %d for entry '%s'", header.Typeflag, header.Name)
		}
	}

	if tarRootDir == "" {
		return fmt.Errorf("failed to decompress: archive is empty")
	}
	return nil
}
