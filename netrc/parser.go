// Package netrc reads credentials from the user's ~/.netrc so that wrap
// archives hosted on private servers can be downloaded without interactive
// authentication.
package netrc

import (
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/mortar-build/mortar/log"
)

type BasicAuth struct {
	User     string
	Password string
}

var (
	machines map[string]BasicAuth
	once     sync.Once
)

func parseNetrc() {
	machines = map[string]BasicAuth{}

	home, err := homedir.Dir()
	if err != nil {
		log.Debug("Unable to find home directory. netrc not parsed.\n")
		return
	}

	netrcPath := path.Join(home, ".netrc")
	contents, err := os.ReadFile(netrcPath)
	if err != nil {
		log.Debug("No netrc file at '%s'.\n", netrcPath)
		return
	}

	currentMachine := ""
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "machine"):
			currentMachine = strings.TrimSpace(strings.TrimPrefix(line, "machine"))
		case strings.HasPrefix(line, "login"):
			if currentMachine != "" {
				auth := machines[currentMachine]
				auth.User = strings.TrimSpace(strings.TrimPrefix(line, "login"))
				machines[currentMachine] = auth
			}
		case strings.HasPrefix(line, "password"):
			if currentMachine != "" {
				auth := machines[currentMachine]
				auth.Password = strings.TrimSpace(strings.TrimPrefix(line, "password"))
				machines[currentMachine] = auth
			}
		}
	}
}

// GetAuthForURL returns the credentials for the host of `urlString`, or nil
// when the netrc has no matching machine entry.
func GetAuthForURL(urlString string) *BasicAuth {
	once.Do(parseNetrc)

	u, err := url.Parse(urlString)
	if err != nil {
		log.Warning("Invalid URL '%s'.\n", urlString)
		return nil
	}

	if auth, ok := machines[u.Hostname()]; ok {
		return &auth
	}
	return nil
}
