// Package useragent identifies client software from the User-Agent header,
// backed by the uap-core rule set compiled into uap-go.
package useragent

import (
	"sync"

	"github.com/ua-parser/uap-go/uaparser"
)

// UA is the parsed browser/client family and version.
type UA struct {
	Family string
	Major  string
	Minor  string
	Patch  string
}

var (
	once   sync.Once
	parser *uaparser.Parser
)

// Parse identifies the client behind a User-Agent value. Unknown or empty
// inputs come back with Family "Other".
func Parse(userAgent string) UA {
	once.Do(func() {
		parser = uaparser.NewFromSaved()
	})
	ua := parser.ParseUserAgent(userAgent)
	return UA{Family: ua.Family, Major: ua.Major, Minor: ua.Minor, Patch: ua.Patch}
}
