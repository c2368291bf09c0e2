package version

import "fmt"

const (
	VERSION = "1.0.0"
	COMMIT  = "dev"
	BUILT   = ""
)

func Version() string {
	return fmt.Sprintf("%s (%s)", VERSION, BUILT)
}
